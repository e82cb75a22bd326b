package domain

import (
	"time"
)

// Evaluation dimension names. The four dimensions and their fixed weights are
// the contract of the hiring evaluation; weights always sum to 1.
const (
	DimensionCodeQuality     = "code_quality"
	DimensionProblemSolving  = "problem_solving"
	DimensionAICollaboration = "ai_collaboration"
	DimensionCommunication   = "communication"
)

// Fixed dimension weights for the overall score.
const (
	WeightCodeQuality     = 0.40
	WeightProblemSolving  = 0.25
	WeightAICollaboration = 0.20
	WeightCommunication   = 0.15
)

// Hiring recommendation decisions.
const (
	DecisionStrongHire   = "strong-hire"
	DecisionHire         = "hire"
	DecisionNoHire       = "no-hire"
	DecisionStrongNoHire = "strong-no-hire"
)

// Evidence is a typed observation supporting a dimension score.
type Evidence struct {
	Type      string     `json:"type"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Snippet   string     `json:"snippet,omitempty"`
	Value     *float64   `json:"value,omitempty"`
}

// DimensionScore is one scored hiring dimension with its confidence,
// supporting evidence, and sub-score breakdown.
type DimensionScore struct {
	Score      float64            `json:"score"`      // 0-100
	Confidence float64            `json:"confidence"` // 0-1
	Evidence   []Evidence         `json:"evidence,omitempty"`
	Breakdown  map[string]float64 `json:"breakdown,omitempty"`
}

// ConfidenceReport multiplicatively penalizes data-quality, sample-size and
// consistency sub-scores against fixed thresholds and carries human-readable
// warnings about thin evidence.
type ConfidenceReport struct {
	Overall     float64  `json:"overall"` // 0-1
	DataQuality float64  `json:"data_quality"`
	SampleSize  float64  `json:"sample_size"`
	Consistency float64  `json:"consistency"`
	Warnings    []string `json:"warnings,omitempty"`
}

// Bias indicator severities.
const (
	SeverityLow    = "low"
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Bias indicator kinds emitted by the seven detection heuristics.
const (
	BiasAIOverReliance       = "ai_over_reliance"
	BiasTimePressure         = "time_pressure"
	BiasInsufficientEvidence = "insufficient_evidence"
	BiasDimensionDominance   = "single_dimension_dominance"
	BiasScoreInconsistency   = "score_test_inconsistency"
	BiasPerfectionism        = "perfectionism"
	BiasExperienceAssumption = "experience_assumption"
)

// BiasIndicator is one fired bias heuristic with its evidence and the
// recommended correction.
type BiasIndicator struct {
	Type           string `json:"type"`
	Severity       string `json:"severity"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
}

// BiasReport aggregates the fired indicators into an overall risk level.
type BiasReport struct {
	Indicators []BiasIndicator `json:"indicators,omitempty"`
	RiskLevel  string          `json:"risk_level"` // low | medium | high
}

// Recommendation is the final hiring decision with its reasoning trail.
type Recommendation struct {
	Decision   string   `json:"decision"`
	Reasoning  []string `json:"reasoning,omitempty"`
	Conditions []string `json:"conditions,omitempty"`
}

// EvaluationResult is the final, evidence-based hiring evaluation for one
// session. Created exactly once per (SessionID, CandidateID) under lock and
// immutable once persisted.
type EvaluationResult struct {
	SessionID   string `json:"session_id"`
	CandidateID string `json:"candidate_id"`

	CodeQuality     DimensionScore `json:"code_quality"`
	ProblemSolving  DimensionScore `json:"problem_solving"`
	AICollaboration DimensionScore `json:"ai_collaboration"`
	Communication   DimensionScore `json:"communication"`

	OverallScore float64 `json:"overall_score"`
	// OverallConfidence is the minimum across dimensions: weakest link,
	// intentionally conservative, not an average.
	OverallConfidence float64 `json:"overall_confidence"`

	Confidence     ConfidenceReport `json:"confidence"`
	Bias           BiasReport       `json:"bias"`
	Recommendation Recommendation   `json:"recommendation"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// SessionRecording is the full recorded trace of a session that the evaluator
// scores against. The fetch of this record is the only fatal dependency of an
// evaluation; everything else degrades locally.
type SessionRecording struct {
	SessionID   string        `json:"session_id"`
	CandidateID string        `json:"candidate_id"`
	Duration    time.Duration `json:"duration"`

	Metrics          SessionMetrics  `json:"metrics"`
	CodeSnapshots    []CodeSnapshot  `json:"code_snapshots,omitempty"`
	TestRuns         []TestRunResult `json:"test_runs,omitempty"`
	Prompts          []PromptRecord  `json:"prompts,omitempty"`
	TerminalCommands []string        `json:"terminal_commands,omitempty"`
	FinalCode        string          `json:"final_code,omitempty"`
}

// PromptRecord is one candidate prompt to the assistant, with an optional
// 1-5 clarity rating recorded by the interview layer.
type PromptRecord struct {
	Text          string    `json:"text"`
	ClarityRating int       `json:"clarity_rating,omitempty"` // 1-5, 0 when unrated
	SentAt        time.Time `json:"sent_at"`
}
