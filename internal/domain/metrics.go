package domain

import (
	"time"
)

// Struggle indicator labels attached to session metrics by the ability tracker.
const (
	IndicatorHelpSeeking   = "help-seeking"
	IndicatorShortMessages = "short-messages"
	IndicatorHighFailures  = "high-test-failures"
	IndicatorSlowResponses = "slow-responses"
)

// Ability estimate bounds on the IRT scale.
const (
	AbilityMin = -3.0
	AbilityMax = 3.0
)

// CodeSnapshot is a tagged copy of the candidate's code recorded for later
// evaluation. Snapshots never influence the ability estimate.
type CodeSnapshot struct {
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	Tag        string    `json:"tag,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// TestRunResult is the recorded outcome of one test execution.
type TestRunResult struct {
	Passed int       `json:"passed"`
	Failed int       `json:"failed"`
	Total  int       `json:"total"`
	RunAt  time.Time `json:"run_at"`
}

// SessionMetrics is the hidden, continuously-updated signal record for one
// interview session. It is created on session-started, mutated by every
// subsequent event for that session, and frozen at session-complete.
//
// Invariants: counters only ever increase; Ability stays clamped to
// [AbilityMin, AbilityMax]; no mutation is applied after Completed is set.
type SessionMetrics struct {
	SessionID   string `json:"session_id"`
	CandidateID string `json:"candidate_id"`

	Ability       float64 `json:"ability"`        // theta on the IRT scale
	StandardError float64 `json:"standard_error"` // shrinks as evidence accrues

	QuestionsAnswered int `json:"questions_answered"`
	QuestionsCorrect  int `json:"questions_correct"`
	QuestionsWrong    int `json:"questions_wrong"`

	AIInteractions    int     `json:"ai_interactions"`
	AIDependencyScore float64 `json:"ai_dependency_score"` // 0-100

	StruggleIndicators []string `json:"struggle_indicators,omitempty"`

	ResponseTimeAvg    time.Duration `json:"response_time_avg"`
	TestFailureRateEMA float64       `json:"test_failure_rate_ema"`

	CurrentDifficulty     int `json:"current_difficulty"`     // 1-10
	RecommendedDifficulty int `json:"recommended_difficulty"` // 1-10

	CodeSnapshots []CodeSnapshot  `json:"code_snapshots,omitempty"`
	TestRuns      []TestRunResult `json:"test_runs,omitempty"`

	Completed bool      `json:"completed"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasIndicator reports whether the named struggle indicator is already set.
func (m *SessionMetrics) HasIndicator(name string) bool {
	for _, ind := range m.StruggleIndicators {
		if ind == name {
			return true
		}
	}
	return false
}

// AddIndicator sets the named struggle indicator, preserving set semantics.
func (m *SessionMetrics) AddIndicator(name string) {
	if !m.HasIndicator(name) {
		m.StruggleIndicators = append(m.StruggleIndicators, name)
	}
}

// LastTestRun returns the most recent test run, or nil when none exist.
func (m *SessionMetrics) LastTestRun() *TestRunResult {
	if len(m.TestRuns) == 0 {
		return nil
	}
	return &m.TestRuns[len(m.TestRuns)-1]
}
