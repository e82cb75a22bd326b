package evaluator

import (
	"fmt"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Bias heuristic thresholds.
const (
	overRelianceInteractions = 5
	overRelianceGap          = 20
	overRelianceDependency   = 80

	timePressureDuration = 15 * time.Minute
	timePressureScore    = 60

	dominanceGap = 30

	inconsistentQualityScore = 70
	inconsistentPassRatio    = 0.5
	severeInconsistentRatio  = 0.3

	perfectionismSnapshots = 30

	experiencePromptLength = 200
	experienceScoreCeiling = 50
)

// detectBias runs the seven independent heuristics and aggregates their
// severities: any high-severity indicator or two medium ones make the
// overall risk high; any medium makes it medium; otherwise low.
func detectBias(rec *domain.SessionRecording, result *domain.EvaluationResult) domain.BiasReport {
	checks := []func(*domain.SessionRecording, *domain.EvaluationResult) *domain.BiasIndicator{
		checkAIOverReliance,
		checkTimePressure,
		checkInsufficientEvidence,
		checkDimensionDominance,
		checkScoreTestInconsistency,
		checkPerfectionism,
		checkExperienceAssumption,
	}

	var indicators []domain.BiasIndicator
	for _, check := range checks {
		if indicator := check(rec, result); indicator != nil {
			indicators = append(indicators, *indicator)
		}
	}

	return domain.BiasReport{
		Indicators: indicators,
		RiskLevel:  aggregateRisk(indicators),
	}
}

func aggregateRisk(indicators []domain.BiasIndicator) string {
	mediums := 0
	for _, ind := range indicators {
		switch ind.Severity {
		case domain.SeverityHigh:
			return domain.SeverityHigh
		case domain.SeverityMedium:
			mediums++
		}
	}
	if mediums >= 2 {
		return domain.SeverityHigh
	}
	if mediums == 1 {
		return domain.SeverityMedium
	}
	return domain.SeverityLow
}

// checkAIOverReliance fires when code quality notably outpaces the AI
// collaboration score across frequent interactions, suggesting the code
// reflects the assistant more than the candidate. Extreme dependency alone
// escalates to high.
func checkAIOverReliance(rec *domain.SessionRecording, result *domain.EvaluationResult) *domain.BiasIndicator {
	interactions := rec.Metrics.AIInteractions
	if interactions < overRelianceInteractions {
		return nil
	}

	if rec.Metrics.AIDependencyScore > overRelianceDependency {
		return &domain.BiasIndicator{
			Type:     domain.BiasAIOverReliance,
			Severity: domain.SeverityHigh,
			Evidence: fmt.Sprintf("AI dependency score %.0f across %d interactions",
				rec.Metrics.AIDependencyScore, interactions),
			Recommendation: "verify the candidate can work through a problem without assistance",
		}
	}

	if result.CodeQuality.Score-result.AICollaboration.Score >= overRelianceGap {
		return &domain.BiasIndicator{
			Type:     domain.BiasAIOverReliance,
			Severity: domain.SeverityMedium,
			Evidence: fmt.Sprintf("code quality %.0f outpaces AI collaboration %.0f over %d interactions",
				result.CodeQuality.Score, result.AICollaboration.Score, interactions),
			Recommendation: "review transcript to confirm the code reflects the candidate's own work",
		}
	}
	return nil
}

// checkTimePressure fires when a short session carries low scores: the
// candidate may not have had room to demonstrate ability.
func checkTimePressure(rec *domain.SessionRecording, result *domain.EvaluationResult) *domain.BiasIndicator {
	if rec.Duration >= timePressureDuration || result.OverallScore >= timePressureScore {
		return nil
	}
	return &domain.BiasIndicator{
		Type:     domain.BiasTimePressure,
		Severity: domain.SeverityMedium,
		Evidence: fmt.Sprintf("session lasted only %s with overall score %.0f",
			rec.Duration.Round(time.Minute), result.OverallScore),
		Recommendation: "discount low scores from a truncated session or offer a retake",
	}
}

// checkInsufficientEvidence fires when the trace is too thin to support the
// conclusions drawn from it.
func checkInsufficientEvidence(rec *domain.SessionRecording, _ *domain.EvaluationResult) *domain.BiasIndicator {
	thinCode := len(rec.CodeSnapshots) < 3
	thinTests := len(rec.TestRuns) < 2

	if thinCode && thinTests {
		return &domain.BiasIndicator{
			Type:     domain.BiasInsufficientEvidence,
			Severity: domain.SeverityHigh,
			Evidence: fmt.Sprintf("%d code snapshot(s) and %d test run(s)",
				len(rec.CodeSnapshots), len(rec.TestRuns)),
			Recommendation: "treat this evaluation as inconclusive",
		}
	}
	if thinCode || thinTests {
		return &domain.BiasIndicator{
			Type:     domain.BiasInsufficientEvidence,
			Severity: domain.SeverityMedium,
			Evidence: fmt.Sprintf("%d code snapshot(s), %d test run(s)",
				len(rec.CodeSnapshots), len(rec.TestRuns)),
			Recommendation: "weigh this evaluation lightly against other signals",
		}
	}
	return nil
}

// checkDimensionDominance fires when one dimension towers over the next
// best, which can anchor the overall impression on a single skill.
func checkDimensionDominance(_ *domain.SessionRecording, result *domain.EvaluationResult) *domain.BiasIndicator {
	scores := dimensionScores(result)

	best, second := -1.0, -1.0
	bestName := ""
	for name, s := range scores {
		if s > best {
			second = best
			best = s
			bestName = name
		} else if s > second {
			second = s
		}
	}

	if best-second < dominanceGap {
		return nil
	}
	return &domain.BiasIndicator{
		Type:     domain.BiasDimensionDominance,
		Severity: domain.SeverityMedium,
		Evidence: fmt.Sprintf("%s (%.0f) exceeds the next dimension (%.0f) by %.0f points",
			bestName, best, second, best-second),
		Recommendation: "judge each dimension on its own evidence, not the standout one",
	}
}

// checkScoreTestInconsistency fires when a high code quality score coexists
// with mostly failing tests, a direct contradiction of hard evidence.
func checkScoreTestInconsistency(rec *domain.SessionRecording, result *domain.EvaluationResult) *domain.BiasIndicator {
	if result.CodeQuality.Score < inconsistentQualityScore || len(rec.TestRuns) == 0 {
		return nil
	}
	last := rec.TestRuns[len(rec.TestRuns)-1]
	if last.Total == 0 {
		return nil
	}
	ratio := float64(last.Passed) / float64(last.Total)
	if ratio >= inconsistentPassRatio {
		return nil
	}

	severity := domain.SeverityMedium
	if ratio < severeInconsistentRatio {
		severity = domain.SeverityHigh
	}
	return &domain.BiasIndicator{
		Type:     domain.BiasScoreInconsistency,
		Severity: severity,
		Evidence: fmt.Sprintf("code quality %.0f but final test pass ratio %.0f%%",
			result.CodeQuality.Score, ratio*100),
		Recommendation: "re-examine the qualitative review against the failing test output",
	}
}

// checkPerfectionism fires when an already-passing solution keeps getting
// reworked, which can read as either rigor or poor time management.
func checkPerfectionism(rec *domain.SessionRecording, _ *domain.EvaluationResult) *domain.BiasIndicator {
	if len(rec.CodeSnapshots) <= perfectionismSnapshots || len(rec.TestRuns) == 0 {
		return nil
	}
	last := rec.TestRuns[len(rec.TestRuns)-1]
	if last.Total == 0 || last.Failed > 0 {
		return nil
	}
	return &domain.BiasIndicator{
		Type:     domain.BiasPerfectionism,
		Severity: domain.SeverityLow,
		Evidence: fmt.Sprintf("%d code revisions after all %d tests passed",
			len(rec.CodeSnapshots), last.Total),
		Recommendation: "distinguish polish from indecision before scoring time management",
	}
}

// checkExperienceAssumption fires when elaborate, jargon-heavy prompts meet
// low scores: the polish of the language can inflate the perceived
// seniority of the work.
func checkExperienceAssumption(rec *domain.SessionRecording, result *domain.EvaluationResult) *domain.BiasIndicator {
	if len(rec.Prompts) == 0 || result.OverallScore >= experienceScoreCeiling {
		return nil
	}
	var totalLen int
	for _, p := range rec.Prompts {
		totalLen += len(p.Text)
	}
	avgLen := totalLen / len(rec.Prompts)
	if avgLen < experiencePromptLength {
		return nil
	}
	return &domain.BiasIndicator{
		Type:     domain.BiasExperienceAssumption,
		Severity: domain.SeverityLow,
		Evidence: fmt.Sprintf("average prompt length %d characters against overall score %.0f",
			avgLen, result.OverallScore),
		Recommendation: "score the delivered work, not the fluency of the prompts",
	}
}

func dimensionScores(result *domain.EvaluationResult) map[string]float64 {
	return map[string]float64{
		domain.DimensionCodeQuality:     result.CodeQuality.Score,
		domain.DimensionProblemSolving:  result.ProblemSolving.Score,
		domain.DimensionAICollaboration: result.AICollaboration.Score,
		domain.DimensionCommunication:   result.Communication.Score,
	}
}
