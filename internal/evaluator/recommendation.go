package evaluator

import (
	"fmt"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Recommendation thresholds.
const (
	strongHireScore = 85
	hireScore       = 70
	noHireScore     = 50

	// criticalGapScore is the dimension floor below which even a good
	// overall score cannot support a hire.
	criticalGapScore = 40

	// lowConfidenceFloor marks evaluations too uncertain to stand alone.
	lowConfidenceFloor = 0.5
)

// recommend combines the overall score, critical-gap detection and the
// bias/confidence signal into the final decision with its reasoning trail.
func recommend(result *domain.EvaluationResult) domain.Recommendation {
	var reasoning []string
	var conditions []string

	decision := decisionForScore(result.OverallScore)
	reasoning = append(reasoning, fmt.Sprintf("overall score %.0f", result.OverallScore))

	// A collapsed dimension caps the decision regardless of the average.
	for name, score := range dimensionScores(result) {
		if score < criticalGapScore {
			reasoning = append(reasoning, fmt.Sprintf(
				"critical gap: %s scored %.0f", name, score))
			if decision == domain.DecisionStrongHire || decision == domain.DecisionHire {
				decision = domain.DecisionNoHire
			}
		}
	}

	if result.Bias.RiskLevel == domain.SeverityHigh {
		reasoning = append(reasoning, "high bias risk detected in the evaluation itself")
		if decision == domain.DecisionStrongHire {
			decision = domain.DecisionHire
		}
		conditions = append(conditions, "review flagged bias indicators with a second evaluator")
	}

	if result.Confidence.Overall < lowConfidenceFloor {
		reasoning = append(reasoning, fmt.Sprintf(
			"evaluation confidence %.2f is below the standalone threshold", result.Confidence.Overall))
		if decision == domain.DecisionStrongHire {
			decision = domain.DecisionHire
		}
		conditions = append(conditions, "corroborate with a follow-up interview before deciding")
	}

	return domain.Recommendation{
		Decision:   decision,
		Reasoning:  reasoning,
		Conditions: conditions,
	}
}

func decisionForScore(score float64) string {
	switch {
	case score >= strongHireScore:
		return domain.DecisionStrongHire
	case score >= hireScore:
		return domain.DecisionHire
	case score >= noHireScore:
		return domain.DecisionNoHire
	default:
		return domain.DecisionStrongNoHire
	}
}
