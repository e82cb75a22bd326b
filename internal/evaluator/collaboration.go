package evaluator

import (
	"fmt"
	"math"
	"strings"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// AI collaboration scoring parameters.
const (
	promptQualityWeight      = 0.70
	usageEffectivenessWeight = 0.30

	// degradedCollaborationConfidence applies when prompt analysis fails and
	// the dimension falls back to a neutral score.
	degradedCollaborationConfidence = 0.3
)

// technicalTerms signal depth in a candidate prompt.
var technicalTerms = []string{
	"complexity", "edge case", "race condition", "invariant", "refactor",
	"time limit", "memory", "algorithm", "data structure", "test case",
	"stack trace", "null", "nil", "concurrency", "index",
}

// scoreAICollaboration weighs prompt quality against usage effectiveness.
//
// A session with zero AI interactions is a definitive observation, not
// missing data: score 0 at full confidence. When interactions were recorded
// but no prompts survived for analysis, the dimension degrades to a neutral
// score at low confidence instead.
func (e *Evaluator) scoreAICollaboration(rec *domain.SessionRecording) domain.DimensionScore {
	if rec.Metrics.AIInteractions == 0 {
		return domain.DimensionScore{
			Score:      0,
			Confidence: 1,
			Evidence:   []domain.Evidence{{Type: "observation", Snippet: "No AI interactions"}},
		}
	}

	usage := usageEffectiveness(rec.Metrics.AIDependencyScore)

	quality, ok := promptQualityScore(rec.Prompts)
	if !ok {
		e.logger.Warn("prompt analysis degraded to neutral",
			"session_id", rec.SessionID,
			"interactions", rec.Metrics.AIInteractions)
		return domain.DimensionScore{
			Score:      neutralScore,
			Confidence: degradedCollaborationConfidence,
			Evidence: []domain.Evidence{{
				Type:    "observation",
				Snippet: "prompt analysis unavailable, degraded to neutral",
			}},
			Breakdown: map[string]float64{"usage_effectiveness": usage},
		}
	}

	score := promptQualityWeight*quality + usageEffectivenessWeight*usage

	return domain.DimensionScore{
		Score:      clampScore(score),
		Confidence: 0.8,
		Evidence: []domain.Evidence{
			valueEvidence("prompt_quality",
				fmt.Sprintf("analysis of %d prompt(s)", len(rec.Prompts)), quality),
			valueEvidence("usage_effectiveness",
				fmt.Sprintf("dependency score %.0f", rec.Metrics.AIDependencyScore), usage),
		},
		Breakdown: map[string]float64{
			"prompt_quality":      quality,
			"usage_effectiveness": usage,
		},
	}
}

// usageEffectiveness peaks at moderate reliance: 100 - |50 - dependency|.
// Both never asking for help and leaning on the assistant for everything
// cost points.
func usageEffectiveness(dependencyScore float64) float64 {
	return clampScore(100 - math.Abs(50-dependencyScore))
}

// promptQualityScore averages specificity, clarity, technical depth and
// iteration quality over the recorded prompts. The boolean is false when
// there is nothing to analyze.
func promptQualityScore(prompts []domain.PromptRecord) (float64, bool) {
	if len(prompts) == 0 {
		return 0, false
	}

	specificity := promptSpecificity(prompts)
	clarity := promptClarityScore(prompts)
	depth := promptTechnicalDepth(prompts)
	iteration := promptIterationQuality(prompts)

	return mean([]float64{specificity, clarity, depth, iteration}), true
}

// promptSpecificity rewards prompts long enough to carry context and those
// that quote code.
func promptSpecificity(prompts []domain.PromptRecord) float64 {
	var total float64
	for _, p := range prompts {
		score := 0.0
		switch length := len(p.Text); {
		case length >= 120:
			score = 100
		case length >= 40:
			score = 70
		case length >= 15:
			score = 40
		default:
			score = 15
		}
		if strings.Contains(p.Text, "`") || strings.Contains(p.Text, "()") {
			score = math.Min(100, score+15)
		}
		total += score
	}
	return total / float64(len(prompts))
}

// promptClarityScore normalizes the recorded 1-5 clarity ratings to 0-100.
// Unrated prompts are skipped; with no ratings at all the sub-score is
// neutral.
func promptClarityScore(prompts []domain.PromptRecord) float64 {
	clarity, rated := ratedPromptClarity(prompts)
	if rated == 0 {
		return neutralScore
	}
	return clarity
}

// promptTechnicalDepth scores the share of prompts using technical
// vocabulary.
func promptTechnicalDepth(prompts []domain.PromptRecord) float64 {
	technical := 0
	for _, p := range prompts {
		lower := strings.ToLower(p.Text)
		for _, term := range technicalTerms {
			if strings.Contains(lower, term) {
				technical++
				break
			}
		}
	}
	return float64(technical) / float64(len(prompts)) * 100
}

// promptIterationQuality rewards refining follow-ups over verbatim repeats.
func promptIterationQuality(prompts []domain.PromptRecord) float64 {
	if len(prompts) < 2 {
		return neutralScore
	}
	refined := 0
	for i := 1; i < len(prompts); i++ {
		if strings.TrimSpace(prompts[i].Text) != strings.TrimSpace(prompts[i-1].Text) {
			refined++
		}
	}
	return float64(refined) / float64(len(prompts)-1) * 100
}
