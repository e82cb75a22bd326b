package evaluator

import (
	"fmt"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// scoreCommunication averages prompt clarity with the same documentation
// heuristic used by code quality: how a candidate talks to the assistant and
// how they annotate their code are the two written-communication signals a
// recorded session carries.
func (e *Evaluator) scoreCommunication(rec *domain.SessionRecording) domain.DimensionScore {
	docScore := documentationScore(rec.FinalCode)

	clarity, rated := ratedPromptClarity(rec.Prompts)
	if rated == 0 {
		// Documentation alone is a weak signal.
		return domain.DimensionScore{
			Score:      docScore,
			Confidence: 0.4,
			Evidence: []domain.Evidence{
				{Type: "observation", Snippet: "no rated prompts, scored on documentation only"},
				valueEvidence("documentation", "comment density of final code", docScore),
			},
			Breakdown: map[string]float64{"documentation": docScore},
		}
	}

	score := (clarity + docScore) / 2

	return domain.DimensionScore{
		Score:      clampScore(score),
		Confidence: 0.7,
		Evidence: []domain.Evidence{
			valueEvidence("prompt_clarity",
				fmt.Sprintf("average over %d rated prompt(s)", rated), clarity),
			valueEvidence("documentation", "comment density of final code", docScore),
		},
		Breakdown: map[string]float64{
			"prompt_clarity": clarity,
			"documentation":  docScore,
		},
	}
}

// ratedPromptClarity returns the 0-100 normalized mean of the 1-5 clarity
// ratings and how many prompts carried one.
func ratedPromptClarity(prompts []domain.PromptRecord) (float64, int) {
	var total float64
	rated := 0
	for _, p := range prompts {
		if p.ClarityRating < 1 || p.ClarityRating > 5 {
			continue
		}
		total += float64(p.ClarityRating-1) * 25
		rated++
	}
	if rated == 0 {
		return 0, 0
	}
	return total / float64(rated), rated
}
