// Package tracker maintains the hidden per-session ability, difficulty and
// struggle signals consumed later by the evaluator. It is never visible to
// the interview subject.
package tracker

import (
	"math"
	"strings"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Estimation parameters. The ability model is a deliberately simplified
// one-parameter response model; its contract is documented as-is and scores
// derived from it are treated as approximate downstream.
const (
	// initialStandardError is the prior uncertainty before any answers.
	initialStandardError = 1.5

	// abilityStepFraction is how far theta moves toward an answered
	// question's normalized difficulty.
	abilityStepFraction = 0.3

	// difficultyMidpoint and difficultyScale map question difficulty (1-10)
	// onto the IRT scale: normalized = (difficulty - 5.5) / 1.5.
	difficultyMidpoint = 5.5
	difficultyScale    = 1.5

	// recommendationBias shifts recommended difficulty slightly above the
	// current estimate to keep candidates challenged.
	recommendationBias = 0.5

	// failureRateEMAWeight is the weight of the newest test run in the
	// failure-rate moving average.
	failureRateEMAWeight = 0.3

	// slowResponseThreshold flags answers slower than this.
	slowResponseThreshold = 3 * time.Minute

	// shortMessageLength flags assistant messages shorter than this as a
	// possible struggle signal.
	shortMessageLength = 15

	// difficultyAdjustmentGap is the |current - recommended| gap that
	// raises an adjustment signal for downstream consumers.
	difficultyAdjustmentGap = 2
)

// helpSeekingPhrases are the lexical markers of help-seeking prompts.
var helpSeekingPhrases = []string{
	"help",
	"stuck",
	"i don't know",
	"i dont know",
	"how do i",
	"what should i",
	"can you just",
	"give me the answer",
}

// clampAbility bounds theta to the IRT scale.
func clampAbility(theta float64) float64 {
	return math.Min(domain.AbilityMax, math.Max(domain.AbilityMin, theta))
}

// updateAbility applies one answered question to the ability estimate.
//
// The question's difficulty is normalized to the IRT scale and theta moves
// toward it by abilityStepFraction of the gap, clipped so a correct answer
// only pushes theta upward and an incorrect one only downward, then clamped.
func updateAbility(theta float64, difficulty int, correct bool) float64 {
	normalized := (float64(difficulty) - difficultyMidpoint) / difficultyScale
	delta := abilityStepFraction * (normalized - theta)

	if correct && delta < 0 {
		delta = 0
	}
	if !correct && delta > 0 {
		delta = 0
	}

	return clampAbility(theta + delta)
}

// standardError shrinks the prior uncertainty by the square root of the
// number of answered questions.
func standardError(questionsAnswered int) float64 {
	if questionsAnswered < 1 {
		return initialStandardError
	}
	return initialStandardError / math.Sqrt(float64(questionsAnswered))
}

// recommendDifficulty maps theta back onto the 1-10 difficulty scale with a
// slight upward bias, clamped to valid difficulties.
func recommendDifficulty(theta float64) int {
	d := int(math.Round(difficultyMidpoint + (theta+recommendationBias)*difficultyScale))
	if d < 1 {
		d = 1
	}
	if d > 10 {
		d = 10
	}
	return d
}

// dependencyScore computes the 0-100 AI-dependency score from interaction
// frequency and tool usage.
func dependencyScore(interactions, questionsAnswered int, toolUsageScore float64) float64 {
	denominator := questionsAnswered
	if denominator < 1 {
		denominator = 1
	}
	frequency := float64(interactions) / float64(denominator)
	return math.Min(100, frequency*20+toolUsageScore)
}

// failureRateEMA folds one test run into the exponential moving average.
func failureRateEMA(previous float64, run domain.TestRunResult) float64 {
	if run.Total == 0 {
		return previous
	}
	rate := float64(run.Failed) / float64(run.Total)
	return failureRateEMAWeight*rate + (1-failureRateEMAWeight)*previous
}

// isHelpSeeking applies the lexical struggle heuristics to one message.
func isHelpSeeking(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range helpSeekingPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// runningAverage folds a new duration into a running mean over n samples
// (n includes the new sample).
func runningAverage(avg time.Duration, sample time.Duration, n int) time.Duration {
	if n <= 1 {
		return sample
	}
	return avg + (sample-avg)/time.Duration(n)
}
