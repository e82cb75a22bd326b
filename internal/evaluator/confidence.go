package evaluator

import (
	"fmt"
	"math"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Evidence thresholds for a fully-confident evaluation. Each shortfall
// multiplies a penalty into the relevant sub-score and emits a warning.
const (
	minCodeChanges      = 5
	minTestRuns         = 3
	minSessionDuration  = 20 * time.Minute
	minPromptSamples    = 3
	minTerminalCommands = 10

	shortfallPenalty = 0.8

	// dimensionSpreadLimit is the dimension-score standard deviation above
	// which the evaluation is considered internally inconsistent.
	dimensionSpreadLimit = 25.0
	inconsistencyPenalty = 0.7
)

// buildConfidenceReport multiplicatively penalizes data-quality, sample-size
// and consistency against fixed thresholds. Penalties compound: an
// evaluation that is thin on several axes at once deserves much less trust
// than one thin on a single axis.
func buildConfidenceReport(rec *domain.SessionRecording, dims []domain.DimensionScore) domain.ConfidenceReport {
	var warnings []string

	dataQuality := 1.0
	if len(rec.CodeSnapshots) < minCodeChanges {
		dataQuality *= shortfallPenalty
		warnings = append(warnings, fmt.Sprintf(
			"only %d code change(s) recorded (expected at least %d)",
			len(rec.CodeSnapshots), minCodeChanges))
	}
	if len(rec.TestRuns) < minTestRuns {
		dataQuality *= shortfallPenalty
		warnings = append(warnings, fmt.Sprintf(
			"only %d test run(s) recorded (expected at least %d)",
			len(rec.TestRuns), minTestRuns))
	}

	sampleSize := 1.0
	if rec.Duration < minSessionDuration {
		sampleSize *= shortfallPenalty
		warnings = append(warnings, fmt.Sprintf(
			"session lasted %s (expected at least %s)",
			rec.Duration.Round(time.Minute), minSessionDuration))
	}
	if len(rec.Prompts) < minPromptSamples {
		sampleSize *= shortfallPenalty
		warnings = append(warnings, fmt.Sprintf(
			"only %d prompt sample(s) recorded (expected at least %d)",
			len(rec.Prompts), minPromptSamples))
	}
	if len(rec.TerminalCommands) < minTerminalCommands {
		sampleSize *= shortfallPenalty
		warnings = append(warnings, fmt.Sprintf(
			"only %d terminal command(s) recorded (expected at least %d)",
			len(rec.TerminalCommands), minTerminalCommands))
	}

	consistency := 1.0
	if dimensionStdDev(dims) > dimensionSpreadLimit {
		consistency *= inconsistencyPenalty
		warnings = append(warnings, "dimension scores diverge widely, evaluation may be unbalanced")
	}

	return domain.ConfidenceReport{
		Overall:     dataQuality * sampleSize * consistency,
		DataQuality: dataQuality,
		SampleSize:  sampleSize,
		Consistency: consistency,
		Warnings:    warnings,
	}
}

func dimensionStdDev(dims []domain.DimensionScore) float64 {
	if len(dims) == 0 {
		return 0
	}
	var sum float64
	for _, d := range dims {
		sum += d.Score
	}
	avg := sum / float64(len(dims))

	var variance float64
	for _, d := range dims {
		variance += (d.Score - avg) * (d.Score - avg)
	}
	return math.Sqrt(variance / float64(len(dims)))
}
