package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/resilience"
)

// Code quality scoring parameters.
const (
	// methodSpreadThreshold is the max-min spread across scoring methods
	// above which the methods are considered to disagree.
	methodSpreadThreshold = 20

	agreementConfidence    = 0.9
	disagreementConfidence = 0.6

	// Ideal documentation density band. Code inside the band scores full
	// marks on the density axis; outside, the score decays linearly.
	idealCommentDensityMin = 0.10
	idealCommentDensityMax = 0.30
)

// antiPatterns are cheap static signals, each with its deduction.
var antiPatterns = []struct {
	marker    string
	deduction float64
	label     string
}{
	{"eval(", 25, "dynamic code evaluation"},
	{"== null ||", 5, "loose null guard chain"},
	{"catch {}", 15, "swallowed exception"},
	{"catch (e) {}", 15, "swallowed exception"},
	{"password =", 20, "hardcoded credential"},
	{"api_key =", 20, "hardcoded credential"},
	{"apiKey =", 20, "hardcoded credential"},
}

// scoreCodeQuality combines three independent methods: the objective
// test-pass ratio from the last run, a static documentation/anti-pattern
// analysis of the final code, and a qualitative model review wrapped in
// circuit breaker plus retry. Every method degrades on its own; only the
// spread between them moves the confidence.
func (e *Evaluator) scoreCodeQuality(ctx context.Context, rec *domain.SessionRecording) domain.DimensionScore {
	var evidence []domain.Evidence

	testScore := testPassScore(rec.TestRuns)
	evidence = append(evidence, valueEvidence("test_results",
		fmt.Sprintf("last test run pass ratio over %d run(s)", len(rec.TestRuns)), testScore))

	staticScore, staticNotes := staticAnalysisScore(rec.FinalCode)
	for _, note := range staticNotes {
		evidence = append(evidence, domain.Evidence{Type: "static_analysis", Snippet: note})
	}
	evidence = append(evidence, valueEvidence("static_analysis", "documentation and pattern analysis", staticScore))

	reviewScore := e.qualitativeReview(ctx, rec)
	evidence = append(evidence, valueEvidence("qualitative_review", "model code review", reviewScore))

	methods := []float64{testScore, staticScore, reviewScore}
	score := mean(methods)

	confidence := agreementConfidence
	if spread(methods) > methodSpreadThreshold {
		confidence = disagreementConfidence
		evidence = append(evidence, domain.Evidence{
			Type:    "observation",
			Snippet: "scoring methods disagree beyond the spread threshold",
		})
	}

	return domain.DimensionScore{
		Score:      score,
		Confidence: confidence,
		Evidence:   evidence,
		Breakdown: map[string]float64{
			"tests":              testScore,
			"static_analysis":    staticScore,
			"qualitative_review": reviewScore,
		},
	}
}

// qualitativeReview calls the external reviewer under the code-review breaker
// with bounded retries on transient failures and a per-attempt timeout, so a
// hung model call can never block the job goroutine past its budget.
// Exhausted retries, an open breaker, or an unusable response all degrade
// to 0.
func (e *Evaluator) qualitativeReview(ctx context.Context, rec *domain.SessionRecording) float64 {
	if e.reviewer == nil || strings.TrimSpace(rec.FinalCode) == "" {
		return 0
	}

	breaker := e.breakers.Breaker("code-review")
	score, err := resilience.Retry(ctx, resilience.RetryOptions{
		MaxRetries:   e.reviewRetries,
		InitialDelay: e.reviewRetryDelay,
		ShouldRetry: func(err error) bool {
			return domain.IsTransient(err) || errors.Is(err, resilience.ErrTimeout)
		},
		OnRetry: func(attempt int, err error) {
			e.logger.Warn("retrying qualitative review",
				"session_id", rec.SessionID,
				"attempt", attempt,
				"error", err)
		},
	}, func(ctx context.Context) (float64, error) {
		return resilience.WithTimeout(ctx, e.reviewTimeout,
			func(ctx context.Context) (float64, error) {
				var s float64
				err := breaker.Execute(ctx, func(ctx context.Context) error {
					reviewed, reviewErr := e.reviewer.Review(ctx, rec.FinalCode)
					s = reviewed
					return reviewErr
				})
				return s, err
			})
	})
	if err != nil {
		e.logger.Warn("qualitative review degraded to zero",
			"session_id", rec.SessionID,
			"error", err)
		return 0
	}
	return score
}

// testPassScore is the pass ratio of the most recent test run, scaled to
// 0-100. No recorded runs score 0: without executed tests there is no
// objective correctness signal.
func testPassScore(runs []domain.TestRunResult) float64 {
	if len(runs) == 0 {
		return 0
	}
	last := runs[len(runs)-1]
	if last.Total == 0 {
		return 0
	}
	return float64(last.Passed) / float64(last.Total) * 100
}

// staticAnalysisScore scores the final code on documentation density and
// cheap anti-pattern markers. Returns the score and the notes for any
// deductions applied.
func staticAnalysisScore(code string) (float64, []string) {
	if strings.TrimSpace(code) == "" {
		return 0, []string{"no final code captured"}
	}

	score := documentationScore(code)
	var notes []string

	lower := strings.ToLower(code)
	for _, p := range antiPatterns {
		if strings.Contains(lower, strings.ToLower(p.marker)) {
			score -= p.deduction
			notes = append(notes, "penalized: "+p.label)
		}
	}

	return clampScore(score), notes
}

// documentationScore maps comment density onto 0-100. Density inside the
// ideal band scores 100; outside it the score falls off linearly toward 40
// at zero density and 40 at total density.
func documentationScore(code string) float64 {
	total, comments := 0, 0
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		total++
		if strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "#") ||
			strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*") {
			comments++
		}
	}
	if total == 0 {
		return 0
	}

	density := float64(comments) / float64(total)
	switch {
	case density >= idealCommentDensityMin && density <= idealCommentDensityMax:
		return 100
	case density < idealCommentDensityMin:
		return 40 + 60*(density/idealCommentDensityMin)
	default:
		over := (density - idealCommentDensityMax) / (1 - idealCommentDensityMax)
		return 100 - 60*over
	}
}

func valueEvidence(evidenceType, snippet string, value float64) domain.Evidence {
	v := value
	now := time.Now().UTC()
	return domain.Evidence{
		Type:      evidenceType,
		Timestamp: &now,
		Snippet:   snippet,
		Value:     &v,
	}
}

func clampScore(s float64) float64 {
	return math.Min(100, math.Max(0, s))
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func spread(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max - min
}
