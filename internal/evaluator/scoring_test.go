package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

func TestTestPassScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100.0, testPassScore([]domain.TestRunResult{
		{Passed: 5, Failed: 0, Total: 5},
	}), "a single perfect run scores 100")

	assert.Equal(t, 40.0, testPassScore([]domain.TestRunResult{
		{Passed: 5, Failed: 0, Total: 5},
		{Passed: 2, Failed: 3, Total: 5},
	}), "only the last run counts")

	assert.Equal(t, 0.0, testPassScore(nil))
	assert.Equal(t, 0.0, testPassScore([]domain.TestRunResult{{Total: 0}}))
}

func TestDocumentationScore(t *testing.T) {
	t.Parallel()

	ideal := "// one\ncode\ncode\ncode\ncode\n" // density 1/5 = 0.2
	assert.Equal(t, 100.0, documentationScore(ideal))

	bare := "code\ncode\ncode\ncode\ncode\n"
	assert.Equal(t, 40.0, documentationScore(bare), "zero density bottoms out at 40")

	assert.Equal(t, 0.0, documentationScore(""))

	// Over-commented code decays but never below the same floor.
	allComments := "// a\n// b\n// c\n// d\n"
	assert.InDelta(t, 40.0, documentationScore(allComments), 1e-9)
}

func TestStaticAnalysisScore_Penalties(t *testing.T) {
	t.Parallel()

	clean := "// parse handles input\nfunc parse() {}\nreturn\nok\nok\n"
	cleanScore, notes := staticAnalysisScore(clean)
	assert.Empty(t, notes)

	risky := clean + "password = \"hunter2\"\n"
	riskyScore, notes := staticAnalysisScore(risky)
	assert.Less(t, riskyScore, cleanScore)
	require.Len(t, notes, 1)
	assert.Contains(t, notes[0], "hardcoded credential")
}

func TestIterationScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, iterationScore(0))
	assert.Equal(t, 100.0, iterationScore(12), "the optimal cadence scores full marks")
	assert.Greater(t, iterationScore(12), iterationScore(3), "too few edits score lower")
	assert.Greater(t, iterationScore(12), iterationScore(40), "thrashing scores lower")
	// The Gaussian is symmetric around the optimum.
	assert.InDelta(t, iterationScore(8), iterationScore(16), 1e-9)
}

func TestDebuggingImprovementScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, neutralScore, debuggingImprovementScore(nil))
	assert.Equal(t, neutralScore, debuggingImprovementScore([]domain.TestRunResult{{Passed: 1}}))

	improving := []domain.TestRunResult{{Passed: 1}, {Passed: 3}, {Passed: 5}}
	assert.Equal(t, 100.0, debuggingImprovementScore(improving))

	flat := []domain.TestRunResult{{Passed: 2}, {Passed: 2}, {Passed: 2}}
	assert.Equal(t, 0.0, debuggingImprovementScore(flat))

	mixed := []domain.TestRunResult{{Passed: 1}, {Passed: 3}, {Passed: 2}}
	assert.Equal(t, 50.0, debuggingImprovementScore(mixed))
}

func TestTerminalPatternScore(t *testing.T) {
	t.Parallel()

	assert.Equal(t, neutralScore, terminalPatternScore(nil))

	systematic := []string{"go test ./...", "git diff", "grep -n err main.go", "go test -run TestX"}
	thrashing := []string{"./run", "./run", "./run", "./run"}
	assert.Greater(t, terminalPatternScore(systematic), terminalPatternScore(thrashing))
}

func TestUsageEffectiveness(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 100.0, usageEffectiveness(50), "moderate reliance is the optimum")
	assert.Equal(t, 50.0, usageEffectiveness(0), "never using the assistant costs points")
	assert.Equal(t, 50.0, usageEffectiveness(100), "total reliance costs the same")
}

func TestScoreAICollaboration_ZeroInteractions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := &domain.SessionRecording{
		SessionID: "s1",
		Metrics:   domain.SessionMetrics{AIInteractions: 0},
	}

	dim := f.eval.scoreAICollaboration(rec)
	assert.Equal(t, 0.0, dim.Score)
	assert.Equal(t, 1.0, dim.Confidence, "no interactions is a definitive observation")
	require.Len(t, dim.Evidence, 1)
	assert.Equal(t, "No AI interactions", dim.Evidence[0].Snippet)
}

func TestScoreAICollaboration_DegradesWithoutPrompts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := &domain.SessionRecording{
		SessionID: "s1",
		Metrics:   domain.SessionMetrics{AIInteractions: 5, AIDependencyScore: 60},
	}

	dim := f.eval.scoreAICollaboration(rec)
	assert.Equal(t, neutralScore, dim.Score)
	assert.Equal(t, degradedCollaborationConfidence, dim.Confidence)
}

func TestScoreCommunication_NoRatedPrompts(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	rec := &domain.SessionRecording{
		SessionID: "s1",
		FinalCode: "// doc\ncode\ncode\ncode\ncode\n",
	}

	dim := f.eval.scoreCommunication(rec)
	assert.Equal(t, documentationScore(rec.FinalCode), dim.Score)
	assert.Equal(t, 0.4, dim.Confidence, "documentation alone is a weak signal")
}

func TestBuildConfidenceReport_ThinSession(t *testing.T) {
	t.Parallel()

	rec := &domain.SessionRecording{
		SessionID: "s1",
		Duration:  5 * time.Minute,
	}
	report := buildConfidenceReport(rec, nil)

	// Two data-quality shortfalls and three sample-size shortfalls.
	assert.InDelta(t, 0.64, report.DataQuality, 1e-9)
	assert.InDelta(t, 0.512, report.SampleSize, 1e-9)
	assert.Equal(t, 1.0, report.Consistency)
	assert.InDelta(t, report.DataQuality*report.SampleSize, report.Overall, 1e-9)
	assert.Len(t, report.Warnings, 5)
}

func TestBuildConfidenceReport_FullSession(t *testing.T) {
	t.Parallel()

	rec := goodRecording("s1")
	dims := []domain.DimensionScore{{Score: 70}, {Score: 75}, {Score: 72}, {Score: 68}}
	report := buildConfidenceReport(rec, dims)

	assert.Equal(t, 1.0, report.Overall)
	assert.Empty(t, report.Warnings)
}
