package evaluator

import (
	"fmt"
	"math"
	"strings"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Problem solving scoring parameters.
const (
	iterationWeight = 0.30
	debuggingWeight = 0.30
	terminalWeight  = 0.40

	// optimalSnapshotCount and snapshotSigma shape the Gaussian that rewards
	// a healthy iteration cadence: too few edits suggests copy-paste, too
	// many suggests thrashing.
	optimalSnapshotCount = 12.0
	snapshotSigma        = 8.0

	// neutralScore is the fallback when a sub-signal has no data to judge.
	neutralScore = 50.0
)

// debuggingCommandPrefixes mark commands that belong to a systematic
// test/inspect loop rather than blind re-running.
var debuggingCommandPrefixes = []string{
	"go test", "npm test", "pytest", "cargo test", "make test",
	"git diff", "git log", "grep", "cat ", "less ", "head ", "tail ",
}

// scoreProblemSolving weighs iteration cadence, debugging improvement and
// terminal discipline.
func (e *Evaluator) scoreProblemSolving(rec *domain.SessionRecording) domain.DimensionScore {
	iteration := iterationScore(len(rec.CodeSnapshots))
	debugging := debuggingImprovementScore(rec.TestRuns)
	terminal := terminalPatternScore(rec.TerminalCommands)

	score := iterationWeight*iteration + debuggingWeight*debugging + terminalWeight*terminal

	// Thin traces can only support a weak judgement.
	confidence := 0.8
	if len(rec.CodeSnapshots) < 3 || len(rec.TestRuns) < 2 {
		confidence = 0.5
	}

	evidence := []domain.Evidence{
		valueEvidence("iteration_pattern",
			fmt.Sprintf("%d code snapshot(s)", len(rec.CodeSnapshots)), iteration),
		valueEvidence("debugging_improvement",
			fmt.Sprintf("%d test run(s)", len(rec.TestRuns)), debugging),
		valueEvidence("terminal_patterns",
			fmt.Sprintf("%d terminal command(s)", len(rec.TerminalCommands)), terminal),
	}

	return domain.DimensionScore{
		Score:      clampScore(score),
		Confidence: confidence,
		Evidence:   evidence,
		Breakdown: map[string]float64{
			"iteration": iteration,
			"debugging": debugging,
			"terminal":  terminal,
		},
	}
}

// iterationScore is a Gaussian centered on the optimal snapshot count.
func iterationScore(snapshots int) float64 {
	if snapshots == 0 {
		return 0
	}
	diff := float64(snapshots) - optimalSnapshotCount
	return 100 * math.Exp(-(diff*diff)/(2*snapshotSigma*snapshotSigma))
}

// debuggingImprovementScore is the fraction of consecutive test-run pairs
// where the pass count improved, scaled to 0-100. Fewer than two runs gives
// no trend to judge, so the score is neutral.
func debuggingImprovementScore(runs []domain.TestRunResult) float64 {
	if len(runs) < 2 {
		return neutralScore
	}
	improved := 0
	for i := 1; i < len(runs); i++ {
		if runs[i].Passed > runs[i-1].Passed {
			improved++
		}
	}
	return float64(improved) / float64(len(runs)-1) * 100
}

// terminalPatternScore rewards a systematic debug loop and penalizes
// thrashing (the same command repeated back to back).
func terminalPatternScore(commands []string) float64 {
	if len(commands) == 0 {
		return neutralScore
	}

	systematic := 0
	repeats := 0
	var previous string
	for _, cmd := range commands {
		trimmed := strings.TrimSpace(cmd)
		if isDebuggingCommand(trimmed) {
			systematic++
		}
		if trimmed == previous {
			repeats++
		}
		previous = trimmed
	}

	systematicRatio := float64(systematic) / float64(len(commands))
	repeatRatio := float64(repeats) / float64(len(commands))

	return clampScore(50 + 50*systematicRatio - 100*repeatRatio)
}

func isDebuggingCommand(cmd string) bool {
	for _, prefix := range debuggingCommandPrefixes {
		if strings.HasPrefix(cmd, prefix) {
			return true
		}
	}
	return false
}
