package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureJobStore records enqueued jobs; the tracker only publishes.
type captureJobStore struct {
	mu   sync.Mutex
	jobs []*queue.Job
}

func (s *captureJobStore) Enqueue(ctx context.Context, job *queue.Job) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs = append(s.jobs, &copied)
	return job.ID, nil
}

func (s *captureJobStore) Dequeue(ctx context.Context, q string, limit int) ([]*queue.Job, error) {
	return nil, nil
}
func (s *captureJobStore) MarkCompleted(ctx context.Context, id uuid.UUID) error { return nil }
func (s *captureJobStore) MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) error {
	return nil
}
func (s *captureJobStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, errMsg string) error {
	return nil
}
func (s *captureJobStore) ResetStuck(ctx context.Context, q string, olderThan time.Duration) (int, error) {
	return 0, nil
}
func (s *captureJobStore) SweepRetention(ctx context.Context, q string, policy queue.RetentionPolicy) error {
	return nil
}
func (s *captureJobStore) Health(ctx context.Context, q string) (queue.QueueHealth, error) {
	return queue.QueueHealth{}, nil
}

func (s *captureJobStore) published(queueName string) []*queue.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*queue.Job
	for _, job := range s.jobs {
		if job.Queue == queueName {
			out = append(out, job)
		}
	}
	return out
}

func newTestTracker(t *testing.T) (*Tracker, *captureJobStore) {
	t.Helper()
	jobs := &captureJobStore{}
	publisher, err := queue.NewPublisher(jobs, testLogger())
	require.NoError(t, err)
	tr, err := New(NewMemoryStore(), publisher, testLogger())
	require.NoError(t, err)
	return tr, jobs
}

func meta(sessionID string, at time.Time) domain.EventMeta {
	return domain.EventMeta{Session: sessionID, Timestamp: at}
}

func startSession(t *testing.T, tr *Tracker, sessionID string) time.Time {
	t.Helper()
	at := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	err := tr.Apply(context.Background(), domain.SessionStarted{
		EventMeta:         meta(sessionID, at),
		CandidateID:       "cand-1",
		InitialDifficulty: 5,
	})
	require.NoError(t, err)
	return at
}

func TestTracker_SessionStarted(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)
	startSession(t, tr, "s1")

	m, err := tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "cand-1", m.CandidateID)
	assert.Equal(t, 0.0, m.Ability)
	assert.Equal(t, 1.5, m.StandardError)
	assert.Equal(t, 5, m.CurrentDifficulty)
	assert.Equal(t, 5, m.RecommendedDifficulty)
}

func TestTracker_UnknownSession(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)

	err := tr.Apply(context.Background(), domain.TestRun{
		EventMeta: meta("ghost", time.Now()),
		Passed:    1, Total: 1,
	})
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestTracker_QuestionAnswered(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)
	at := startSession(t, tr, "s1")

	err := tr.Apply(context.Background(), domain.QuestionAnswered{
		EventMeta:    meta("s1", at.Add(time.Minute)),
		QuestionID:   "q1",
		Difficulty:   8,
		Correct:      true,
		ResponseTime: 30 * time.Second,
	})
	require.NoError(t, err)

	m, err := tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.QuestionsAnswered)
	assert.Equal(t, 1, m.QuestionsCorrect)
	assert.Greater(t, m.Ability, 0.0, "a correct hard answer raises theta")
	assert.Equal(t, 1.5, m.StandardError, "SE is 1.5/sqrt(1) after one answer")
	assert.Equal(t, 8, m.CurrentDifficulty)
	assert.Equal(t, 30*time.Second, m.ResponseTimeAvg)
}

func TestTracker_SlowResponseIndicator(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)
	at := startSession(t, tr, "s1")

	err := tr.Apply(context.Background(), domain.QuestionAnswered{
		EventMeta:    meta("s1", at.Add(time.Minute)),
		Difficulty:   5,
		Correct:      false,
		ResponseTime: 4 * time.Minute,
	})
	require.NoError(t, err)

	m, err := tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, m.HasIndicator(domain.IndicatorSlowResponses))
}

func TestTracker_DifficultyAdjustmentSignal(t *testing.T) {
	t.Parallel()
	tr, jobs := newTestTracker(t)
	at := startSession(t, tr, "s1")

	// A streak of correct hard answers opens a gap between the current and
	// recommended difficulty.
	for i := 0; i < 6; i++ {
		err := tr.Apply(context.Background(), domain.QuestionAnswered{
			EventMeta:    meta("s1", at.Add(time.Duration(i+1)*time.Minute)),
			Difficulty:   3,
			Correct:      true,
			ResponseTime: 10 * time.Second,
		})
		require.NoError(t, err)
	}

	signals := jobs.published(queue.QueueNotifications)
	assert.NotEmpty(t, signals, "a widening gap must raise an adjustment signal")
	assert.Equal(t, "difficulty-adjustment", signals[0].EventType)
}

func TestTracker_AIInteraction(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)
	at := startSession(t, tr, "s1")

	err := tr.Apply(context.Background(), domain.AIInteraction{
		EventMeta:      meta("s1", at.Add(time.Minute)),
		Message:        "help im stuck",
		ToolUsageScore: 10,
	})
	require.NoError(t, err)

	m, err := tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.AIInteractions)
	assert.True(t, m.HasIndicator(domain.IndicatorHelpSeeking))
	assert.True(t, m.HasIndicator(domain.IndicatorShortMessages))
	assert.Greater(t, m.AIDependencyScore, 0.0)
}

func TestTracker_TestRunIndicators(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)
	at := startSession(t, tr, "s1")

	err := tr.Apply(context.Background(), domain.TestRun{
		EventMeta: meta("s1", at.Add(time.Minute)),
		Passed:    1, Failed: 4, Total: 5,
	})
	require.NoError(t, err)

	m, err := tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, m.HasIndicator(domain.IndicatorHighFailures))
	assert.InDelta(t, 0.24, m.TestFailureRateEMA, 1e-9)
	assert.Len(t, m.TestRuns, 1)
}

func TestTracker_SessionCompleteFreezesAndEnqueuesAnalysis(t *testing.T) {
	t.Parallel()
	tr, jobs := newTestTracker(t)
	at := startSession(t, tr, "s1")

	err := tr.Apply(context.Background(), domain.SessionComplete{
		EventMeta: meta("s1", at.Add(time.Hour)),
	})
	require.NoError(t, err)

	m, err := tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, m.Completed)

	analyze := jobs.published(queue.QueueAnalyze)
	require.Len(t, analyze, 1, "completion must enqueue exactly one analyze job")
	assert.Equal(t, "analyze-session", analyze[0].EventType)
	assert.JSONEq(t, `{"session_id":"s1","candidate_id":"cand-1"}`, string(analyze[0].Payload))

	// Late events against the frozen record are dropped, not errors, so
	// retried duplicates cannot dead-letter.
	err = tr.Apply(context.Background(), domain.TestRun{
		EventMeta: meta("s1", at.Add(2 * time.Hour)),
		Passed:    1, Total: 1,
	})
	require.NoError(t, err)

	m, err = tr.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, m.TestRuns, "frozen metrics must not change")
}

func TestTracker_HandleDecodesJobPayload(t *testing.T) {
	t.Parallel()
	tr, _ := newTestTracker(t)

	job := &queue.Job{
		EventType: domain.EventSessionStarted,
		Payload:   []byte(`{"session_id":"s9","timestamp":"2026-08-01T10:00:00Z","candidate_id":"c9","initial_difficulty":4}`),
	}
	require.NoError(t, tr.Handle(context.Background(), job))

	m, err := tr.Metrics(context.Background(), "s9")
	require.NoError(t, err)
	assert.Equal(t, "c9", m.CandidateID)
	assert.Equal(t, 4, m.CurrentDifficulty)

	// Malformed payloads surface as validation errors.
	bad := &queue.Job{EventType: "no-such-event", Payload: []byte(`{}`)}
	err = tr.Handle(context.Background(), bad)
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestTracker_PersistsAcrossInstances(t *testing.T) {
	t.Parallel()
	store := NewMemoryStore()
	jobs := &captureJobStore{}
	publisher, err := queue.NewPublisher(jobs, testLogger())
	require.NoError(t, err)

	first, err := New(store, publisher, testLogger())
	require.NoError(t, err)
	startSession(t, first, "s1")

	// A fresh tracker over the same store picks the session back up.
	second, err := New(store, publisher, testLogger())
	require.NoError(t, err)
	m, err := second.Metrics(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "cand-1", m.CandidateID)
}
