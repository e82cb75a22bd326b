package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
)

// analyzePriority is the urgency of a standard end-of-session evaluation on
// the highest-first analyze queue. Re-runs and backfills enqueue lower.
const analyzePriority = 5

// Tracker errors.
var (
	ErrNilStore     = errors.New("metrics store cannot be nil")
	ErrNilPublisher = errors.New("publisher cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
	ErrNoSession    = errors.New("no metrics for session")
)

// Tracker consumes the ordered per-session event stream and maintains the
// hidden ability/difficulty/struggle metrics. It implements queue.Handler
// for every session event type.
type Tracker struct {
	store     Store
	publisher *queue.Publisher
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string]*domain.SessionMetrics
}

// New creates a tracker over the given metrics store. The publisher carries
// best-effort difficulty-adjustment signals to downstream consumers.
func New(store Store, publisher *queue.Publisher, logger *slog.Logger) (*Tracker, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Tracker{
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "ability_tracker"),
		cache:     make(map[string]*domain.SessionMetrics),
	}, nil
}

// Handle decodes and applies one session event. Implements queue.Handler.
func (t *Tracker) Handle(ctx context.Context, job *queue.Job) error {
	event, err := domain.DecodeSessionEvent(job.EventType, job.Payload)
	if err != nil {
		return err
	}
	return t.Apply(ctx, event)
}

// Apply folds one event into the session's metrics.
func (t *Tracker) Apply(ctx context.Context, event domain.SessionEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if started, ok := event.(domain.SessionStarted); ok {
		return t.startSession(ctx, started)
	}

	metrics, err := t.load(ctx, event.SessionID())
	if err != nil {
		return err
	}
	if metrics.Completed {
		// Frozen records are read-only; late events are dropped, not errors,
		// so retried duplicates after completion cannot dead-letter.
		t.logger.Warn("dropping event for completed session",
			"session_id", event.SessionID())
		return nil
	}

	switch e := event.(type) {
	case domain.SessionStarted:
		// Handled above; unreachable but keeps the switch exhaustive.
	case domain.AIInteraction:
		t.applyInteraction(metrics, e)
	case domain.CodeChanged:
		t.applyCodeChange(metrics, e)
	case domain.TestRun:
		t.applyTestRun(metrics, e)
	case domain.QuestionAnswered:
		t.applyAnswer(ctx, metrics, e)
	case domain.SessionComplete:
		metrics.Completed = true
		t.logger.Info("session metrics frozen",
			"session_id", metrics.SessionID,
			"ability", metrics.Ability,
			"questions_answered", metrics.QuestionsAnswered)
		// The frozen record is the evaluator's input; enqueueing the analyze
		// job is part of handling this event, so a failed publish is a
		// retryable handler error, not a best-effort signal.
		if err := t.requestAnalysis(ctx, metrics); err != nil {
			return err
		}
	}

	metrics.UpdatedAt = event.OccurredAt()
	if err := t.store.Save(ctx, metrics); err != nil {
		return fmt.Errorf("failed to persist session metrics: %w", err)
	}
	return nil
}

// Metrics returns a copy of the current metrics for a session.
func (t *Tracker) Metrics(ctx context.Context, sessionID string) (*domain.SessionMetrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	metrics, err := t.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	copied := *metrics
	return &copied, nil
}

func (t *Tracker) startSession(ctx context.Context, e domain.SessionStarted) error {
	metrics := &domain.SessionMetrics{
		SessionID:             e.SessionID(),
		CandidateID:           e.CandidateID,
		Ability:               0,
		StandardError:         initialStandardError,
		CurrentDifficulty:     e.InitialDifficulty,
		RecommendedDifficulty: e.InitialDifficulty,
		StartedAt:             e.OccurredAt(),
		UpdatedAt:             e.OccurredAt(),
	}
	t.cache[metrics.SessionID] = metrics

	if err := t.store.Save(ctx, metrics); err != nil {
		return fmt.Errorf("failed to persist session metrics: %w", err)
	}
	t.logger.Info("session tracking started",
		"session_id", metrics.SessionID,
		"initial_difficulty", e.InitialDifficulty)
	return nil
}

// load returns the cached record, falling back to the durable store so a
// restarted worker picks sessions back up mid-stream.
func (t *Tracker) load(ctx context.Context, sessionID string) (*domain.SessionMetrics, error) {
	if metrics, ok := t.cache[sessionID]; ok {
		return metrics, nil
	}

	metrics, err := t.store.Load(ctx, sessionID)
	if errors.Is(err, ErrMetricsNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNoSession, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session metrics: %w", err)
	}

	t.cache[sessionID] = metrics
	return metrics, nil
}

func (t *Tracker) applyInteraction(m *domain.SessionMetrics, e domain.AIInteraction) {
	m.AIInteractions++
	m.AIDependencyScore = dependencyScore(m.AIInteractions, m.QuestionsAnswered, e.ToolUsageScore)

	if isHelpSeeking(e.Message) {
		m.AddIndicator(domain.IndicatorHelpSeeking)
	}
	if len(e.Message) > 0 && len(e.Message) < shortMessageLength {
		m.AddIndicator(domain.IndicatorShortMessages)
	}
}

func (t *Tracker) applyCodeChange(m *domain.SessionMetrics, e domain.CodeChanged) {
	// Snapshots feed the evaluator; they never move the ability estimate.
	m.CodeSnapshots = append(m.CodeSnapshots, domain.CodeSnapshot{
		Path:       e.Path,
		Content:    e.Content,
		Tag:        e.Tag,
		CapturedAt: e.OccurredAt(),
	})
}

func (t *Tracker) applyTestRun(m *domain.SessionMetrics, e domain.TestRun) {
	run := domain.TestRunResult{
		Passed: e.Passed,
		Failed: e.Failed,
		Total:  e.Total,
		RunAt:  e.OccurredAt(),
	}
	m.TestRuns = append(m.TestRuns, run)
	m.TestFailureRateEMA = failureRateEMA(m.TestFailureRateEMA, run)

	if e.Failed > e.Passed && e.Failed > 2 {
		m.AddIndicator(domain.IndicatorHighFailures)
	}
}

func (t *Tracker) applyAnswer(ctx context.Context, m *domain.SessionMetrics, e domain.QuestionAnswered) {
	m.QuestionsAnswered++
	if e.Correct {
		m.QuestionsCorrect++
	} else {
		m.QuestionsWrong++
	}

	m.ResponseTimeAvg = runningAverage(m.ResponseTimeAvg, e.ResponseTime, m.QuestionsAnswered)
	if e.ResponseTime > slowResponseThreshold {
		m.AddIndicator(domain.IndicatorSlowResponses)
	}

	m.Ability = updateAbility(m.Ability, e.Difficulty, e.Correct)
	m.StandardError = standardError(m.QuestionsAnswered)
	m.CurrentDifficulty = e.Difficulty
	m.RecommendedDifficulty = recommendDifficulty(m.Ability)

	gap := m.RecommendedDifficulty - m.CurrentDifficulty
	if gap < 0 {
		gap = -gap
	}
	if gap >= difficultyAdjustmentGap {
		t.signalDifficultyAdjustment(ctx, m)
	}
}

// requestAnalysis enqueues the evaluation job for a completed session. The
// dedup key suppresses duplicates from retried session-complete events.
func (t *Tracker) requestAnalysis(ctx context.Context, m *domain.SessionMetrics) error {
	payload := map[string]any{
		"session_id":   m.SessionID,
		"candidate_id": m.CandidateID,
	}
	_, err := t.publisher.Publish(ctx, queue.QueueAnalyze, "analyze-session", payload,
		queue.PublishOptions{
			Priority: analyzePriority,
			DedupKey: queue.DedupKey(m.SessionID, "analyze-session"),
		})
	if err != nil {
		return fmt.Errorf("failed to enqueue analysis for session %s: %w", m.SessionID, err)
	}
	return nil
}

// signalDifficultyAdjustment raises a best-effort signal for a downstream
// consumer to act on. Publish failures are logged and never fail the event.
func (t *Tracker) signalDifficultyAdjustment(ctx context.Context, m *domain.SessionMetrics) {
	payload := map[string]any{
		"session_id":             m.SessionID,
		"current_difficulty":     m.CurrentDifficulty,
		"recommended_difficulty": m.RecommendedDifficulty,
		"ability":                m.Ability,
	}
	_, err := t.publisher.Publish(ctx, queue.QueueNotifications, "difficulty-adjustment", payload,
		queue.PublishOptions{
			DedupKey: queue.DedupKeyAt(m.SessionID, "difficulty-adjustment", time.Now()),
		})
	if err != nil {
		t.logger.Warn("failed to publish difficulty adjustment signal",
			"session_id", m.SessionID,
			"error", err)
	}
}
