package deadletter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/metrics"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
)

// Service errors.
var (
	ErrNilStore     = errors.New("dead letter store cannot be nil")
	ErrNilPublisher = errors.New("publisher cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
)

// Alerter is notified when a designated critical job dead-letters. The slog
// implementation below is the default; an on-call pager integration slots in
// behind the same interface.
type Alerter interface {
	Alert(ctx context.Context, entry *Entry)
}

// LogAlerter raises alerts as error-level log lines.
type LogAlerter struct {
	Logger *slog.Logger
}

func (a *LogAlerter) Alert(ctx context.Context, entry *Entry) {
	a.Logger.Error("CRITICAL JOB DEAD-LETTERED",
		"queue", entry.Queue,
		"event_type", entry.EventType,
		"job_id", entry.JobID,
		"attempts_made", entry.AttemptsMade,
		"error", entry.Error.Message)
}

// Service persists exhausted jobs, raises alerts for critical names, and
// supports replaying entries back onto their queue with a fresh attempts
// budget.
type Service struct {
	store     Store
	publisher *queue.Publisher
	alerter   Alerter
	critical  map[string]bool
	logger    *slog.Logger
}

// NewService creates the dead letter service. criticalNames lists queue or
// event-type names whose dead-lettering must raise an alert.
func NewService(
	store Store,
	publisher *queue.Publisher,
	alerter Alerter,
	criticalNames []string,
	logger *slog.Logger,
) (*Service, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if alerter == nil {
		alerter = &LogAlerter{Logger: logger}
	}

	critical := make(map[string]bool, len(criticalNames))
	for _, name := range criticalNames {
		critical[name] = true
	}

	return &Service{
		store:     store,
		publisher: publisher,
		alerter:   alerter,
		critical:  critical,
		logger:    logger.With("component", "dead_letter_service"),
	}, nil
}

// Capture persists the exhausted job and alerts when its queue or event type
// is designated critical. Implements queue.DeadLetterSink.
func (s *Service) Capture(ctx context.Context, job *queue.Job, jobErr error) error {
	entry := &Entry{
		ID:        uuid.New(),
		JobID:     job.ID,
		Queue:     job.Queue,
		EventType: job.EventType,
		Payload:   job.Payload,
		Error: ErrorDetail{
			Message: jobErr.Error(),
			Name:    fmt.Sprintf("%T", jobErr),
		},
		AttemptsMade: job.AttemptsMade,
		FailedAt:     time.Now().UTC(),
	}

	if err := s.store.Add(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist dead letter: %w", err)
	}
	metrics.DeadLetters.WithLabelValues(job.Queue).Inc()

	if s.critical[job.Queue] || s.critical[job.EventType] {
		s.alerter.Alert(ctx, entry)
	}

	return nil
}

// Replay re-enqueues the entry's payload on its original queue with a fresh
// attempts budget and removes the entry on success.
func (s *Service) Replay(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	entry, err := s.store.Get(ctx, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to load dead letter %s: %w", id, err)
	}

	jobID, err := s.publisher.Publish(ctx, entry.Queue, entry.EventType, entry.Payload, queue.PublishOptions{})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to replay dead letter %s: %w", id, err)
	}

	if err := s.store.Delete(ctx, id); err != nil {
		// The job is already requeued; a stale entry is an audit artifact,
		// not a correctness problem.
		s.logger.Warn("replayed dead letter could not be deleted",
			"entry_id", id,
			"error", err)
	}

	s.logger.Info("dead letter replayed",
		"entry_id", id,
		"new_job_id", jobID,
		"queue", entry.Queue)
	return jobID, nil
}

// Purge removes every dead letter for the queue.
func (s *Service) Purge(ctx context.Context, queueName string) (int, error) {
	n, err := s.store.PurgeQueue(ctx, queueName)
	if err != nil {
		return 0, fmt.Errorf("failed to purge queue %q: %w", queueName, err)
	}
	s.logger.Info("dead letter queue purged", "queue", queueName, "removed", n)
	return n, nil
}

// List pages entries for a queue, most recent first.
func (s *Service) List(ctx context.Context, queueName string, offset, limit int) ([]*Entry, error) {
	return s.store.List(ctx, queueName, offset, limit)
}

// PruneExpired removes entries past the 30-day retention.
func (s *Service) PruneExpired(ctx context.Context) (int, error) {
	return s.store.PruneExpired(ctx, RetentionPeriod)
}

// RunPruner enforces the retention window on the given interval until ctx is
// cancelled. Runs as a goroutine alongside the queue consumers.
func (s *Service) RunPruner(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("dead letter pruner started",
		"interval", interval,
		"retention", RetentionPeriod)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("dead letter pruner stopped")
			return
		case <-ticker.C:
			n, err := s.PruneExpired(ctx)
			if err != nil {
				s.logger.Error("failed to prune expired dead letters", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired dead letters pruned", "removed", n)
			}
		}
	}
}
