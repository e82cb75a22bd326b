package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Publisher errors.
var (
	ErrNilStore   = errors.New("job store cannot be nil")
	ErrNilLogger  = errors.New("logger cannot be nil")
	ErrEmptyQueue = errors.New("queue name cannot be empty")
	ErrEmptyEvent = errors.New("event type cannot be empty")
)

// PublishOptions tunes one published job. The zero value applies the
// defaults documented on each policy type.
type PublishOptions struct {
	// Attempts overrides the default retry budget and backoff.
	Attempts *AttemptsPolicy

	// Priority orders dispatch within the queue; see Job.Priority for the
	// per-queue convention.
	Priority int

	// DedupKey suppresses duplicate live publishes. Use the DedupKey /
	// DedupKeyAt helpers to derive it.
	DedupKey string

	// Retention overrides the default finished-job retention.
	Retention *RetentionPolicy
}

// Publisher enqueues durable jobs. Its only side effect is the durable
// enqueue; no business logic runs at publish time.
type Publisher struct {
	store  JobStore
	logger *slog.Logger
}

// NewPublisher creates a publisher over the given durable store.
func NewPublisher(store JobStore, logger *slog.Logger) (*Publisher, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Publisher{
		store:  store,
		logger: logger.With("component", "publisher"),
	}, nil
}

// Publish serializes payload and enqueues it on the named queue. A dedup
// collision with a live job is not an error: the existing job's id is
// returned so callers can treat the publish as satisfied.
func (p *Publisher) Publish(
	ctx context.Context,
	queue string,
	eventType string,
	payload any,
	opts PublishOptions,
) (uuid.UUID, error) {
	if queue == "" {
		return uuid.Nil, ErrEmptyQueue
	}
	if eventType == "" {
		return uuid.Nil, ErrEmptyEvent
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	attempts := DefaultAttempts()
	if opts.Attempts != nil {
		attempts = *opts.Attempts
		if attempts.MaxAttempts <= 0 {
			attempts.MaxAttempts = DefaultAttempts().MaxAttempts
		}
	}
	retention := DefaultRetention()
	if opts.Retention != nil {
		retention = *opts.Retention
	}

	now := time.Now().UTC()
	job := &Job{
		ID:        uuid.New(),
		Queue:     queue,
		EventType: eventType,
		Payload:   data,
		DedupKey:  opts.DedupKey,
		Attempts:  attempts,
		Priority:  opts.Priority,
		Retention: retention,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		NextRunAt: now,
	}

	id, err := p.store.Enqueue(ctx, job)
	if err != nil {
		if errors.Is(err, ErrDuplicateJob) {
			p.logger.Debug("publish deduplicated against live job",
				"queue", queue,
				"event_type", eventType,
				"dedup_key", opts.DedupKey,
				"existing_job_id", id)
			return id, nil
		}
		return uuid.Nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	p.logger.Debug("job published",
		"job_id", id,
		"queue", queue,
		"event_type", eventType,
		"priority", opts.Priority)
	return id, nil
}
