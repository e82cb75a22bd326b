package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store errors.
var (
	// ErrJobNotFound is returned when the referenced job does not exist.
	ErrJobNotFound = errors.New("job not found")

	// ErrDuplicateJob is returned by Enqueue when a live job with the same
	// dedup key already exists. The store wraps it with the existing id.
	ErrDuplicateJob = errors.New("duplicate job")
)

// QueueHealth is the per-queue operational snapshot exposed for dashboards.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Waiting   int    `json:"waiting"`
	Active    int    `json:"active"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	Delayed   int    `json:"delayed"`
	Paused    bool   `json:"paused"`
}

// JobStore is the durable queue backend. Implementations must make Dequeue
// claim jobs atomically so two consumers never both activate the same job.
type JobStore interface {
	// Enqueue persists a new pending job. When the job carries a dedup key
	// that collides with a live job, it returns the existing job's id and
	// an error wrapping ErrDuplicateJob.
	Enqueue(ctx context.Context, job *Job) (uuid.UUID, error)

	// Dequeue atomically claims up to limit due jobs from the queue,
	// marking them active and counting the attempt. Ordering follows the
	// queue's priority convention, then age.
	Dequeue(ctx context.Context, queue string, limit int) ([]*Job, error)

	// MarkCompleted finalizes a successful job.
	MarkCompleted(ctx context.Context, id uuid.UUID) error

	// MarkFailedRetry schedules a failed job for another attempt at nextRun.
	MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) error

	// MarkDeadLettered finalizes a job whose retry budget is exhausted.
	MarkDeadLettered(ctx context.Context, id uuid.UUID, errMsg string) error

	// ResetStuck returns active jobs older than the threshold to pending,
	// reclaiming work abandoned by crashed workers. Reclaimed attempts do
	// not count against the retry budget.
	ResetStuck(ctx context.Context, queue string, olderThan time.Duration) (int, error)

	// SweepRetention removes finished jobs per the given policy.
	SweepRetention(ctx context.Context, queue string, policy RetentionPolicy) error

	// Health reports the queue's live status counts.
	Health(ctx context.Context, queue string) (QueueHealth, error)
}
