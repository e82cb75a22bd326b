// Package queue implements the durable job queue: the job model, typed
// publishing with per-job retry/backoff/priority/dedup options, and the
// per-queue worker runtime that dispatches jobs to handlers.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Well-known queue names.
const (
	QueueSessionEvents = "session-events"
	QueueAnalyze       = "analyze"
	QueueInvite        = "invite"
	QueueNotifications = "notifications"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusActive       JobStatus = "active"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
	StatusDeadLettered JobStatus = "dead_lettered"
)

// BackoffType selects the retry delay curve.
type BackoffType string

const (
	BackoffExponential BackoffType = "exponential"
	BackoffFixed       BackoffType = "fixed"
)

// AttemptsPolicy is a job's retry budget and backoff shape.
type AttemptsPolicy struct {
	// MaxAttempts counts the first execution plus retries. Defaults to 3.
	MaxAttempts int `json:"max_attempts"`

	Backoff   BackoffType   `json:"backoff"`
	BaseDelay time.Duration `json:"base_delay"`
	MaxDelay  time.Duration `json:"max_delay"`
}

// DefaultAttempts is the attempts policy applied when a publisher provides
// none: 3 attempts with exponential backoff from 5s capped at 5m.
func DefaultAttempts() AttemptsPolicy {
	return AttemptsPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffExponential,
		BaseDelay:   5 * time.Second,
		MaxDelay:    5 * time.Minute,
	}
}

// Delay returns the backoff before the given retry. attemptsMade is the
// number of attempts already executed, so the first retry passes 1.
func (p AttemptsPolicy) Delay(attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	delay := p.BaseDelay
	if p.Backoff == BackoffExponential {
		for i := 1; i < attemptsMade; i++ {
			delay *= 2
			if p.MaxDelay > 0 && delay >= p.MaxDelay {
				return p.MaxDelay
			}
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// RetentionPolicy controls how long finished jobs stay queryable. Completed
// jobs are cheap to discard; failed jobs are retained longer for diagnostics.
type RetentionPolicy struct {
	// KeepCompletedCount keeps at most this many most-recent completed jobs
	// per queue. Zero keeps by age only.
	KeepCompletedCount int `json:"keep_completed_count"`

	// RemoveCompletedAfter ages out completed jobs. Zero means no age limit.
	RemoveCompletedAfter time.Duration `json:"remove_completed_after"`

	// RetainFailedFor ages out failed jobs, typically much later than
	// completed ones.
	RetainFailedFor time.Duration `json:"retain_failed_for"`
}

// DefaultRetention keeps the last 1000 completed jobs for a day and failed
// jobs for a week.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{
		KeepCompletedCount:   1000,
		RemoveCompletedAfter: 24 * time.Hour,
		RetainFailedFor:      7 * 24 * time.Hour,
	}
}

// Job is one durable unit of queued work.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Queue     string          `json:"queue"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`

	// DedupKey suppresses duplicate publishes while a job with the same key
	// is still live. Dedup reduces but does not eliminate duplicates across
	// retries and crashes; handlers needing exactly-once-ish behavior must
	// use the lock/idempotency layer.
	DedupKey string `json:"dedup_key,omitempty"`

	Attempts AttemptsPolicy `json:"attempts"`

	// Priority orders dispatch within a queue. Most queues process lower
	// values sooner (priority 1 before priority 5). The analyze and invite
	// queues invert this: priority means urgency and higher values are
	// processed first. See OrderForQueue.
	Priority int `json:"priority"`

	Retention RetentionPolicy `json:"retention"`

	Status       JobStatus `json:"status"`
	AttemptsMade int       `json:"attempts_made"`
	LastError    string    `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	NextRunAt time.Time `json:"next_run_at"`
}

// HighestFirstQueues lists the queues whose priority convention is
// urgency-highest-first instead of the default lowest-first.
var HighestFirstQueues = map[string]bool{
	QueueAnalyze: true,
	QueueInvite:  true,
}

// OrderForQueue returns the SQL sort direction for a queue's priority column.
func OrderForQueue(queue string) string {
	if HighestFirstQueues[queue] {
		return "DESC"
	}
	return "ASC"
}

// DedupKey derives the standard dedup key from a session id and event type.
// Non-idempotent repeatable events should use DedupKeyAt instead so repeats
// are not suppressed.
func DedupKey(sessionID, eventType string) string {
	return fmt.Sprintf("%s:%s", sessionID, eventType)
}

// DedupKeyAt derives a dedup key that includes the event timestamp, for
// events that legitimately repeat within a session (test runs, code changes).
func DedupKeyAt(sessionID, eventType string, at time.Time) string {
	return fmt.Sprintf("%s:%s:%d", sessionID, eventType, at.UnixNano())
}
