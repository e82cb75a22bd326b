// Package deadletter captures jobs that exhausted their retry budget,
// persists them for audit, and supports replay and bulk purge.
package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// RetentionPeriod is how long dead letters stay queryable.
const RetentionPeriod = 30 * 24 * time.Hour

// ErrEntryNotFound is returned by Store.Get when the referenced entry is
// absent, including the case of a replay racing a purge.
var ErrEntryNotFound = errors.New("dead letter entry not found")

// ErrorDetail describes the failure that exhausted a job.
type ErrorDetail struct {
	Message string `json:"message"`
	Name    string `json:"name,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// Entry is one dead-lettered job.
type Entry struct {
	ID           uuid.UUID       `json:"id"`
	JobID        uuid.UUID       `json:"job_id"`
	Queue        string          `json:"queue"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Error        ErrorDetail     `json:"error"`
	AttemptsMade int             `json:"attempts_made"`
	FailedAt     time.Time       `json:"failed_at"`
}

// Store is the durable dead letter backend, indexed by recency for paging.
type Store interface {
	// Add persists a new entry.
	Add(ctx context.Context, entry *Entry) error

	// Get returns one entry by id.
	Get(ctx context.Context, id uuid.UUID) (*Entry, error)

	// List pages entries for a queue, most recent first. An empty queue
	// lists across all queues.
	List(ctx context.Context, queue string, offset, limit int) ([]*Entry, error)

	// Delete removes one entry, typically after a successful replay.
	Delete(ctx context.Context, id uuid.UUID) error

	// PurgeQueue removes every entry for the queue and returns the count.
	PurgeQueue(ctx context.Context, queue string) (int, error)

	// PruneExpired removes entries older than the retention period.
	PruneExpired(ctx context.Context, olderThan time.Duration) (int, error)
}
