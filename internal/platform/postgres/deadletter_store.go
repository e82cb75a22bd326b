package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/deadletter"
)

// DeadLetterStore implements deadletter.Store on the dead_letters table,
// which doubles as the long-term relational audit record.
//
// Columns: id, job_id, queue, event_type, payload, error_message,
// error_name, error_stack, attempts_made, failed_at. Indexed by
// (queue, failed_at DESC) for recency paging.
type DeadLetterStore struct {
	db DBTX
}

// NewDeadLetterStore creates a DeadLetterStore over the given connection.
func NewDeadLetterStore(db DBTX) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Add persists a new entry.
func (s *DeadLetterStore) Add(ctx context.Context, entry *deadletter.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters (
			id, job_id, queue, event_type, payload,
			error_message, error_name, error_stack, attempts_made, failed_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10)
	`,
		entry.ID, entry.JobID, entry.Queue, entry.EventType, []byte(entry.Payload),
		entry.Error.Message, entry.Error.Name, entry.Error.Stack,
		entry.AttemptsMade, entry.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead letter: %w", err)
	}
	return nil
}

// Get returns one entry by id.
func (s *DeadLetterStore) Get(ctx context.Context, id uuid.UUID) (*deadletter.Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, queue, event_type, payload,
			error_message, COALESCE(error_name, ''), COALESCE(error_stack, ''),
			attempts_made, failed_at
		FROM dead_letters WHERE id = $1
	`, id)

	entry, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", deadletter.ErrEntryNotFound, id)
	}
	return entry, err
}

// List pages entries most recent first. An empty queue lists all queues.
func (s *DeadLetterStore) List(ctx context.Context, queueName string, offset, limit int) ([]*deadletter.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, queue, event_type, payload,
			error_message, COALESCE(error_name, ''), COALESCE(error_stack, ''),
			attempts_made, failed_at
		FROM dead_letters
		WHERE ($1 = '' OR queue = $1)
		ORDER BY failed_at DESC
		OFFSET $2 LIMIT $3
	`, queueName, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*deadletter.Entry
	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dead letters: %w", err)
	}
	return entries, nil
}

// Delete removes one entry.
func (s *DeadLetterStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", deadletter.ErrEntryNotFound, id)
	}
	return nil
}

// PurgeQueue removes every entry for the queue.
func (s *DeadLetterStore) PurgeQueue(ctx context.Context, queueName string) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE queue = $1`, queueName)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead letters: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged dead letters: %w", err)
	}
	return int(n), nil
}

// PruneExpired removes entries older than the retention period.
func (s *DeadLetterStore) PruneExpired(ctx context.Context, olderThan time.Duration) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM dead_letters WHERE failed_at < $1
	`, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune dead letters: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned dead letters: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeadLetter(row rowScanner) (*deadletter.Entry, error) {
	var (
		entry   deadletter.Entry
		payload []byte
	)
	err := row.Scan(
		&entry.ID, &entry.JobID, &entry.Queue, &entry.EventType, &payload,
		&entry.Error.Message, &entry.Error.Name, &entry.Error.Stack,
		&entry.AttemptsMade, &entry.FailedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
	}
	entry.Payload = payload
	return &entry, nil
}

var _ deadletter.Store = (*DeadLetterStore)(nil)
