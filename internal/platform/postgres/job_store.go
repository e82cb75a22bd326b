package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/logger"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
)

// JobStore implements queue.JobStore on the jobs table.
//
// Columns: id, queue, event_type, payload, dedup_key, priority,
// max_attempts, backoff_type, base_delay_ms, max_delay_ms,
// keep_completed_count, remove_completed_after_ms, retain_failed_for_ms,
// status, attempts_made, last_error, created_at, updated_at, next_run_at.
type JobStore struct {
	db DBTX
}

// NewJobStore creates a JobStore over the given connection.
func NewJobStore(db DBTX) *JobStore {
	return &JobStore{db: db}
}

// Enqueue persists a new pending job, deduplicating against live jobs with
// the same dedup key.
func (s *JobStore) Enqueue(ctx context.Context, job *queue.Job) (uuid.UUID, error) {
	log := logger.FromContext(ctx)

	// SELECT-then-INSERT leaves a small window where two concurrent
	// publishers can both miss a live duplicate and insert. Dedup keys are
	// best-effort here; the idempotency layer is authoritative for
	// exactly-once execution. A partial unique index on (queue, dedup_key)
	// WHERE status IN ('pending', 'active') plus ON CONFLICT would close
	// the window at the storage layer if the redundancy ever hurts.
	if job.DedupKey != "" {
		var existing uuid.UUID
		err := s.db.QueryRowContext(ctx, `
			SELECT id FROM jobs
			WHERE queue = $1 AND dedup_key = $2 AND status IN ('pending', 'active')
			LIMIT 1
		`, job.Queue, job.DedupKey).Scan(&existing)
		switch {
		case err == nil:
			return existing, fmt.Errorf("%w: dedup key %q", queue.ErrDuplicateJob, job.DedupKey)
		case err != sql.ErrNoRows:
			return uuid.Nil, fmt.Errorf("failed to check dedup key: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, queue, event_type, payload, dedup_key, priority,
			max_attempts, backoff_type, base_delay_ms, max_delay_ms,
			keep_completed_count, remove_completed_after_ms, retain_failed_for_ms,
			status, attempts_made, created_at, updated_at, next_run_at
		) VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11, $12, $13, $14, 0, $15, $15, $16)
	`,
		job.ID, job.Queue, job.EventType, []byte(job.Payload), job.DedupKey, job.Priority,
		job.Attempts.MaxAttempts, string(job.Attempts.Backoff),
		job.Attempts.BaseDelay.Milliseconds(), job.Attempts.MaxDelay.Milliseconds(),
		job.Retention.KeepCompletedCount,
		job.Retention.RemoveCompletedAfter.Milliseconds(),
		job.Retention.RetainFailedFor.Milliseconds(),
		string(queue.StatusPending), job.CreatedAt, job.NextRunAt,
	)
	if err != nil {
		log.Error("failed to enqueue job",
			"job_id", job.ID,
			"queue", job.Queue,
			"error", err)
		return uuid.Nil, fmt.Errorf("failed to insert job: %w", err)
	}

	return job.ID, nil
}

// Dequeue atomically claims up to limit due jobs. SKIP LOCKED keeps
// concurrent consumers from activating the same job twice.
func (s *JobStore) Dequeue(ctx context.Context, queueName string, limit int) ([]*queue.Job, error) {
	query := fmt.Sprintf(`
		UPDATE jobs SET
			status = 'active',
			attempts_made = attempts_made + 1,
			updated_at = NOW()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE queue = $1 AND status = 'pending' AND next_run_at <= NOW()
			ORDER BY priority %s, created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, queue, event_type, payload, COALESCE(dedup_key, ''), priority,
			max_attempts, backoff_type, base_delay_ms, max_delay_ms,
			keep_completed_count, remove_completed_after_ms, retain_failed_for_ms,
			status, attempts_made, COALESCE(last_error, ''), created_at, updated_at, next_run_at
	`, queue.OrderForQueue(queueName))

	rows, err := s.db.QueryContext(ctx, query, queueName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue from %q: %w", queueName, err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dequeued jobs: %w", err)
	}

	return jobs, nil
}

// MarkCompleted finalizes a successful job.
func (s *JobStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(ctx, id, queue.StatusCompleted, "")
}

// MarkFailedRetry returns the job to pending with its next run time and the
// failure message. The attempt was already counted at dequeue.
func (s *JobStore) MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending', last_error = $2, next_run_at = $3, updated_at = NOW()
		WHERE id = $1
	`, id, errMsg, nextRun)
	if err != nil {
		return fmt.Errorf("failed to schedule job retry: %w", err)
	}
	return requireRow(result, id)
}

// MarkDeadLettered finalizes an exhausted job.
func (s *JobStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.setStatus(ctx, id, queue.StatusDeadLettered, errMsg)
}

// ResetStuck returns abandoned active jobs to pending. The reclaimed attempt
// is handed back so a crash does not consume retry budget.
func (s *JobStore) ResetStuck(ctx context.Context, queueName string, olderThan time.Duration) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = 'pending',
			attempts_made = GREATEST(attempts_made - 1, 0),
			last_error = 'reset after worker crash',
			updated_at = NOW()
		WHERE queue = $1 AND status = 'active' AND updated_at < $2
	`, queueName, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to reset stuck jobs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reset jobs: %w", err)
	}
	return int(n), nil
}

// SweepRetention removes finished jobs. Per-job retention columns take
// precedence; the supplied policy fills in for jobs stored without one.
func (s *JobStore) SweepRetention(ctx context.Context, queueName string, policy queue.RetentionPolicy) error {
	// Age out completed jobs.
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE queue = $1 AND status = 'completed'
		  AND updated_at < NOW() - make_interval(secs =>
			COALESCE(NULLIF(remove_completed_after_ms, 0), $2) / 1000.0)
	`, queueName, policy.RemoveCompletedAfter.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to age out completed jobs: %w", err)
	}

	// Cap the completed backlog by count.
	if policy.KeepCompletedCount > 0 {
		_, err = s.db.ExecContext(ctx, `
			DELETE FROM jobs
			WHERE queue = $1 AND status = 'completed' AND id NOT IN (
				SELECT id FROM jobs
				WHERE queue = $1 AND status = 'completed'
				ORDER BY updated_at DESC
				LIMIT $2
			)
		`, queueName, policy.KeepCompletedCount)
		if err != nil {
			return fmt.Errorf("failed to cap completed jobs: %w", err)
		}
	}

	// Failed jobs are retained longer for diagnostics.
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM jobs
		WHERE queue = $1 AND status IN ('failed', 'dead_lettered')
		  AND updated_at < NOW() - make_interval(secs =>
			COALESCE(NULLIF(retain_failed_for_ms, 0), $2) / 1000.0)
	`, queueName, policy.RetainFailedFor.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to age out failed jobs: %w", err)
	}

	return nil
}

// Health reports the queue's live status counts.
func (s *JobStore) Health(ctx context.Context, queueName string) (queue.QueueHealth, error) {
	health := queue.QueueHealth{Queue: queueName}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending' AND next_run_at <= NOW()),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status IN ('failed', 'dead_lettered')),
			COUNT(*) FILTER (WHERE status = 'pending' AND next_run_at > NOW())
		FROM jobs WHERE queue = $1
	`, queueName).Scan(&health.Waiting, &health.Active, &health.Completed, &health.Failed, &health.Delayed)
	if err != nil {
		return queue.QueueHealth{}, fmt.Errorf("failed to read queue health: %w", err)
	}

	return health, nil
}

func (s *JobStore) setStatus(ctx context.Context, id uuid.UUID, status queue.JobStatus, errMsg string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET status = $2, last_error = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1
	`, id, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return requireRow(result, id)
}

func requireRow(result sql.Result, id uuid.UUID) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", queue.ErrJobNotFound, id)
	}
	return nil
}

func scanJob(rows *sql.Rows) (*queue.Job, error) {
	var (
		job               queue.Job
		payload           []byte
		backoff           string
		baseDelayMS       int64
		maxDelayMS        int64
		removeCompletedMS int64
		retainFailedMS    int64
		status            string
	)
	err := rows.Scan(
		&job.ID, &job.Queue, &job.EventType, &payload, &job.DedupKey, &job.Priority,
		&job.Attempts.MaxAttempts, &backoff, &baseDelayMS, &maxDelayMS,
		&job.Retention.KeepCompletedCount, &removeCompletedMS, &retainFailedMS,
		&status, &job.AttemptsMade, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt, &job.NextRunAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job row: %w", err)
	}

	job.Payload = payload
	job.Attempts.Backoff = queue.BackoffType(backoff)
	job.Attempts.BaseDelay = time.Duration(baseDelayMS) * time.Millisecond
	job.Attempts.MaxDelay = time.Duration(maxDelayMS) * time.Millisecond
	job.Retention.RemoveCompletedAfter = time.Duration(removeCompletedMS) * time.Millisecond
	job.Retention.RetainFailedFor = time.Duration(retainFailedMS) * time.Millisecond
	job.Status = queue.JobStatus(status)
	return &job, nil
}

var _ queue.JobStore = (*JobStore)(nil)
