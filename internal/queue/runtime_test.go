package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryJobStore is a minimal in-process JobStore for runtime tests. It
// mirrors the durable store's claim semantics: Dequeue marks a job active
// and counts the attempt atomically.
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

func newMemoryJobStore() *memoryJobStore {
	return &memoryJobStore{jobs: make(map[uuid.UUID]*Job)}
}

func (s *memoryJobStore) Enqueue(ctx context.Context, job *Job) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.DedupKey != "" {
		for _, existing := range s.jobs {
			live := existing.Status == StatusPending || existing.Status == StatusActive
			if live && existing.DedupKey == job.DedupKey {
				return existing.ID, ErrDuplicateJob
			}
		}
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return job.ID, nil
}

func (s *memoryJobStore) Dequeue(ctx context.Context, queue string, limit int) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var claimed []*Job
	for _, job := range s.jobs {
		if len(claimed) >= limit {
			break
		}
		if job.Queue != queue || job.Status != StatusPending || job.NextRunAt.After(now) {
			continue
		}
		job.Status = StatusActive
		job.AttemptsMade++
		copied := *job
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (s *memoryJobStore) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(id, StatusCompleted, "")
}

func (s *memoryJobStore) MarkFailedRetry(ctx context.Context, id uuid.UUID, errMsg string, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusPending
	job.LastError = errMsg
	job.NextRunAt = nextRun
	return nil
}

func (s *memoryJobStore) MarkDeadLettered(ctx context.Context, id uuid.UUID, errMsg string) error {
	return s.setStatus(id, StatusDeadLettered, errMsg)
}

func (s *memoryJobStore) ResetStuck(ctx context.Context, queue string, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (s *memoryJobStore) SweepRetention(ctx context.Context, queue string, policy RetentionPolicy) error {
	return nil
}

func (s *memoryJobStore) Health(ctx context.Context, queue string) (QueueHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	health := QueueHealth{Queue: queue}
	now := time.Now()
	for _, job := range s.jobs {
		if job.Queue != queue {
			continue
		}
		switch job.Status {
		case StatusPending:
			if job.NextRunAt.After(now) {
				health.Delayed++
			} else {
				health.Waiting++
			}
		case StatusActive:
			health.Active++
		case StatusCompleted:
			health.Completed++
		case StatusFailed, StatusDeadLettered:
			health.Failed++
		}
	}
	return health, nil
}

func (s *memoryJobStore) setStatus(id uuid.UUID, status JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = status
	if errMsg != "" {
		job.LastError = errMsg
	}
	return nil
}

func (s *memoryJobStore) get(id uuid.UUID) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *s.jobs[id]
	return &copied
}

// captureSink records dead-lettered jobs.
type captureSink struct {
	mu       sync.Mutex
	captured []*Job
}

func (c *captureSink) Capture(ctx context.Context, job *Job, jobErr error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *job
	c.captured = append(c.captured, &copied)
	return nil
}

func (c *captureSink) all() []*Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Job(nil), c.captured...)
}

func fastConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Concurrency:     2,
		RatePerSecond:   1000,
		RateBurst:       1000,
		PollInterval:    time.Millisecond,
		JanitorInterval: time.Hour,
	}
}

func publishTestJob(t *testing.T, store JobStore, queueName, eventType string, attempts AttemptsPolicy) uuid.UUID {
	t.Helper()
	publisher, err := NewPublisher(store, testLogger())
	require.NoError(t, err)
	id, err := publisher.Publish(context.Background(), queueName, eventType, map[string]string{"k": "v"},
		PublishOptions{Attempts: &attempts})
	require.NoError(t, err)
	return id
}

func TestConsumer_CompletesJob(t *testing.T) {
	t.Parallel()
	store := newMemoryJobStore()
	sink := &captureSink{}

	consumer, err := NewConsumer("test-queue", store, sink, fastConsumerConfig(), testLogger())
	require.NoError(t, err)

	handled := make(chan *Job, 1)
	consumer.Register("greet", HandlerFunc(func(ctx context.Context, job *Job) error {
		handled <- job
		return nil
	}))

	id := publishTestJob(t, store, "test-queue", "greet", DefaultAttempts())

	consumer.Start()
	defer consumer.Stop()

	select {
	case job := <-handled:
		assert.Equal(t, id, job.ID)
		assert.Equal(t, 1, job.AttemptsMade)
	case <-time.After(2 * time.Second):
		t.Fatal("job was never handled")
	}

	require.Eventually(t, func() bool {
		return store.get(id).Status == StatusCompleted
	}, 2*time.Second, time.Millisecond)
	assert.Empty(t, sink.all())
}

func TestConsumer_ExhaustedJobDeadLettersOnce(t *testing.T) {
	t.Parallel()
	store := newMemoryJobStore()
	sink := &captureSink{}

	consumer, err := NewConsumer("test-queue", store, sink, fastConsumerConfig(), testLogger())
	require.NoError(t, err)

	var mu sync.Mutex
	invocations := 0
	consumer.Register("doomed", HandlerFunc(func(ctx context.Context, job *Job) error {
		mu.Lock()
		invocations++
		mu.Unlock()
		return errors.New("handler always fails")
	}))

	id := publishTestJob(t, store, "test-queue", "doomed", AttemptsPolicy{
		MaxAttempts: 3,
		Backoff:     BackoffFixed,
		BaseDelay:   time.Millisecond,
	})

	consumer.Start()
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		return store.get(id).Status == StatusDeadLettered
	}, 5*time.Second, time.Millisecond)

	// Give any erroneous extra capture a chance to happen before asserting.
	time.Sleep(20 * time.Millisecond)

	captured := sink.all()
	require.Len(t, captured, 1, "an exhausted job must dead-letter exactly once")
	assert.Equal(t, id, captured[0].ID)
	assert.Equal(t, 3, captured[0].AttemptsMade)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, invocations, "the handler runs once per attempt")
}

func TestConsumer_NoHandlerConsumesBudget(t *testing.T) {
	t.Parallel()
	store := newMemoryJobStore()
	sink := &captureSink{}

	consumer, err := NewConsumer("test-queue", store, sink, fastConsumerConfig(), testLogger())
	require.NoError(t, err)

	id := publishTestJob(t, store, "test-queue", "unregistered", AttemptsPolicy{
		MaxAttempts: 1,
		Backoff:     BackoffFixed,
		BaseDelay:   time.Millisecond,
	})

	consumer.Start()
	defer consumer.Stop()

	require.Eventually(t, func() bool {
		return store.get(id).Status == StatusDeadLettered
	}, 2*time.Second, time.Millisecond)
	assert.Contains(t, store.get(id).LastError, "no handler registered")
}

func TestConsumer_RegisterDuplicatePanics(t *testing.T) {
	t.Parallel()
	consumer, err := NewConsumer("test-queue", newMemoryJobStore(), &captureSink{}, fastConsumerConfig(), testLogger())
	require.NoError(t, err)

	h := HandlerFunc(func(ctx context.Context, job *Job) error { return nil })
	consumer.Register("dup", h)
	assert.Panics(t, func() { consumer.Register("dup", h) })
}

func TestPublisher_Dedup(t *testing.T) {
	t.Parallel()
	store := newMemoryJobStore()
	publisher, err := NewPublisher(store, testLogger())
	require.NoError(t, err)

	ctx := context.Background()
	opts := PublishOptions{DedupKey: DedupKey("s1", "session-complete")}

	first, err := publisher.Publish(ctx, "test-queue", "session-complete", nil, opts)
	require.NoError(t, err)

	second, err := publisher.Publish(ctx, "test-queue", "session-complete", nil, opts)
	require.NoError(t, err, "a dedup collision is a satisfied publish, not an error")
	assert.Equal(t, first, second, "the existing job's id is returned")
}
