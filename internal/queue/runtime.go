package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/logger"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/metrics"
)

// Handler processes jobs of one event type. Returning an error consumes one
// attempt from the job's retry budget.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

func (f HandlerFunc) Handle(ctx context.Context, job *Job) error { return f(ctx, job) }

// DeadLetterSink receives jobs whose retry budget is exhausted.
type DeadLetterSink interface {
	Capture(ctx context.Context, job *Job, jobErr error) error
}

// ErrNoHandler is returned when a job's event type has no registered handler.
var ErrNoHandler = errors.New("no handler registered for event type")

// ConsumerConfig tunes one queue's consumer loop.
type ConsumerConfig struct {
	// Concurrency bounds in-flight jobs for this consumer. Defaults to 4.
	Concurrency int

	// RatePerSecond and RateBurst parameterize the token-bucket limiter
	// protecting downstream dependencies. Defaults: 10/s, burst 20.
	RatePerSecond float64
	RateBurst     int

	// PollInterval is the idle delay between store polls. Defaults to 1s.
	PollInterval time.Duration

	// StuckJobAge is how long a job may stay active before the janitor
	// resets it to pending. Defaults to 30m.
	StuckJobAge time.Duration

	// JanitorInterval is how often the stuck-job and retention sweeps run.
	// Defaults to 5m.
	JanitorInterval time.Duration
}

func (c ConsumerConfig) withDefaults() ConsumerConfig {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = 10
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 20
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.StuckJobAge <= 0 {
		c.StuckJobAge = 30 * time.Minute
	}
	if c.JanitorInterval <= 0 {
		c.JanitorInterval = 5 * time.Minute
	}
	return c
}

// Consumer is one queue's logical consumer: it pulls due jobs from the store
// under a concurrency bound and a rate limiter, and dispatches them to
// handlers keyed by event type.
type Consumer struct {
	queue    string
	store    JobStore
	dlq      DeadLetterSink
	config   ConsumerConfig
	limiter  *rate.Limiter
	handlers map[string]Handler
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	sem    chan struct{}
}

// NewConsumer creates a consumer for the named queue.
func NewConsumer(
	queueName string,
	store JobStore,
	dlq DeadLetterSink,
	config ConsumerConfig,
	log *slog.Logger,
) (*Consumer, error) {
	if queueName == "" {
		return nil, ErrEmptyQueue
	}
	if store == nil {
		return nil, ErrNilStore
	}
	if dlq == nil {
		return nil, errors.New("dead letter sink cannot be nil")
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	config = config.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		queue:    queueName,
		store:    store,
		dlq:      dlq,
		config:   config,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), config.RateBurst),
		handlers: make(map[string]Handler),
		logger:   log.With("component", "consumer", "queue", queueName),
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, config.Concurrency),
	}, nil
}

// Register binds a handler to an event type. Panics on duplicate
// registration: handler wiring is a startup-time programming error, not a
// runtime condition.
func (c *Consumer) Register(eventType string, h Handler) {
	if _, exists := c.handlers[eventType]; exists {
		panic(fmt.Sprintf("handler already registered for event type %q", eventType))
	}
	c.handlers[eventType] = h
}

// Start launches the polling loop and the janitor.
func (c *Consumer) Start() {
	c.wg.Add(2)
	go c.pollLoop()
	go c.janitor()
	c.logger.Info("consumer started",
		"concurrency", c.config.Concurrency,
		"rate_per_second", c.config.RatePerSecond)
}

// Stop cancels the loops and waits for in-flight jobs to finish.
func (c *Consumer) Stop() {
	c.cancel()
	c.wg.Wait()
	c.logger.Info("consumer stopped")
}

// Health reports the queue's live status counts from the store.
func (c *Consumer) Health(ctx context.Context) (QueueHealth, error) {
	return c.store.Health(ctx, c.queue)
}

func (c *Consumer) pollLoop() {
	defer c.wg.Done()

	for {
		if err := c.limiter.Wait(c.ctx); err != nil {
			return // context cancelled
		}

		// Claim a concurrency slot before claiming a job so a full worker
		// never holds jobs active without running them.
		select {
		case <-c.ctx.Done():
			return
		case c.sem <- struct{}{}:
		}

		jobs, err := c.store.Dequeue(c.ctx, c.queue, 1)
		if err != nil {
			<-c.sem
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error("failed to dequeue", "error", err)
			c.idle()
			continue
		}
		if len(jobs) == 0 {
			<-c.sem
			c.idle()
			continue
		}

		job := jobs[0]
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			c.process(job)
		}()
	}
}

func (c *Consumer) idle() {
	select {
	case <-c.ctx.Done():
	case <-time.After(c.config.PollInterval):
	}
}

// process runs one claimed job through its handler and applies the job's
// attempts policy to the outcome.
func (c *Consumer) process(job *Job) {
	log := c.logger.With(
		"job_id", job.ID,
		"event_type", job.EventType,
		"attempt", job.AttemptsMade,
		"max_attempts", job.Attempts.MaxAttempts,
	)
	ctx := logger.WithLogger(c.ctx, log)

	handler, ok := c.handlers[job.EventType]
	if !ok {
		c.fail(ctx, job, fmt.Errorf("%w: %s", ErrNoHandler, job.EventType))
		return
	}

	log.Info("processing job")
	start := time.Now()
	err := handler.Handle(ctx, job)
	metrics.JobDuration.WithLabelValues(c.queue, job.EventType).Observe(time.Since(start).Seconds())

	if err != nil {
		c.fail(ctx, job, err)
		return
	}

	if err := c.store.MarkCompleted(ctx, job.ID); err != nil {
		log.Error("failed to mark job completed", "error", err)
		return
	}
	metrics.JobsProcessed.WithLabelValues(c.queue, "completed").Inc()
	log.Info("job completed")
}

// fail applies the job's retry/backoff policy: requeue with exponential
// delay while budget remains, otherwise hand the job to the dead letter sink.
func (c *Consumer) fail(ctx context.Context, job *Job, jobErr error) {
	log := logger.FromContext(ctx)

	if job.AttemptsMade < job.Attempts.MaxAttempts {
		delay := job.Attempts.Delay(job.AttemptsMade)
		nextRun := time.Now().UTC().Add(delay)
		log.Warn("job failed, scheduling retry",
			"error", jobErr,
			"retry_in", delay)
		if err := c.store.MarkFailedRetry(ctx, job.ID, jobErr.Error(), nextRun); err != nil {
			log.Error("failed to schedule retry", "error", err)
		}
		metrics.JobsProcessed.WithLabelValues(c.queue, "retried").Inc()
		return
	}

	log.Error("job exhausted retry budget, dead-lettering", "error", jobErr)
	if err := c.store.MarkDeadLettered(ctx, job.ID, jobErr.Error()); err != nil {
		log.Error("failed to mark job dead-lettered", "error", err)
	}
	if err := c.dlq.Capture(ctx, job, jobErr); err != nil {
		log.Error("failed to capture dead letter", "error", err)
	}
	metrics.JobsProcessed.WithLabelValues(c.queue, "dead_lettered").Inc()
}

// janitor periodically resets stuck active jobs and applies retention.
func (c *Consumer) janitor() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			reset, err := c.store.ResetStuck(c.ctx, c.queue, c.config.StuckJobAge)
			if err != nil {
				c.logger.Error("failed to reset stuck jobs", "error", err)
			} else if reset > 0 {
				c.logger.Info("reset stuck jobs", "count", reset)
			}

			if err := c.store.SweepRetention(c.ctx, c.queue, DefaultRetention()); err != nil {
				c.logger.Error("failed to sweep retention", "error", err)
			}

			if health, err := c.store.Health(c.ctx, c.queue); err == nil {
				metrics.QueueDepth.WithLabelValues(c.queue, "waiting").Set(float64(health.Waiting))
				metrics.QueueDepth.WithLabelValues(c.queue, "active").Set(float64(health.Active))
				metrics.QueueDepth.WithLabelValues(c.queue, "delayed").Set(float64(health.Delayed))
			}
		}
	}
}
