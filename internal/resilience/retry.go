// Package resilience provides the failure-handling building blocks the
// pipeline composes around external calls: retry with backoff, timeouts,
// bulkheads, fallbacks and circuit breakers. Layers are combined by explicit
// function composition, e.g. timeout around retry around breaker around the
// operation.
package resilience

import (
	"context"
	"time"
)

// RetryOptions configures Retry. Zero values fall back to the defaults noted
// on each field.
type RetryOptions struct {
	// MaxRetries is the number of additional attempts after the first
	// failure. Defaults to 3.
	MaxRetries int

	// InitialDelay is the backoff before the first retry. Defaults to 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff. Defaults to 30s.
	MaxDelay time.Duration

	// Factor multiplies the delay after every retry. Defaults to 2.
	Factor float64

	// ShouldRetry decides whether a given error is worth retrying.
	// A nil predicate retries every error.
	ShouldRetry func(err error) bool

	// OnRetry observes each scheduled retry with the 1-based attempt number
	// that just failed and its error.
	OnRetry func(attempt int, err error)
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 100 * time.Millisecond
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 30 * time.Second
	}
	if o.Factor <= 1 {
		o.Factor = 2
	}
	return o
}

// Retry runs fn with exponential backoff until it succeeds, the retryability
// predicate rejects its error, the context is cancelled, or attempts are
// exhausted. The last error is returned unwrapped so callers can classify it.
func Retry[T any](ctx context.Context, opts RetryOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	opts = opts.withDefaults()

	delay := opts.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= opts.MaxRetries+1; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if opts.ShouldRetry != nil && !opts.ShouldRetry(err) {
			return zero, err
		}
		if attempt > opts.MaxRetries {
			break
		}

		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * opts.Factor)
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}

	return zero, lastErr
}
