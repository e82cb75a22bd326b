package resilience

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when an operation exceeds its allotted time.
var ErrTimeout = errors.New("operation timed out")

// WithTimeout races fn against a timer. When the timer wins, ErrTimeout is
// returned and fn's eventual result is discarded; the function itself keeps
// running until it observes the cancelled context. Every external call in the
// pipeline is wrapped this way so no handler blocks unboundedly.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type outcome struct {
		result T
		err    error
	}
	// Buffered so the goroutine never leaks when the timer wins.
	done := make(chan outcome, 1)

	go func() {
		result, err := fn(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	case out := <-done:
		return out.result, out.err
	}
}
