package resilience

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkhead_LimitsConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewBulkhead(2)

	var mu sync.Mutex
	current, peak := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(ctx, func(ctx context.Context) error {
				mu.Lock()
				current++
				if current > peak {
					peak = current
				}
				mu.Unlock()

				time.Sleep(5 * time.Millisecond)

				mu.Lock()
				current--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak, 2, "no more than the ceiling may run at once")
	assert.Zero(t, b.InFlight())
	assert.Zero(t, b.Waiting())
}

func TestBulkhead_WaiterCancellation(t *testing.T) {
	t.Parallel()
	b := NewBulkhead(1)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = b.Execute(context.Background(), func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)

	// The slot must come back after the holder finishes.
	require.Eventually(t, func() bool { return b.InFlight() == 0 }, time.Second, time.Millisecond)
	assert.NoError(t, b.Execute(context.Background(), func(ctx context.Context) error { return nil }))
}

func TestBulkhead_CloseRejects(t *testing.T) {
	t.Parallel()
	b := NewBulkhead(1)
	b.Close()

	err := b.Execute(context.Background(), func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrBulkheadClosed)
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	result, err := WithTimeout(ctx, time.Second, func(ctx context.Context) (string, error) {
		return "fast", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fast", result)

	_, err = WithTimeout(ctx, 5*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "slow", ctx.Err()
	})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestFallbackTo(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// Failure substitutes the default.
	got, err := FallbackTo(ctx, func(ctx context.Context) (float64, error) {
		return 0, assert.AnError
	}, 50.0, nil)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)

	// The when predicate can refuse to absorb an error.
	_, err = FallbackTo(ctx, func(ctx context.Context) (float64, error) {
		return 0, assert.AnError
	}, 50.0, func(err error) bool { return false })
	assert.ErrorIs(t, err, assert.AnError)
}
