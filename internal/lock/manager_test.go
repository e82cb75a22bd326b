package lock

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/kv"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(kv.NewMemoryStore(), testLogger())
	require.NoError(t, err)
	return m
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, testLogger())
	assert.ErrorIs(t, err, ErrNilStore)

	_, err = NewManager(kv.NewMemoryStore(), nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestManager_AcquireContention(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t)

	token, err := m.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	_, err = m.Acquire(ctx, "session-1", time.Minute)
	assert.ErrorIs(t, err, ErrContention)

	// A different key is independent.
	_, err = m.Acquire(ctx, "session-2", time.Minute)
	assert.NoError(t, err)
}

func TestManager_ReleaseWrongToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t)

	token, err := m.Acquire(ctx, "session-1", time.Minute)
	require.NoError(t, err)

	assert.False(t, m.Release(ctx, "session-1", "not-the-token"),
		"release with a stale token must be a no-op")

	// The true holder can still release.
	assert.True(t, m.Release(ctx, "session-1", token))

	// And the lock is actually free again.
	_, err = m.Acquire(ctx, "session-1", time.Minute)
	assert.NoError(t, err)
}

func TestManager_AcquireWithRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t)

	token, err := m.Acquire(ctx, "busy", time.Minute)
	require.NoError(t, err)

	// Bounded retries against a held lock exhaust and report contention.
	_, err = m.AcquireWithRetry(ctx, "busy", time.Minute, 2, time.Millisecond)
	assert.ErrorIs(t, err, ErrContention)

	m.Release(ctx, "busy", token)

	_, err = m.AcquireWithRetry(ctx, "busy", time.Minute, 2, time.Millisecond)
	assert.NoError(t, err)
}

func TestNextBackoff_DoublesAndClamps(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 200*time.Millisecond, nextBackoff(100*time.Millisecond))

	// A long retry budget must never stretch a single wait past the cap.
	d := time.Millisecond
	for i := 0; i < 30; i++ {
		d = nextBackoff(d)
		assert.LessOrEqual(t, d, maxAcquireBackoff)
	}
	assert.Equal(t, maxAcquireBackoff, d)
}

func TestManager_WithLockReleasesOnError(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestManager(t)

	wantErr := assert.AnError
	err := m.WithLock(ctx, "scoped", time.Minute, func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	// The lock must be free even though fn failed.
	_, err = m.Acquire(ctx, "scoped", time.Minute)
	assert.NoError(t, err)
}
