// Package lock implements distributed mutual exclusion and run-exactly-once
// idempotency semantics over an atomic key-value store.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/kv"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/metrics"
)

// Common errors returned by the lock manager.
var (
	// ErrContention is returned when a lock cannot be acquired within the
	// bounded retry budget. Callers should skip or requeue, never spin.
	ErrContention = errors.New("lock contention")

	ErrNilStore  = errors.New("kv store cannot be nil")
	ErrNilLogger = errors.New("logger cannot be nil")
	ErrEmptyKey  = errors.New("lock key cannot be empty")
)

const lockKeyPrefix = "lock:"

// maxAcquireBackoff caps the doubling delay between acquisition attempts so a
// generous retry budget cannot stretch a single wait into minutes.
const maxAcquireBackoff = 5 * time.Second

// Manager provides scoped distributed locks. It is constructed once at
// startup and passed by reference into the workers that need it; there is no
// package-level state.
type Manager struct {
	store  kv.Store
	logger *slog.Logger
}

// NewManager creates a lock manager backed by the given atomic store.
func NewManager(store kv.Store, logger *slog.Logger) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Manager{
		store:  store,
		logger: logger.With("component", "lock_manager"),
	}, nil
}

// Acquire attempts a single atomic set-if-absent with expiration. On success
// it returns an opaque token identifying this holder; on contention it
// returns ErrContention.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	token := uuid.NewString()
	ok, err := m.store.SetNX(ctx, lockKeyPrefix+key, token, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to acquire lock %q: %w", key, err)
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrContention, key)
	}

	m.logger.Debug("lock acquired", "key", key, "ttl", ttl)
	return token, nil
}

// AcquireWithRetry attempts acquisition up to maxRetries additional times
// with exponential backoff starting at baseDelay. Acquisition may block
// briefly under this bounded retry, never unboundedly; failure to acquire is
// a normal, handled outcome.
func (m *Manager) AcquireWithRetry(
	ctx context.Context,
	key string,
	ttl time.Duration,
	maxRetries int,
	baseDelay time.Duration,
) (string, error) {
	delay := baseDelay
	for attempt := 0; ; attempt++ {
		token, err := m.Acquire(ctx, key, ttl)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrContention) {
			return "", err
		}
		if attempt >= maxRetries {
			m.logger.Debug("lock acquisition retries exhausted",
				"key", key,
				"attempts", attempt+1)
			metrics.LockContention.WithLabelValues(resourceClass(key)).Inc()
			return "", fmt.Errorf("%w: %s after %d attempts", ErrContention, key, attempt+1)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay = nextBackoff(delay)
	}
}

// nextBackoff doubles the delay, clamped at maxAcquireBackoff.
func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxAcquireBackoff {
		return maxAcquireBackoff
	}
	return d
}

// resourceClass is the key's prefix up to the first colon, keeping the
// contention metric's label cardinality bounded.
func resourceClass(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// Release deletes the lock only if the presented token still matches the
// current holder (atomic check-then-delete). It returns false when the lock
// expired and was re-acquired by someone else, protecting the new holder.
func (m *Manager) Release(ctx context.Context, key, token string) bool {
	ok, err := m.store.CompareAndDelete(ctx, lockKeyPrefix+key, token)
	if err != nil {
		m.logger.Error("failed to release lock", "key", key, "error", err)
		return false
	}
	if !ok {
		m.logger.Warn("lock not released: token mismatch or expired", "key", key)
	}
	return ok
}

// WithLock runs fn while holding the named lock, releasing it on every exit
// path including panics. Acquisition is acquire-or-fail: contention surfaces
// as ErrContention without retrying.
func (m *Manager) WithLock(
	ctx context.Context,
	key string,
	ttl time.Duration,
	fn func(ctx context.Context) error,
) error {
	token, err := m.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer m.Release(ctx, key, token)

	return fn(ctx)
}
