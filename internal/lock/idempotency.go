package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/kv"
)

const (
	idempotencyKeyPrefix = "idem:"
	resultKeyPrefix      = "idem-result:"

	// acquisitionRetries bounds how long Execute waits for a concurrent
	// execution of the same key before giving up.
	acquisitionRetries   = 5
	acquisitionBaseDelay = 100 * time.Millisecond
)

// Idempotency provides "run exactly once, cache the result" semantics keyed
// by a deterministic identifier.
//
// The guarantee is at-most-one recorded execution per key within the ttl
// window. The cached result is written only after the wrapped function
// completes: a crash between the side effect and the cache write can replay
// the side effect on retry. That residual at-least-once risk is inherited
// from the source contract and deliberately not papered over here.
type Idempotency struct {
	store  kv.Store
	locks  *Manager
	logger *slog.Logger
}

// NewIdempotency creates an idempotency manager sharing the lock manager's
// atomic store.
func NewIdempotency(store kv.Store, locks *Manager, logger *slog.Logger) (*Idempotency, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if locks == nil {
		return nil, fmt.Errorf("lock manager cannot be nil")
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	return &Idempotency{
		store:  store,
		locks:  locks,
		logger: logger.With("component", "idempotency"),
	}, nil
}

// Check sets a marker for key only if absent. It returns true when the key
// is new, meaning the caller owns the first (and only recorded) execution
// within the ttl window.
func (i *Idempotency) Check(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}
	isNew, err := i.store.SetNX(ctx, idempotencyKeyPrefix+key, "1", ttl)
	if err != nil {
		return false, fmt.Errorf("failed to check idempotency key %q: %w", key, err)
	}
	return isNew, nil
}

// Execute runs fn at most once per key within the resultTTL window and caches
// its serialized result. lockTTL bounds how long a crashed holder can block
// other executions of the same key; resultTTL is how long the cached result
// suppresses re-execution.
//
// Fast path: a cached result is returned without acquiring anything. Slow
// path: take the key's lock, re-check the cache (closing the race window
// between the fast path and acquisition), run fn, cache the serialized
// result, and release the lock on every exit path.
func (i *Idempotency) Execute(
	ctx context.Context,
	key string,
	lockTTL time.Duration,
	resultTTL time.Duration,
	fn func(ctx context.Context) (any, error),
) (json.RawMessage, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	if cached, ok, err := i.cachedResult(ctx, key); err != nil {
		return nil, err
	} else if ok {
		i.logger.Debug("idempotent execution skipped, returning cached result", "key", key)
		return cached, nil
	}

	token, err := i.locks.AcquireWithRetry(ctx, idempotencyKeyPrefix+key, lockTTL,
		acquisitionRetries, acquisitionBaseDelay)
	if err != nil {
		return nil, err
	}
	defer i.locks.Release(ctx, idempotencyKeyPrefix+key, token)

	// Double-check under the lock: another holder may have completed while
	// we were acquiring.
	if cached, ok, err := i.cachedResult(ctx, key); err != nil {
		return nil, err
	} else if ok {
		i.logger.Debug("idempotent execution skipped after lock, returning cached result", "key", key)
		return cached, nil
	}

	result, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	serialized, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize idempotent result for %q: %w", key, err)
	}

	if _, err := i.store.SetNX(ctx, resultKeyPrefix+key, string(serialized), resultTTL); err != nil {
		// The side effect already happened; losing the cache only risks a
		// duplicate on retry, so log and return the result.
		i.logger.Error("failed to cache idempotent result", "key", key, "error", err)
	}

	return serialized, nil
}

func (i *Idempotency) cachedResult(ctx context.Context, key string) (json.RawMessage, bool, error) {
	value, ok, err := i.store.Get(ctx, resultKeyPrefix+key)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency cache for %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return json.RawMessage(value), true, nil
}
