// Package kv provides the atomic key-value primitives the distributed lock
// and idempotency layers are built on: set-if-absent with expiry and
// compare-and-delete.
package kv

import (
	"context"
	"time"
)

// Store is an atomic key-value store with per-key expiry. Implementations
// must make SetNX and CompareAndDelete atomic with respect to each other;
// every correctness guarantee of the lock layer rests on that.
type Store interface {
	// SetNX stores value under key only if no live value exists, applying
	// the ttl. Returns true when the value was stored.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get returns the live value for key. The second result is false when
	// the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// CompareAndDelete removes key only if its current live value equals
	// value. Returns true when the key was removed.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)

	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
}
