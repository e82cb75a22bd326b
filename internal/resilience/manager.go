package resilience

import (
	"sync"
)

// BreakerManager hands out named circuit breakers shared across the worker
// fleet in this process. It is an explicit service instance constructed once
// at startup and passed by reference into workers; there is no package-level
// breaker registry.
type BreakerManager struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	defaults BreakerSettings
}

// NewBreakerManager creates a manager whose breakers default to the given
// settings.
func NewBreakerManager(defaults BreakerSettings) *BreakerManager {
	return &BreakerManager{
		breakers: make(map[string]*CircuitBreaker),
		defaults: defaults.withDefaults(),
	}
}

// Breaker returns the named breaker, creating it with the manager's default
// settings on first use.
func (m *BreakerManager) Breaker(name string) *CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	cb, ok := m.breakers[name]
	if !ok {
		cb = NewCircuitBreaker(name, m.defaults)
		m.breakers[name] = cb
	}
	return cb
}

// Snapshots returns observability views for every breaker the manager has
// handed out, for the operational dashboard surface.
func (m *BreakerManager) Snapshots() []BreakerSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snaps := make([]BreakerSnapshot, 0, len(m.breakers))
	for _, cb := range m.breakers {
		snaps = append(snaps, cb.Snapshot())
	}
	return snaps
}
