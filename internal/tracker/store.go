package tracker

import (
	"context"
	"errors"
	"sync"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// ErrMetricsNotFound is returned when no metrics exist for a session.
var ErrMetricsNotFound = errors.New("session metrics not found")

// Store persists session metrics keyed by session id. The tracker keeps a
// hot in-memory copy and writes through to the store so metrics survive a
// worker crash.
type Store interface {
	// Load returns the metrics for a session, or ErrMetricsNotFound.
	Load(ctx context.Context, sessionID string) (*domain.SessionMetrics, error)

	// Save upserts the metrics record.
	Save(ctx context.Context, metrics *domain.SessionMetrics) error
}

// MemoryStore is a mutex-guarded in-process Store, used when the tracker
// runs without a data directory and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.SessionMetrics
}

// NewMemoryStore creates an empty in-memory metrics store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]domain.SessionMetrics)}
}

// Load returns a copy of the stored metrics.
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*domain.SessionMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[sessionID]
	if !ok {
		return nil, ErrMetricsNotFound
	}
	return &record, nil
}

// Save stores a copy of the metrics record.
func (s *MemoryStore) Save(ctx context.Context, metrics *domain.SessionMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[metrics.SessionID] = *metrics
	return nil
}

var _ Store = (*MemoryStore)(nil)
