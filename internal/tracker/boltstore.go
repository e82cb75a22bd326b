package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

var bucketSessionMetrics = []byte("session_metrics")

// BoltStore is a bbolt-backed Store: the durable arena that lets the hidden
// ability signal survive a worker restart.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the metrics arena under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "tracker.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metrics arena: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessionMetrics)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create metrics bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Load returns the metrics for a session, or ErrMetricsNotFound.
func (s *BoltStore) Load(ctx context.Context, sessionID string) (*domain.SessionMetrics, error) {
	var metrics domain.SessionMetrics
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSessionMetrics).Get([]byte(sessionID))
		if data == nil {
			return ErrMetricsNotFound
		}
		return json.Unmarshal(data, &metrics)
	})
	if err != nil {
		return nil, err
	}
	return &metrics, nil
}

// Save upserts the metrics record.
func (s *BoltStore) Save(ctx context.Context, metrics *domain.SessionMetrics) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal session metrics: %w", err)
		}
		return tx.Bucket(bucketSessionMetrics).Put([]byte(metrics.SessionID), data)
	})
}

var _ Store = (*BoltStore)(nil)
