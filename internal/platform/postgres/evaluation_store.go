package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
)

// Store errors.
var (
	ErrEvaluationNotFound = errors.New("evaluation result not found")
	ErrEvaluationExists   = errors.New("evaluation result already exists")
)

// EvaluationStore persists final hiring evaluations.
//
// Columns: session_id, candidate_id, overall_score, overall_confidence,
// decision, result (jsonb), evaluated_at. Primary key (session_id,
// candidate_id) enforces the exactly-once contract at the storage layer too.
type EvaluationStore struct {
	db DBTX
}

// NewEvaluationStore creates an EvaluationStore over the given connection.
func NewEvaluationStore(db DBTX) *EvaluationStore {
	return &EvaluationStore{db: db}
}

// Save inserts the result. Results are immutable: a second insert for the
// same (session, candidate) returns ErrEvaluationExists.
func (s *EvaluationStore) Save(ctx context.Context, result *domain.EvaluationResult) error {
	doc, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation result: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO evaluation_results (
			session_id, candidate_id, overall_score, overall_confidence,
			decision, result, evaluated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, candidate_id) DO NOTHING
	`,
		result.SessionID, result.CandidateID,
		result.OverallScore, result.OverallConfidence,
		result.Recommendation.Decision, doc, result.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation result: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: session %s candidate %s",
			ErrEvaluationExists, result.SessionID, result.CandidateID)
	}
	return nil
}

// Get returns the persisted result for a session/candidate pair.
func (s *EvaluationStore) Get(ctx context.Context, sessionID, candidateID string) (*domain.EvaluationResult, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT result FROM evaluation_results
		WHERE session_id = $1 AND candidate_id = $2
	`, sessionID, candidateID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s candidate %s", ErrEvaluationNotFound, sessionID, candidateID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load evaluation result: %w", err)
	}

	var result domain.EvaluationResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluation result: %w", err)
	}
	return &result, nil
}

// RecordingStore fetches session recordings written by the interview layer.
//
// Columns: session_id, candidate_id, duration_ms, recording (jsonb).
type RecordingStore struct {
	db DBTX
}

// NewRecordingStore creates a RecordingStore over the given connection.
func NewRecordingStore(db DBTX) *RecordingStore {
	return &RecordingStore{db: db}
}

// Fetch loads the full recorded trace for a session. A missing recording is
// domain.ErrRecordingNotFound, the evaluator's only fatal dependency.
func (s *RecordingStore) Fetch(ctx context.Context, sessionID string) (*domain.SessionRecording, error) {
	var (
		doc         []byte
		candidateID string
		durationMS  int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT candidate_id, duration_ms, recording
		FROM session_recordings WHERE session_id = $1
	`, sessionID).Scan(&candidateID, &durationMS, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", domain.ErrRecordingNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load session recording: %v", domain.ErrTransient, err)
	}

	var recording domain.SessionRecording
	if err := json.Unmarshal(doc, &recording); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session recording: %w", err)
	}
	recording.SessionID = sessionID
	recording.CandidateID = candidateID
	recording.Duration = time.Duration(durationMS) * time.Millisecond
	return &recording, nil
}
