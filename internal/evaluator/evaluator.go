// Package evaluator consumes analyze jobs and produces the final,
// evidence-based hiring evaluation for a completed interview session: four
// weighted dimension scores, a confidence report, bias detection and a
// hiring recommendation, created exactly once per (session, candidate) under
// the lock/idempotency layer.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/config"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/lock"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/metrics"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/postgres"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/resilience"
)

// Constructor errors.
var (
	ErrNilRecordings = errors.New("recording fetcher cannot be nil")
	ErrNilResults    = errors.New("result store cannot be nil")
	ErrNilIdem       = errors.New("idempotency manager cannot be nil")
	ErrNilBreakers   = errors.New("breaker manager cannot be nil")
	ErrNilPublisher  = errors.New("publisher cannot be nil")
	ErrNilLogger     = errors.New("logger cannot be nil")
)

// RecordingFetcher loads the full recorded trace of a session.
type RecordingFetcher interface {
	Fetch(ctx context.Context, sessionID string) (*domain.SessionRecording, error)
}

// ResultStore persists final evaluations. Save returns an error matching
// postgres.ErrEvaluationExists when the (session, candidate) pair was
// already evaluated.
type ResultStore interface {
	Save(ctx context.Context, result *domain.EvaluationResult) error
}

// CodeReviewer is the external text-generation contract: code in, 0-100
// quality score out.
type CodeReviewer interface {
	Review(ctx context.Context, code string) (float64, error)
}

// AnalyzeRequest is the payload of an analyze job.
type AnalyzeRequest struct {
	SessionID   string `json:"session_id"`
	CandidateID string `json:"candidate_id"`
	Priority    int    `json:"priority,omitempty"`
}

// Evaluator orchestrates the scoring pipeline. It implements queue.Handler
// for the analyze queue.
type Evaluator struct {
	recordings RecordingFetcher
	results    ResultStore
	reviewer   CodeReviewer
	idem       *lock.Idempotency
	breakers   *resilience.BreakerManager
	publisher  *queue.Publisher
	logger     *slog.Logger

	lockTTL      time.Duration
	resultTTL    time.Duration
	fetchTimeout time.Duration

	reviewRetries    int
	reviewRetryDelay time.Duration
	reviewTimeout    time.Duration
}

// New creates an evaluator. A nil reviewer is allowed: the qualitative
// review method then scores 0, matching the degraded path.
func New(
	recordings RecordingFetcher,
	results ResultStore,
	reviewer CodeReviewer,
	idem *lock.Idempotency,
	breakers *resilience.BreakerManager,
	publisher *queue.Publisher,
	logger *slog.Logger,
	evalCfg config.EvaluationConfig,
	llmCfg config.LLMConfig,
) (*Evaluator, error) {
	if recordings == nil {
		return nil, ErrNilRecordings
	}
	if results == nil {
		return nil, ErrNilResults
	}
	if idem == nil {
		return nil, ErrNilIdem
	}
	if breakers == nil {
		return nil, ErrNilBreakers
	}
	if publisher == nil {
		return nil, ErrNilPublisher
	}
	if logger == nil {
		return nil, ErrNilLogger
	}

	lockTTL := evalCfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = 600 * time.Second
	}
	resultTTL := evalCfg.ResultTTL
	if resultTTL <= 0 {
		resultTTL = 24 * time.Hour
	}
	retries := llmCfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	retryDelay := time.Duration(llmCfg.RetryDelaySeconds) * time.Second
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	fetchTimeout := evalCfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = 10 * time.Second
	}
	reviewTimeout := llmCfg.RequestTimeout
	if reviewTimeout <= 0 {
		reviewTimeout = 30 * time.Second
	}

	return &Evaluator{
		recordings:       recordings,
		results:          results,
		reviewer:         reviewer,
		idem:             idem,
		breakers:         breakers,
		publisher:        publisher,
		logger:           logger.With("component", "evaluator"),
		lockTTL:          lockTTL,
		resultTTL:        resultTTL,
		fetchTimeout:     fetchTimeout,
		reviewRetries:    retries,
		reviewRetryDelay: retryDelay,
		reviewTimeout:    reviewTimeout,
	}, nil
}

// IdempotencyKey derives the per-evaluation key.
func IdempotencyKey(sessionID, candidateID string) string {
	return fmt.Sprintf("evaluation:%s:%s", sessionID, candidateID)
}

// Handle processes one analyze job. Implements queue.Handler.
func (e *Evaluator) Handle(ctx context.Context, job *queue.Job) error {
	var req AnalyzeRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return domain.NewValidationError("payload", "malformed analyze payload: "+err.Error())
	}
	if req.SessionID == "" {
		return domain.NewValidationError("session_id", "cannot be empty")
	}
	if req.CandidateID == "" {
		return domain.NewValidationError("candidate_id", "cannot be empty")
	}

	key := IdempotencyKey(req.SessionID, req.CandidateID)
	_, err := e.idem.Execute(ctx, key, e.lockTTL, e.resultTTL,
		func(ctx context.Context) (any, error) {
			return e.Evaluate(ctx, req.SessionID, req.CandidateID)
		})
	return err
}

// Evaluate runs the full scoring pipeline for one session and persists the
// result. Only the recording fetch is fatal; every sub-scorer degrades
// locally.
func (e *Evaluator) Evaluate(ctx context.Context, sessionID, candidateID string) (*domain.EvaluationResult, error) {
	started := time.Now()
	e.logger.Info("evaluation started",
		"session_id", sessionID,
		"candidate_id", candidateID)

	// Consumers hand us an undeadlined context, so the fetch carries its
	// own budget; a hung read must not pin the job goroutine.
	rec, err := resilience.WithTimeout(ctx, e.fetchTimeout,
		func(ctx context.Context) (*domain.SessionRecording, error) {
			return e.recordings.Fetch(ctx, sessionID)
		})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session recording: %w", err)
	}

	result := e.score(ctx, rec)
	result.CandidateID = candidateID

	if err := e.results.Save(ctx, result); err != nil {
		if errors.Is(err, postgres.ErrEvaluationExists) {
			// Another worker beat the lock across a TTL boundary. The stored
			// result wins; ours is discarded without failing the job.
			e.logger.Warn("evaluation already persisted by another worker",
				"session_id", sessionID,
				"candidate_id", candidateID)
			return result, nil
		}
		return nil, fmt.Errorf("failed to persist evaluation result: %w", err)
	}

	metrics.EvaluationsCompleted.WithLabelValues(result.Recommendation.Decision).Inc()
	e.notifyCompletion(ctx, result)

	e.logger.Info("evaluation completed",
		"session_id", sessionID,
		"candidate_id", candidateID,
		"overall_score", result.OverallScore,
		"overall_confidence", result.OverallConfidence,
		"decision", result.Recommendation.Decision,
		"duration", time.Since(started))
	return result, nil
}

// score runs the four dimension scorers and derives the aggregate views.
func (e *Evaluator) score(ctx context.Context, rec *domain.SessionRecording) *domain.EvaluationResult {
	result := &domain.EvaluationResult{
		SessionID:   rec.SessionID,
		CandidateID: rec.CandidateID,
		EvaluatedAt: time.Now().UTC(),
	}

	result.CodeQuality = e.scoreCodeQuality(ctx, rec)
	result.ProblemSolving = e.scoreProblemSolving(rec)
	result.AICollaboration = e.scoreAICollaboration(rec)
	result.Communication = e.scoreCommunication(rec)

	dims := []domain.DimensionScore{
		result.CodeQuality,
		result.ProblemSolving,
		result.AICollaboration,
		result.Communication,
	}

	result.OverallScore = domain.WeightCodeQuality*result.CodeQuality.Score +
		domain.WeightProblemSolving*result.ProblemSolving.Score +
		domain.WeightAICollaboration*result.AICollaboration.Score +
		domain.WeightCommunication*result.Communication.Score

	// Weakest link: a single shaky dimension makes the whole evaluation
	// shaky, so the minimum, not the average.
	result.OverallConfidence = dims[0].Confidence
	for _, d := range dims[1:] {
		if d.Confidence < result.OverallConfidence {
			result.OverallConfidence = d.Confidence
		}
	}

	result.Confidence = buildConfidenceReport(rec, dims)
	result.Bias = detectBias(rec, result)
	result.Recommendation = recommend(result)

	return result
}

// notifyCompletion emits the best-effort evaluation-completed event. Publish
// failures are logged, never propagated: the evaluation is already durable.
func (e *Evaluator) notifyCompletion(ctx context.Context, result *domain.EvaluationResult) {
	payload := map[string]any{
		"session_id":    result.SessionID,
		"candidate_id":  result.CandidateID,
		"overall_score": result.OverallScore,
		"decision":      result.Recommendation.Decision,
		"evaluated_at":  result.EvaluatedAt,
	}
	_, err := e.publisher.Publish(ctx, queue.QueueNotifications, "evaluation-completed", payload,
		queue.PublishOptions{
			DedupKey: queue.DedupKey(result.SessionID, "evaluation-completed"),
		})
	if err != nil {
		e.logger.Warn("failed to publish evaluation-completed event",
			"session_id", result.SessionID,
			"error", err)
	}
}
