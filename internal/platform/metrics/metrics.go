// Package metrics defines the pipeline's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// JobsProcessed counts finished job attempts by queue and outcome
	// (completed, retried, dead_lettered).
	JobsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewlm_jobs_processed_total",
			Help: "Total job attempts by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)

	// JobDuration observes handler execution time.
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interviewlm_job_duration_seconds",
			Help:    "Job handler execution time by queue and event type",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"queue", "event_type"},
	)

	// QueueDepth tracks waiting/active/delayed counts per queue.
	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "interviewlm_queue_depth",
			Help: "Jobs per queue by status",
		},
		[]string{"queue", "status"},
	)

	// BreakerState exposes each circuit breaker's state (0 closed,
	// 1 half-open, 2 open).
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "interviewlm_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// DeadLetters counts captured dead letters by queue.
	DeadLetters = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewlm_dead_letters_total",
			Help: "Jobs captured by the dead letter store, by queue",
		},
		[]string{"queue"},
	)

	// LockContention counts bounded-retry lock acquisition failures.
	LockContention = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewlm_lock_contention_total",
			Help: "Lock acquisitions that failed due to contention, by resource class",
		},
		[]string{"resource"},
	)

	// EvaluationsCompleted counts persisted evaluation results by decision.
	EvaluationsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interviewlm_evaluations_completed_total",
			Help: "Persisted hiring evaluations by recommendation decision",
		},
		[]string{"decision"},
	)
)

// Register registers all pipeline collectors with the given registry.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		JobsProcessed,
		JobDuration,
		QueueDepth,
		BreakerState,
		DeadLetters,
		LockContention,
		EvaluationsCompleted,
	)
}
