package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/api"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/config"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/deadletter"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/domain"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/evaluator"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/lock"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/gemini"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/kv"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/logger"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/metrics"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/postgres"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/resilience"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/tracker"
)

const (
	shutdownTimeout  = 30 * time.Second
	dlqPruneInterval = time.Hour
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the queue consumers and the operational HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("worker starting", "port", cfg.Server.Port)

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(registry)

	// Shared coordination plane: one atomic KV store backs both locks and
	// idempotency so their keys stay consistent.
	kvStore := kv.NewMemoryStore()
	locks, err := lock.NewManager(kvStore, log)
	if err != nil {
		return err
	}
	idem, err := lock.NewIdempotency(kvStore, locks, log)
	if err != nil {
		return err
	}
	breakers := resilience.NewBreakerManager(resilience.BreakerSettings{})

	jobStore := postgres.NewJobStore(db)
	publisher, err := queue.NewPublisher(jobStore, log)
	if err != nil {
		return err
	}

	dlqStore := postgres.NewDeadLetterStore(db)
	dlq, err := deadletter.NewService(dlqStore, publisher, nil, cfg.Worker.CriticalJobs, log)
	if err != nil {
		return err
	}

	// Tracker agent on the session-events queue.
	metricsStore, closeMetrics, err := openMetricsStore(cfg.Tracker)
	if err != nil {
		return err
	}
	defer closeMetrics()

	abilityTracker, err := tracker.New(metricsStore, publisher, log)
	if err != nil {
		return err
	}

	// Evaluator agent on the analyze queue.
	var reviewer evaluator.CodeReviewer
	if cfg.LLM.GeminiAPIKey != "" {
		r, err := gemini.NewReviewer(ctx, log, cfg.LLM)
		if err != nil {
			return fmt.Errorf("failed to create code reviewer: %w", err)
		}
		reviewer = r
	} else {
		log.Warn("no Gemini API key configured, qualitative review will score 0")
	}

	eval, err := evaluator.New(
		postgres.NewRecordingStore(db),
		postgres.NewEvaluationStore(db),
		reviewer,
		idem,
		breakers,
		publisher,
		log,
		cfg.Evaluation,
		cfg.LLM,
	)
	if err != nil {
		return err
	}

	consumerCfg := queue.ConsumerConfig{
		Concurrency:   cfg.Worker.Concurrency,
		RatePerSecond: cfg.Worker.RatePerSecond,
		RateBurst:     cfg.Worker.RateBurst,
		PollInterval:  cfg.Worker.PollInterval,
		StuckJobAge:   cfg.Worker.StuckJobAge,
	}

	sessionEvents, err := queue.NewConsumer(queue.QueueSessionEvents, jobStore, dlq, consumerCfg, log)
	if err != nil {
		return err
	}
	for _, eventType := range []string{
		domain.EventSessionStarted,
		domain.EventAIInteraction,
		domain.EventCodeChanged,
		domain.EventTestRun,
		domain.EventQuestionAnswered,
		domain.EventSessionComplete,
	} {
		sessionEvents.Register(eventType, abilityTracker)
	}

	analyze, err := queue.NewConsumer(queue.QueueAnalyze, jobStore, dlq, consumerCfg, log)
	if err != nil {
		return err
	}
	analyze.Register("analyze-session", eval)

	consumers := []*queue.Consumer{sessionEvents, analyze}
	for _, c := range consumers {
		c.Start()
	}

	// Retention sweep for dead letters; job retention is the janitor's job.
	pruneCtx, stopPruner := context.WithCancel(context.Background())
	defer stopPruner()
	go dlq.RunPruner(pruneCtx, dlqPruneInterval)

	opsServer, err := api.NewServer(publisher, jobStore, breakers, dlq, registry, log)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           opsServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("operational HTTP server listening", "addr", httpServer.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		log.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down HTTP server cleanly", "error", err)
	}
	for _, c := range consumers {
		c.Stop()
	}
	stopPruner()

	log.Info("worker stopped")
	return nil
}

// openMetricsStore picks the tracker's durable arena: bbolt when a data
// directory is configured, in-memory otherwise.
func openMetricsStore(cfg config.TrackerConfig) (tracker.Store, func(), error) {
	if cfg.DataDir == "" {
		return tracker.NewMemoryStore(), func() {}, nil
	}
	store, err := tracker.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tracker store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}
