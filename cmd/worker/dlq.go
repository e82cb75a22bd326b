package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/DecideWAI/interviewlm-cs-sub002/internal/config"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/deadletter"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/logger"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/platform/postgres"
	"github.com/DecideWAI/interviewlm-cs-sub002/internal/queue"
)

func newDLQCmd() *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and manage dead-lettered jobs",
	}

	var replayID string
	var replayQueue string
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-enqueue dead-lettered jobs with a fresh retry budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			if replayID == "" && replayQueue == "" {
				return fmt.Errorf("either --id or --queue is required")
			}
			return withDeadLetterService(cmd.Context(), func(ctx context.Context, svc *deadletter.Service) error {
				if replayID != "" {
					id, err := uuid.Parse(replayID)
					if err != nil {
						return fmt.Errorf("invalid dead letter id %q: %w", replayID, err)
					}
					jobID, err := svc.Replay(ctx, id)
					if err != nil {
						return err
					}
					cmd.Printf("replayed %s as job %s\n", id, jobID)
					return nil
				}

				entries, err := svc.List(ctx, replayQueue, 0, 1000)
				if err != nil {
					return err
				}
				replayed := 0
				for _, entry := range entries {
					if _, err := svc.Replay(ctx, entry.ID); err != nil {
						cmd.PrintErrf("failed to replay %s: %v\n", entry.ID, err)
						continue
					}
					replayed++
				}
				cmd.Printf("replayed %d of %d dead letter(s) from %s\n", replayed, len(entries), replayQueue)
				return nil
			})
		},
	}
	replayCmd.Flags().StringVar(&replayID, "id", "", "dead letter entry id to replay")
	replayCmd.Flags().StringVar(&replayQueue, "queue", "", "replay every dead letter from this queue")

	var purgeQueue string
	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all dead letters for a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if purgeQueue == "" {
				return fmt.Errorf("--queue is required")
			}
			return withDeadLetterService(cmd.Context(), func(ctx context.Context, svc *deadletter.Service) error {
				purged, err := svc.Purge(ctx, purgeQueue)
				if err != nil {
					return err
				}
				cmd.Printf("purged %d dead letter(s) from %s\n", purged, purgeQueue)
				return nil
			})
		},
	}
	purgeCmd.Flags().StringVar(&purgeQueue, "queue", "", "queue to purge")

	dlqCmd.AddCommand(replayCmd)
	dlqCmd.AddCommand(purgeCmd)
	return dlqCmd
}

// withDeadLetterService wires the minimal dependency graph a dlq command
// needs and tears it down afterward.
func withDeadLetterService(ctx context.Context, fn func(context.Context, *deadletter.Service) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	jobStore := postgres.NewJobStore(db)
	publisher, err := queue.NewPublisher(jobStore, log)
	if err != nil {
		return err
	}
	svc, err := deadletter.NewService(postgres.NewDeadLetterStore(db), publisher, nil, cfg.Worker.CriticalJobs, log)
	if err != nil {
		return err
	}
	return fn(ctx, svc)
}
