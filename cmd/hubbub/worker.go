// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hubbub-social/hubbub/internal/config"
	"github.com/hubbub-social/hubbub/internal/queue"
)

// NewWorkerCmd creates the worker subcommand.
func NewWorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Start the job workers",
		Long: `Start a job worker that persists signed-up accounts and profiles and
sends emails from the Redis job streams. Run as many as needed; they share
work through a consumer group.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runWorkerWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterWorkerFlags(cmd.Flags())

	return cmd
}

// runWorkerWithDeps runs job workers with injectable dependencies.
// If deps is nil, default implementations are used.
func runWorkerWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *WorkerDeps) error {
	if deps == nil {
		deps = &WorkerDeps{}
	}
	deps.setDefaults()

	if err := cfg.Validate(config.RoleWorker); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogging(cfg, "worker")
	if deps.MailerFactory == nil {
		deps.MailerFactory = func() queue.Mailer { return queue.NewLogMailer(logger) }
	}

	a, err := openApp(ctx, cfg, &deps.RuntimeDeps, logger)
	if err != nil {
		return err
	}
	defer a.close()

	worker, err := a.newWorker(deps.MailerFactory())
	if err != nil {
		return fmt.Errorf("failed to create job worker: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.startProbes(ctx, cancel); err != nil {
		return err
	}
	defer a.stopProbes()

	runErr := make(chan error, 1)
	go func() {
		runErr <- worker.Run(ctx)
		cancel()
	}()

	cmd.Println("Job worker started")
	logger.Info("job worker ready", "consumer", worker.ConsumerName())

	awaitShutdown(ctx, logger)
	cancel()

	if err := <-runErr; err != nil {
		return fmt.Errorf("job worker failed: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
