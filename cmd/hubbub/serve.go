// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hubbub-social/hubbub/internal/avatar"
	"github.com/hubbub-social/hubbub/internal/config"
	"github.com/hubbub-social/hubbub/internal/httpapi"
	"github.com/hubbub-social/hubbub/internal/queue"
)

const readHeaderTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the auth HTTP API. With --workers the job workers run in the
same process, which suits single-node deployments.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterServeFlags(cmd.Flags())

	return cmd
}

// runServeWithDeps starts the HTTP API with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	deps.setDefaults()
	if deps.AvatarClientFactory == nil {
		deps.AvatarClientFactory = func(ctx context.Context, cfg avatar.Config) (avatar.PutObjectAPI, error) {
			return avatar.NewS3Client(ctx, cfg)
		}
	}
	if deps.ListenerFactory == nil {
		deps.ListenerFactory = net.Listen
	}

	if err := cfg.Validate(config.RoleServe); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogging(cfg, "api")
	logger.Info("starting API server",
		"addr", cfg.Server.Addr,
		"base_path", cfg.Server.BasePath,
		"embedded_workers", cfg.Server.EmbeddedWorkers,
	)

	a, err := openApp(ctx, cfg, &deps.RuntimeDeps, logger)
	if err != nil {
		return err
	}
	defer a.close()

	avatarCfg := avatarConfig(cfg.Avatar)
	s3Client, err := deps.AvatarClientFactory(ctx, avatarCfg)
	if err != nil {
		return fmt.Errorf("failed to create avatar client: %w", err)
	}
	images, err := avatar.NewHost(s3Client, avatarCfg)
	if err != nil {
		return fmt.Errorf("failed to create avatar host: %w", err)
	}

	svc, tokens, err := a.newAuthService(images)
	if err != nil {
		return fmt.Errorf("failed to create auth service: %w", err)
	}

	router, err := httpapi.NewRouter(httpapi.Options{
		Service:        svc,
		Sessions:       tokens,
		Logger:         logger,
		Metrics:        a.metrics,
		BasePath:       cfg.Server.BasePath,
		CookieName:     cfg.Session.CookieName,
		CookieSecure:   cfg.Session.CookieSecure,
		CookieMaxAge:   cfg.Session.MaxAge,
		AllowedOrigins: cfg.Server.CORSOrigins,
	})
	if err != nil {
		return fmt.Errorf("failed to create router: %w", err)
	}

	var worker *queue.Worker
	if cfg.Server.EmbeddedWorkers {
		worker, err = a.newWorker(queue.NewLogMailer(logger))
		if err != nil {
			return fmt.Errorf("failed to create job worker: %w", err)
		}
	}

	listener, err := deps.ListenerFactory("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Addr, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.startProbes(ctx, cancel); err != nil {
		_ = listener.Close() //nolint:errcheck // start error takes precedence
		return err
	}
	defer a.stopProbes()

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, httpErrCh, "http")

	// Workers stop after the HTTP server so in-flight requests can still
	// enqueue.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()
	var workerWG sync.WaitGroup
	if worker != nil {
		workerErrCh := make(chan error, 1)
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			defer close(workerErrCh)
			if runErr := worker.Run(workerCtx); runErr != nil {
				workerErrCh <- runErr
			}
		}()
		go monitorServerErrors(ctx, cancel, workerErrCh, "worker")
	}

	cmd.Println("API server started")
	logger.Info("API server ready", "addr", listener.Addr().String())

	awaitShutdown(ctx, logger)

	logger.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error stopping HTTP server", "error", err)
	}

	stopWorker()
	workerWG.Wait()

	logger.Info("shutdown complete")
	return nil
}

func avatarConfig(c config.AvatarConfig) avatar.Config {
	return avatar.Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		PublicBaseURL:   c.PublicBaseURL,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UsePathStyle:    c.UsePathStyle,
		KeyPrefix:       c.KeyPrefix,
		MaxBytes:        c.MaxBytes,
	}
}
