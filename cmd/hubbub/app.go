// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hubbub-social/hubbub/internal/auth"
	"github.com/hubbub-social/hubbub/internal/auth/postgres"
	"github.com/hubbub-social/hubbub/internal/cache"
	"github.com/hubbub-social/hubbub/internal/config"
	"github.com/hubbub-social/hubbub/internal/logging"
	"github.com/hubbub-social/hubbub/internal/observability"
	"github.com/hubbub-social/hubbub/internal/queue"
)

const (
	readinessTimeout = 2 * time.Second
	probeStopTimeout = 5 * time.Second
)

// app holds the connections and probes shared by serve and worker.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	pool    Pool
	rdb     RedisClient
	metrics *observability.Metrics

	readiness observability.ReadinessChecker
	obsServer ObservabilityServer
	health    HealthServer
}

// setupLogging installs the process logger.
func setupLogging(cfg *config.Config, component string) *slog.Logger {
	return logging.SetDefault(logging.Options{
		Service: "hubbub-" + component,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
}

// openApp connects to PostgreSQL and Redis and prepares the probes. The
// caller must call close.
func openApp(ctx context.Context, cfg *config.Config, deps *RuntimeDeps, logger *slog.Logger) (*app, error) {
	pool, err := deps.PoolFactory(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("connected to database")

	rdb, err := deps.RedisFactory(ctx, cfg.Redis.URL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("connected to redis")

	a := &app{cfg: cfg, logger: logger, pool: pool, rdb: rdb}
	a.readiness = observability.NewReadiness(logger, readinessTimeout,
		observability.Check{Name: "postgres", Ping: pool.Ping},
		observability.Check{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	)

	if cfg.Observability.MetricsAddr != "" {
		a.obsServer = deps.ObservabilityServerFactory(cfg.Observability.MetricsAddr, a.readiness)
		a.metrics = a.obsServer.Metrics()
	} else {
		a.metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	if cfg.Observability.GRPCHealthAddr != "" {
		a.health = deps.HealthServerFactory(cfg.Observability.GRPCHealthAddr, a.readiness)
	}
	return a, nil
}

// startProbes starts the observability and gRPC health servers. A server
// failure after start calls cancel.
func (a *app) startProbes(ctx context.Context, cancel context.CancelFunc) error {
	if a.obsServer != nil {
		errCh, err := a.obsServer.Start()
		if err != nil {
			return fmt.Errorf("failed to start observability server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
		a.logger.Info("observability server started", "addr", a.obsServer.Addr())
	}
	if a.health != nil {
		errCh, err := a.health.Start(ctx)
		if err != nil {
			a.stopProbes()
			return fmt.Errorf("failed to start gRPC health server: %w", err)
		}
		go monitorServerErrors(ctx, cancel, errCh, "grpc-health")
		a.logger.Info("gRPC health server started", "addr", a.health.Addr())
	}
	return nil
}

func (a *app) stopProbes() {
	if a.health != nil {
		a.health.Stop()
	}
	if a.obsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), probeStopTimeout)
		defer cancel()
		if err := a.obsServer.Stop(ctx); err != nil {
			a.logger.Warn("error stopping observability server", "error", err)
		}
	}
}

func (a *app) close() {
	if err := a.rdb.Close(); err != nil {
		a.logger.Debug("error closing redis client", "error", err)
	}
	a.pool.Close()
}

// newUserCache builds the Redis user cache with breaker transitions
// exported as metrics.
func (a *app) newUserCache() (*cache.UserCache, error) {
	b := a.cfg.Redis.Breaker
	return cache.NewUserCache(a.rdb, cache.Options{
		TTL: a.cfg.Redis.UserCacheTTL,
		Breaker: cache.BreakerSettings{
			MaxRequests:  b.MaxRequests,
			Interval:     b.Interval,
			Timeout:      b.Timeout,
			MinRequests:  b.MinRequests,
			FailureRatio: b.FailureRatio,
		},
		Logger:        a.logger,
		OnStateChange: a.metrics.BreakerStateChanged,
	})
}

// newAuthService wires the auth service over the durable store, the user
// cache, the job dispatcher and images.
func (a *app) newAuthService(images auth.ImageHost) (*auth.Service, *auth.TokenIssuer, error) {
	tokens, err := auth.NewTokenIssuer(a.cfg.Session.JWTSecret)
	if err != nil {
		return nil, nil, err
	}
	users, err := a.newUserCache()
	if err != nil {
		return nil, nil, err
	}
	jobs, err := queue.NewDispatcher(a.rdb, queue.DispatcherOptions{
		StreamPrefix: a.cfg.Queue.StreamPrefix,
		MaxLen:       a.cfg.Queue.MaxLen,
		Timeout:      a.cfg.Queue.EnqueueTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	svc, err := auth.NewService(auth.Deps{
		Store:     postgres.NewStore(a.pool),
		Cache:     users,
		Jobs:      jobs,
		Images:    images,
		Tokens:    tokens,
		Hasher:    auth.NewArgon2idHasher(),
		Logger:    a.logger,
		Metrics:   a.metrics,
		ClientURL: a.cfg.Server.ClientURL,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, tokens, nil
}

// newWorker builds a job worker for every auth job.
func (a *app) newWorker(mailer queue.Mailer) (*queue.Worker, error) {
	registry := queue.NewRegistry()
	queue.RegisterAuthJobs(registry, postgres.NewStore(a.pool), mailer)

	q := a.cfg.Queue
	return queue.NewWorker(a.rdb, registry, queue.WorkerConfig{
		StreamPrefix:  q.StreamPrefix,
		Group:         q.Group,
		Consumer:      q.Consumer,
		Queues:        q.Queues,
		BatchSize:     q.BatchSize,
		Block:         q.Block,
		ClaimInterval: q.ClaimInterval,
		ClaimIdle:     q.ClaimIdle,
		MaxDeliveries: q.MaxDeliveries,
		RetryBase:     q.RetryBase,
		RetryCap:      q.RetryCap,
		MaxRetries:    q.MaxRetries,
	}, queue.WithLogger(a.logger), queue.WithRecorder(a.metrics))
}

// awaitShutdown blocks until a termination signal arrives or ctx is done.
func awaitShutdown(ctx context.Context, logger *slog.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
}

// monitorServerErrors monitors a server's error channel and cancels the context on error.
// It exits when either an error is received, the channel is closed, or the context is cancelled.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
