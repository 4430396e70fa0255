// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package main

import (
	"context"
	"net"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth/postgres"
	"github.com/hubbub-social/hubbub/internal/avatar"
	"github.com/hubbub-social/hubbub/internal/cache"
	"github.com/hubbub-social/hubbub/internal/config"
	"github.com/hubbub-social/hubbub/internal/observability"
	"github.com/hubbub-social/hubbub/internal/queue"
	"github.com/hubbub-social/hubbub/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	RuntimeDeps

	// AvatarClientFactory creates the S3 client avatars are uploaded with.
	// Default: avatar.NewS3Client
	AvatarClientFactory func(ctx context.Context, cfg avatar.Config) (avatar.PutObjectAPI, error)

	// ListenerFactory creates the HTTP API listener.
	// Default: net.Listen
	ListenerFactory func(network, address string) (net.Listener, error)
}

// WorkerDeps contains injectable dependencies for the worker command.
// All fields with nil values will use their default implementations.
type WorkerDeps struct {
	RuntimeDeps

	// MailerFactory creates the email sender.
	// Default: queue.NewLogMailer
	MailerFactory func() queue.Mailer
}

// RuntimeDeps are shared by every long-running command.
type RuntimeDeps struct {
	// PoolFactory opens the PostgreSQL pool.
	// Default: store.OpenPool
	PoolFactory func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error)

	// RedisFactory connects to Redis.
	// Default: redis.ParseURL + redis.NewClient
	RedisFactory func(ctx context.Context, url string) (RedisClient, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// HealthServerFactory creates the gRPC health endpoint.
	// Default: observability.NewGRPCHealth
	HealthServerFactory func(addr string, readinessChecker observability.ReadinessChecker) HealthServer
}

func (d *RuntimeDeps) setDefaults() {
	if d.PoolFactory == nil {
		d.PoolFactory = func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error) {
			return store.OpenPool(ctx, cfg.URL, store.PoolConfig{
				MaxConns:        cfg.MaxConns,
				MinConns:        cfg.MinConns,
				MaxConnLifetime: cfg.MaxConnLifetime,
				ConnectTimeout:  cfg.ConnectTimeout,
			})
		}
	}
	if d.RedisFactory == nil {
		d.RedisFactory = connectRedis
	}
	if d.ObservabilityServerFactory == nil {
		d.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker)
		}
	}
	if d.HealthServerFactory == nil {
		d.HealthServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) HealthServer {
			return observability.NewGRPCHealth(addr, "hubbub", readinessChecker, 0)
		}
	}
}

// Pool interface wraps the methods used from *pgxpool.Pool.
type Pool interface {
	postgres.DB
	Ping(ctx context.Context) error
	Close()
}

// RedisClient interface wraps the methods used from *redis.Client.
type RedisClient interface {
	cache.Client
	queue.Consumer
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// HealthServer interface wraps the methods used from observability.GRPCHealth.
type HealthServer interface {
	Start(ctx context.Context) (<-chan error, error)
	Stop()
	Addr() string
}

func connectRedis(ctx context.Context, url string) (RedisClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_CONFIG_INVALID").With("operation", "parse redis url").Wrap(err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint:errcheck // ping error takes precedence
		return nil, oops.Code("REDIS_CONNECT_FAILED").With("addr", opts.Addr).Wrap(err)
	}
	return client, nil
}
