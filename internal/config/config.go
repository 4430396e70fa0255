// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package config loads Hubbub configuration.
//
// Sources, lowest precedence first: built-in defaults (also the flag
// defaults), the YAML config file, flags set on the command line, a .env
// file, and the process environment.
package config

import (
	"time"
)

// Config is the complete runtime configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Session       SessionConfig       `koanf:"session"`
	Database      DatabaseConfig      `koanf:"database"`
	Redis         RedisConfig         `koanf:"redis"`
	Queue         QueueConfig         `koanf:"queue"`
	Avatar        AvatarConfig        `koanf:"avatar"`
	Observability ObservabilityConfig `koanf:"observability"`
	Log           LogConfig           `koanf:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr" env:"HUBBUB_ADDR"`
	BasePath        string        `koanf:"base_path" env:"HUBBUB_BASE_PATH"`
	ClientURL       string        `koanf:"client_url" env:"CLIENT_URL"`
	CORSOrigins     []string      `koanf:"cors_origins" env:"HUBBUB_CORS_ORIGINS" envSeparator:","`
	EmbeddedWorkers bool          `koanf:"embedded_workers" env:"HUBBUB_EMBEDDED_WORKERS"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SessionConfig configures the session cookie and token signing.
type SessionConfig struct {
	CookieName   string        `koanf:"cookie_name" env:"HUBBUB_COOKIE_NAME"`
	CookieSecure bool          `koanf:"cookie_secure" env:"HUBBUB_COOKIE_SECURE"`
	MaxAge       time.Duration `koanf:"max_age"`
	JWTSecret    string        `koanf:"jwt_secret" env:"JWT_SECRET"`
}

// DatabaseConfig configures PostgreSQL.
type DatabaseConfig struct {
	URL             string        `koanf:"url" env:"DATABASE_URL"`
	MaxConns        int32         `koanf:"max_conns"`
	MinConns        int32         `koanf:"min_conns"`
	MaxConnLifetime time.Duration `koanf:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
}

// BreakerConfig tunes the user cache circuit breaker.
type BreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// RedisConfig configures the cache and job streams.
type RedisConfig struct {
	URL          string        `koanf:"url" env:"REDIS_URL"`
	UserCacheTTL time.Duration `koanf:"user_cache_ttl"`
	Breaker      BreakerConfig `koanf:"breaker"`
}

// QueueConfig configures job dispatch and workers.
type QueueConfig struct {
	StreamPrefix   string        `koanf:"stream_prefix" env:"HUBBUB_QUEUE_PREFIX"`
	Group          string        `koanf:"group"`
	Consumer       string        `koanf:"consumer" env:"HUBBUB_WORKER_NAME"`
	Queues         []string      `koanf:"queues"`
	MaxLen         int64         `koanf:"max_len"`
	BatchSize      int64         `koanf:"batch_size"`
	Block          time.Duration `koanf:"block"`
	ClaimInterval  time.Duration `koanf:"claim_interval"`
	ClaimIdle      time.Duration `koanf:"claim_idle"`
	MaxDeliveries  int64         `koanf:"max_deliveries"`
	EnqueueTimeout time.Duration `koanf:"enqueue_timeout"`
	RetryBase      time.Duration `koanf:"retry_base"`
	RetryCap       time.Duration `koanf:"retry_cap"`
	MaxRetries     uint64        `koanf:"max_retries"`
}

// AvatarConfig configures avatar storage.
type AvatarConfig struct {
	Bucket          string `koanf:"bucket" env:"HUBBUB_AVATAR_BUCKET"`
	Region          string `koanf:"region" env:"AWS_REGION"`
	Endpoint        string `koanf:"endpoint" env:"HUBBUB_AVATAR_ENDPOINT"`
	PublicBaseURL   string `koanf:"public_base_url" env:"HUBBUB_AVATAR_PUBLIC_URL"`
	AccessKeyID     string `koanf:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `koanf:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `koanf:"use_path_style"`
	KeyPrefix       string `koanf:"key_prefix"`
	MaxBytes        int    `koanf:"max_bytes"`
}

// ObservabilityConfig configures the metrics and health listeners.
type ObservabilityConfig struct {
	MetricsAddr    string `koanf:"metrics_addr" env:"HUBBUB_METRICS_ADDR"`
	GRPCHealthAddr string `koanf:"grpc_health_addr" env:"HUBBUB_GRPC_HEALTH_ADDR"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" env:"HUBBUB_LOG_FORMAT"`
	Level  string `koanf:"level" env:"HUBBUB_LOG_LEVEL"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			BasePath:        "/api/v1",
			ClientURL:       "http://localhost:3000",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			CookieName: "session",
			MaxAge:     7 * 24 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxConns:        10,
			MaxConnLifetime: time.Hour,
			ConnectTimeout:  5 * time.Second,
		},
		Redis: RedisConfig{
			URL:          "redis://localhost:6379/0",
			UserCacheTTL: 24 * time.Hour,
			Breaker: BreakerConfig{
				MaxRequests:  1,
				Interval:     10 * time.Second,
				Timeout:      30 * time.Second,
				MinRequests:  5,
				FailureRatio: 0.5,
			},
		},
		Queue: QueueConfig{
			StreamPrefix:   "hubbub:jobs:",
			Group:          "hubbub-workers",
			MaxLen:         100000,
			BatchSize:      10,
			Block:          2 * time.Second,
			ClaimInterval:  30 * time.Second,
			ClaimIdle:      time.Minute,
			MaxDeliveries:  5,
			EnqueueTimeout: 3 * time.Second,
			RetryBase:      100 * time.Millisecond,
			RetryCap:       2 * time.Second,
			MaxRetries:     3,
		},
		Avatar: AvatarConfig{
			Region:    "us-east-1",
			KeyPrefix: "avatars/",
			MaxBytes:  5 << 20,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9100",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}
