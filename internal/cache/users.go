// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package cache implements the auth cache gateway on Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sony/gobreaker"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// Key layout.
const (
	userKeyPrefix = "users:"
	userIndexKey  = "users:index"
	fieldUsername = "username"
	fieldData     = "data"
)

// Client is the subset of redis.UniversalClient the cache uses.
type Client interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Ping(ctx context.Context) *redis.StatusCmd
}

// BreakerSettings tunes the circuit breaker guarding Redis calls.
type BreakerSettings struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open.
	Timeout time.Duration
	// MinRequests before the failure ratio is considered.
	MinRequests uint32
	// FailureRatio that trips the breaker.
	FailureRatio float64
}

// DefaultBreakerSettings returns the settings used when none are configured.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  1,
		Interval:     10 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.5,
	}
}

// Options configures a UserCache.
type Options struct {
	// TTL of a cached user. Zero keeps entries until evicted.
	TTL     time.Duration
	Breaker BreakerSettings
	Logger  *slog.Logger
	// OnStateChange is called after the breaker changes state.
	OnStateChange func(from, to gobreaker.State)
}

// UserCache stores hydrated user profiles in Redis hashes.
type UserCache struct {
	rdb    Client
	ttl    time.Duration
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

var _ auth.CacheGateway = (*UserCache)(nil)

// NewUserCache creates a UserCache.
func NewUserCache(rdb Client, opts Options) (*UserCache, error) {
	if rdb == nil {
		return nil, oops.Code("CACHE_INVALID_DEPS").Errorf("redis client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bs := opts.Breaker
	if bs == (BreakerSettings{}) {
		bs = DefaultBreakerSettings()
	}

	c := &UserCache{rdb: rdb, ttl: opts.TTL, logger: logger}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-user-cache",
		MaxRequests: bs.MaxRequests,
		Interval:    bs.Interval,
		Timeout:     bs.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bs.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bs.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			if opts.OnStateChange != nil {
				opts.OnStateChange(from, to)
			}
		},
	})
	return c, nil
}

func userKey(accountID string) string {
	return userKeyPrefix + accountID
}

// GetUserFromCache returns the cached profile, or (nil, nil) on a miss.
func (c *UserCache) GetUserFromCache(ctx context.Context, accountID string) (*auth.UserProfile, error) {
	v, err := c.cb.Execute(func() (any, error) {
		data, err := c.rdb.HGet(ctx, userKey(accountID), fieldData).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, err //nolint:wrapcheck // wrapped below
		}
		return data, nil
	})
	if err != nil {
		return nil, c.wrap(err, "get user", accountID)
	}
	data, _ := v.([]byte)
	if data == nil {
		return nil, nil
	}

	var profile auth.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, oops.Code("CACHE_DECODE_FAILED").With("account_id", accountID).Wrap(err)
	}
	return &profile, nil
}

// SaveToUserCache upserts the profile hash and its entry in the users
// index in one MULTI/EXEC.
func (c *UserCache) SaveToUserCache(ctx context.Context, accountID, username string, user *auth.UserProfile) error {
	if user == nil {
		return oops.Code("CACHE_INVALID_USER").With("account_id", accountID).Errorf("user cannot be nil")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return oops.Code("CACHE_ENCODE_FAILED").With("account_id", accountID).Wrap(err)
	}

	key := userKey(accountID)
	ttl := c.jitteredTTL()
	_, err = c.cb.Execute(func() (any, error) {
		return c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldUsername, username, fieldData, data)
			if ttl > 0 {
				pipe.Expire(ctx, key, ttl)
			}
			pipe.ZAdd(ctx, userIndexKey, redis.Z{
				Score:  float64(user.CreatedAt.UnixMilli()),
				Member: accountID,
			})
			return nil
		})
	})
	if err != nil {
		return c.wrap(err, "save user", accountID)
	}
	return nil
}

// Ping checks Redis connectivity, bypassing the breaker.
func (c *UserCache) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return oops.Code("CACHE_PING_FAILED").Wrap(err)
	}
	return nil
}

// State reports the breaker state.
func (c *UserCache) State() gobreaker.State {
	return c.cb.State()
}

// jitteredTTL spreads expiries over an extra 0-10% so entries written
// together don't expire together.
func (c *UserCache) jitteredTTL() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	spread := int64(c.ttl / 10)
	if spread <= 0 {
		return c.ttl
	}
	return c.ttl + time.Duration(rand.Int64N(spread)) //nolint:gosec // jitter, not security
}

func (c *UserCache) wrap(err error, operation, accountID string) error {
	code := "CACHE_COMMAND_FAILED"
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		code = "CACHE_UNAVAILABLE"
	}
	return oops.Code(code).
		With("operation", operation).
		With("account_id", accountID).
		Wrap(err)
}
