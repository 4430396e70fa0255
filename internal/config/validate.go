// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package config

import (
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/logging"
)

// Role selects which settings a command requires.
type Role int

// Roles.
const (
	RoleServe Role = iota
	RoleWorker
	RoleMigrate
)

const minJWTSecretLen = 32

// Validate checks the settings the given role depends on.
func (c *Config) Validate(role Role) error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "database.url").Errorf("DATABASE_URL is required")
	}
	if role == RoleMigrate {
		return nil
	}

	if err := c.validateCommon(); err != nil {
		return err
	}
	if role == RoleServe {
		return c.validateServe()
	}
	return nil
}

func (c *Config) validateCommon() error {
	if c.Redis.URL == "" {
		return oops.Code("CONFIG_INVALID").With("key", "redis.url").Errorf("REDIS_URL is required")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return oops.Code("CONFIG_INVALID").With("key", "log.level").Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatText:
	default:
		return oops.Code("CONFIG_INVALID").
			With("key", "log.format").
			Errorf("log format must be %q or %q, got %q", logging.FormatJSON, logging.FormatText, c.Log.Format)
	}
	if c.Queue.MaxDeliveries < 1 {
		return oops.Code("CONFIG_INVALID").With("key", "queue.max_deliveries").Errorf("must be at least 1")
	}
	return nil
}

func (c *Config) validateServe() error {
	if len(c.Session.JWTSecret) < minJWTSecretLen {
		return oops.Code("CONFIG_INVALID").
			With("key", "session.jwt_secret").
			Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLen)
	}
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").With("key", "server.addr").Errorf("listen address is required")
	}
	u, err := url.Parse(c.Server.ClientURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return oops.Code("CONFIG_INVALID").
			With("key", "server.client_url").
			Errorf("client url must be absolute, got %q", c.Server.ClientURL)
	}
	if strings.TrimSpace(c.Avatar.Bucket) == "" {
		return oops.Code("CONFIG_INVALID").With("key", "avatar.bucket").Errorf("avatar bucket is required")
	}
	if (c.Avatar.AccessKeyID == "") != (c.Avatar.SecretAccessKey == "") {
		return oops.Code("CONFIG_INVALID").
			With("key", "avatar.access_key_id").
			Errorf("access key id and secret must be set together")
	}
	if c.Session.MaxAge <= 0 {
		return oops.Code("CONFIG_INVALID").With("key", "session.max_age").Errorf("must be positive")
	}
	return nil
}
