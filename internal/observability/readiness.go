// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package observability

import (
	"context"
	"log/slog"
	"time"
)

// Check is one dependency probed for readiness.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewReadiness returns a ReadinessChecker that is ready only when every
// check pings within timeout. Failures are logged at warn.
func NewReadiness(logger *slog.Logger, timeout time.Duration, checks ...Check) ReadinessChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) bool {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		ready := true
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
				ready = false
			}
		}
		return ready
	}
}
