// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package queue

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// Mailer delivers rendered email jobs.
type Mailer interface {
	Send(ctx context.Context, job auth.EmailJob) error
}

// LogMailer logs emails instead of sending them. Template data is not
// logged since it carries reset links.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer creates a LogMailer. A nil logger uses slog.Default.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send implements Mailer.
func (m *LogMailer) Send(ctx context.Context, job auth.EmailJob) error {
	m.logger.InfoContext(ctx, "email delivered",
		"to", job.ReceiverEmail,
		"subject", job.Subject,
		"template", job.Template,
		"data_keys", slices.Sorted(maps.Keys(job.Data)),
	)
	return nil
}
