// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/hubbub-social/hubbub/internal/auth"
)

// Producer is the subset of redis.UniversalClient the Dispatcher uses.
type Producer interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	// StreamPrefix is prepended to queue names to form stream keys.
	StreamPrefix string
	// MaxLen approximately caps each stream; zero disables trimming.
	MaxLen int64
	// Timeout bounds a single XADD.
	Timeout time.Duration
}

// Dispatcher enqueues jobs onto Redis Streams.
type Dispatcher struct {
	rdb     Producer
	prefix  string
	maxLen  int64
	timeout time.Duration
	now     func() time.Time
}

var _ auth.JobDispatcher = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(rdb Producer, opts DispatcherOptions) (*Dispatcher, error) {
	if rdb == nil {
		return nil, oops.Code("QUEUE_INVALID_DEPS").Errorf("redis client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Dispatcher{
		rdb:     rdb,
		prefix:  opts.StreamPrefix,
		maxLen:  opts.MaxLen,
		timeout: timeout,
		now:     time.Now,
	}, nil
}

// StreamKey returns the stream holding queue's jobs.
func StreamKey(prefix, queue string) string {
	return prefix + queue
}

// Enqueue appends a job to the queue's stream. The write is detached from
// ctx cancellation so a disconnecting client cannot drop an accepted job.
func (d *Dispatcher) Enqueue(ctx context.Context, queue, job string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return oops.Code("QUEUE_ENCODE_FAILED").With("queue", queue).With("job", job).Wrap(err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: StreamKey(d.prefix, queue),
		Values: encodeValues(ctx, job, data, d.now()),
	}
	if d.maxLen > 0 {
		args.MaxLen = d.maxLen
		args.Approx = true
	}

	if err := d.rdb.XAdd(ctx, args).Err(); err != nil {
		return oops.Code("QUEUE_ENQUEUE_FAILED").
			With("queue", queue).
			With("job", job).
			With("stream", args.Stream).
			Wrap(err)
	}
	return nil
}
