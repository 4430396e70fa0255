// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/hubbub-social/hubbub/internal/queue")

// Outcomes reported to the Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeRetryLater = "retry_later"
	OutcomeDeadLetter = "dead_letter"
)

// DeadLetterQueue is the queue name of the dead-letter stream.
const DeadLetterQueue = "dead"

// Consumer is the subset of redis.UniversalClient the Worker uses.
type Consumer interface {
	Producer
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XPendingExt(ctx context.Context, a *redis.XPendingExtArgs) *redis.XPendingExtCmd
	XClaim(ctx context.Context, a *redis.XClaimArgs) *redis.XMessageSliceCmd
}

// Recorder receives job outcomes.
type Recorder interface {
	JobProcessed(queue, job, outcome string, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) JobProcessed(string, string, string, time.Duration) {}

// WorkerConfig tunes a Worker. Zero fields take the defaults from
// DefaultWorkerConfig.
type WorkerConfig struct {
	StreamPrefix string
	Group        string
	// Consumer names this worker within the group. Defaults to the
	// hostname plus a random suffix.
	Consumer string
	// Queues restricts the worker to a subset of registered queues.
	Queues []string

	BatchSize     int64
	Block         time.Duration
	ClaimInterval time.Duration
	ClaimIdle     time.Duration
	// MaxDeliveries is how many times a message may be delivered before
	// it is dead-lettered.
	MaxDeliveries int64
	// RetryBase and MaxRetries shape the in-process retry of a single
	// delivery.
	RetryBase  time.Duration
	RetryCap   time.Duration
	MaxRetries uint64
}

// DefaultWorkerConfig returns production defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		StreamPrefix:  "hubbub:jobs:",
		Group:         "hubbub-workers",
		BatchSize:     10,
		Block:         2 * time.Second,
		ClaimInterval: 30 * time.Second,
		ClaimIdle:     time.Minute,
		MaxDeliveries: 5,
		RetryBase:     100 * time.Millisecond,
		RetryCap:      2 * time.Second,
		MaxRetries:    3,
	}
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	d := DefaultWorkerConfig()
	if c.StreamPrefix == "" {
		c.StreamPrefix = d.StreamPrefix
	}
	if c.Group == "" {
		c.Group = d.Group
	}
	if c.Consumer == "" {
		c.Consumer = defaultConsumerName()
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.Block <= 0 {
		c.Block = d.Block
	}
	if c.ClaimInterval <= 0 {
		c.ClaimInterval = d.ClaimInterval
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = d.ClaimIdle
	}
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = d.MaxDeliveries
	}
	if c.RetryBase <= 0 {
		c.RetryBase = d.RetryBase
	}
	if c.RetryCap <= 0 {
		c.RetryCap = d.RetryCap
	}
	return c
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}

// Worker consumes job streams and dispatches messages to handlers.
type Worker struct {
	rdb      Consumer
	registry *Registry
	cfg      WorkerConfig
	logger   *slog.Logger
	metrics  Recorder
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithLogger sets the worker logger.
func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRecorder sets the job outcome recorder.
func WithRecorder(r Recorder) WorkerOption {
	return func(w *Worker) {
		if r != nil {
			w.metrics = r
		}
	}
}

// NewWorker creates a Worker for the handlers in registry.
func NewWorker(rdb Consumer, registry *Registry, cfg WorkerConfig, opts ...WorkerOption) (*Worker, error) {
	if rdb == nil {
		return nil, oops.Code("QUEUE_INVALID_DEPS").Errorf("redis client is required")
	}
	if registry == nil || len(registry.Queues()) == 0 {
		return nil, oops.Code("QUEUE_INVALID_DEPS").Errorf("no job handlers registered")
	}
	w := &Worker{
		rdb:      rdb,
		registry: registry,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		metrics:  noopRecorder{},
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, q := range w.cfg.Queues {
		if !registry.HasQueue(q) {
			return nil, oops.Code("QUEUE_UNKNOWN").With("queue", q).Errorf("no handlers registered for queue")
		}
	}
	return w, nil
}

// ConsumerName returns the name this worker uses within the group.
func (w *Worker) ConsumerName() string {
	return w.cfg.Consumer
}

func (w *Worker) queues() []string {
	if len(w.cfg.Queues) > 0 {
		return w.cfg.Queues
	}
	return w.registry.Queues()
}

// Run consumes every queue until ctx is cancelled. It returns nil on
// cancellation and the first setup error otherwise.
func (w *Worker) Run(ctx context.Context) error {
	queues := w.queues()
	for _, q := range queues {
		if err := w.ensureGroup(ctx, q); err != nil {
			return err
		}
	}

	w.logger.InfoContext(ctx, "job worker started",
		"consumer", w.cfg.Consumer,
		"group", w.cfg.Group,
		"queues", queues,
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queues {
		g.Go(func() error { return w.consume(gctx, q) })
		g.Go(func() error { return w.reclaim(gctx, q) })
	}
	err := g.Wait()
	w.logger.Info("job worker stopped", "consumer", w.cfg.Consumer)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (w *Worker) ensureGroup(ctx context.Context, queue string) error {
	stream := StreamKey(w.cfg.StreamPrefix, queue)
	err := w.rdb.XGroupCreateMkStream(ctx, stream, w.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return oops.Code("QUEUE_GROUP_FAILED").
			With("stream", stream).
			With("group", w.cfg.Group).
			Wrap(err)
	}
	return nil
}

func (w *Worker) consume(ctx context.Context, queue string) error {
	stream := StreamKey(w.cfg.StreamPrefix, queue)
	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := w.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{stream, ">"},
			Count:    w.cfg.BatchSize,
			Block:    w.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.logger.WarnContext(ctx, "job stream read failed", "stream", stream, "error", err)
			if !sleep(ctx, w.cfg.RetryBase) {
				return nil
			}
			continue
		}
		for _, s := range streams {
			for _, msg := range s.Messages {
				w.process(ctx, queue, msg, 1)
			}
		}
	}
}

// reclaim periodically claims messages that have sat unacknowledged longer
// than ClaimIdle, whether their consumer died or their handler failed.
func (w *Worker) reclaim(ctx context.Context, queue string) error {
	ticker := time.NewTicker(w.cfg.ClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.ReclaimOnce(ctx, queue); err != nil && ctx.Err() == nil {
				w.logger.WarnContext(ctx, "job reclaim failed", "queue", queue, "error", err)
			}
		}
	}
}

// ReclaimOnce claims and processes one batch of idle pending messages.
func (w *Worker) ReclaimOnce(ctx context.Context, queue string) error {
	stream := StreamKey(w.cfg.StreamPrefix, queue)
	pending, err := w.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  w.cfg.Group,
		Idle:   w.cfg.ClaimIdle,
		Start:  "-",
		End:    "+",
		Count:  w.cfg.BatchSize,
	}).Result()
	if err != nil {
		return oops.Code("QUEUE_PENDING_FAILED").With("stream", stream).Wrap(err)
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, 0, len(pending))
	deliveries := make(map[string]int64, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
		deliveries[p.ID] = p.RetryCount
	}

	claimed, err := w.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    w.cfg.Group,
		Consumer: w.cfg.Consumer,
		MinIdle:  w.cfg.ClaimIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return oops.Code("QUEUE_CLAIM_FAILED").With("stream", stream).With("count", len(ids)).Wrap(err)
	}

	for _, msg := range claimed {
		// XCLAIM bumps the delivery counter.
		w.process(ctx, queue, msg, deliveries[msg.ID]+1)
	}
	return nil
}

func (w *Worker) process(ctx context.Context, queue string, msg redis.XMessage, deliveries int64) {
	start := time.Now()
	env, err := decodeMessage(queue, msg, deliveries)
	if err != nil {
		w.deadLetter(ctx, queue, msg, "", "malformed message", err)
		w.metrics.JobProcessed(queue, "", OutcomeDeadLetter, time.Since(start))
		return
	}

	handler, ok := w.registry.Lookup(queue, env.Job)
	if !ok {
		w.deadLetter(ctx, queue, msg, env.Job, "no handler registered", nil)
		w.metrics.JobProcessed(queue, env.Job, OutcomeDeadLetter, time.Since(start))
		return
	}

	if deliveries > w.cfg.MaxDeliveries {
		w.deadLetter(ctx, queue, msg, env.Job, "max deliveries exceeded", nil)
		w.metrics.JobProcessed(queue, env.Job, OutcomeDeadLetter, time.Since(start))
		return
	}

	jobCtx, span := tracer.Start(env.Context(ctx), "queue."+env.Job,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("queue.name", queue),
			attribute.String("queue.message_id", msg.ID),
			attribute.Int64("queue.deliveries", deliveries),
		))
	defer span.End()

	err = retry.Do(jobCtx, w.backoff(), func(ctx context.Context) error {
		herr := handler(ctx, env)
		if herr == nil || IsPermanent(herr) {
			return herr
		}
		return retry.RetryableError(herr)
	})

	switch {
	case err == nil:
		w.ack(ctx, queue, msg.ID)
		w.metrics.JobProcessed(queue, env.Job, OutcomeSuccess, time.Since(start))
	case IsPermanent(err):
		span.RecordError(err)
		span.SetStatus(codes.Error, "permanent failure")
		w.deadLetter(ctx, queue, msg, env.Job, "permanent failure", err)
		w.metrics.JobProcessed(queue, env.Job, OutcomeDeadLetter, time.Since(start))
	default:
		// Left pending; the reclaim loop redelivers it after ClaimIdle.
		span.RecordError(err)
		span.SetStatus(codes.Error, "retry later")
		w.logger.WarnContext(ctx, "job failed, will be redelivered",
			"queue", queue,
			"job", env.Job,
			"message_id", msg.ID,
			"deliveries", deliveries,
			"error", err,
		)
		w.metrics.JobProcessed(queue, env.Job, OutcomeRetryLater, time.Since(start))
	}
}

func (w *Worker) backoff() retry.Backoff {
	b := retry.NewExponential(w.cfg.RetryBase)
	b = retry.WithCappedDuration(w.cfg.RetryCap, b)
	b = retry.WithJitterPercent(10, b)
	return retry.WithMaxRetries(w.cfg.MaxRetries, b)
}

func (w *Worker) ack(ctx context.Context, queue, id string) {
	stream := StreamKey(w.cfg.StreamPrefix, queue)
	if err := w.rdb.XAck(context.WithoutCancel(ctx), stream, w.cfg.Group, id).Err(); err != nil {
		w.logger.WarnContext(ctx, "job ack failed", "stream", stream, "message_id", id, "error", err)
	}
}

// deadLetter copies msg to the dead-letter stream with the failure reason,
// then acknowledges the original. If the copy fails the original stays
// pending so it is not lost.
func (w *Worker) deadLetter(ctx context.Context, queue string, msg redis.XMessage, job, reason string, cause error) {
	values := make(map[string]any, len(msg.Values)+4)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["source_queue"] = queue
	values["source_id"] = msg.ID
	values["reason"] = reason
	if cause != nil {
		values["error"] = cause.Error()
	}

	dead := StreamKey(w.cfg.StreamPrefix, DeadLetterQueue)
	if err := w.rdb.XAdd(context.WithoutCancel(ctx), &redis.XAddArgs{Stream: dead, Values: values}).Err(); err != nil {
		w.logger.ErrorContext(ctx, "dead-letter write failed",
			"queue", queue,
			"message_id", msg.ID,
			"error", err,
		)
		return
	}
	w.ack(ctx, queue, msg.ID)

	attrs := []any{"queue", queue, "job", job, "message_id", msg.ID, "reason", reason}
	if cause != nil {
		attrs = append(attrs, "error", cause)
	}
	w.logger.ErrorContext(ctx, "job dead-lettered", attrs...)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
