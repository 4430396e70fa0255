// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

// Package queue runs background jobs over Redis Streams.
//
// Each queue is one stream. Producers XADD an envelope; workers in a consumer
// group read, run the registered handler and XACK on success. Messages left
// pending by a crashed or failing consumer are reclaimed with XPENDING and
// XCLAIM. Delivery is at-least-once, so handlers must be idempotent.
package queue

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Stream fields.
const (
	fieldJob        = "job"
	fieldPayload    = "payload"
	fieldEnqueuedAt = "enqueued_at"
	fieldTrace      = "trace"
)

// Envelope is a decoded stream message.
type Envelope struct {
	ID         string
	Queue      string
	Job        string
	Payload    json.RawMessage
	EnqueuedAt time.Time
	// Deliveries counts how many times the message has been handed to a
	// consumer, including this one.
	Deliveries int64

	trace propagation.MapCarrier
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return oops.Code("QUEUE_PAYLOAD_INVALID").
			With("queue", e.Queue).
			With("job", e.Job).
			With("message_id", e.ID).
			Wrap(err)
	}
	return nil
}

// Context returns ctx carrying the producer's trace context.
func (e Envelope) Context(ctx context.Context) context.Context {
	if len(e.trace) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, e.trace)
}

func encodeValues(ctx context.Context, job string, payload []byte, now time.Time) map[string]any {
	values := map[string]any{
		fieldJob:        job,
		fieldPayload:    payload,
		fieldEnqueuedAt: strconv.FormatInt(now.UnixMilli(), 10),
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) > 0 {
		if data, err := json.Marshal(carrier); err == nil {
			values[fieldTrace] = data
		}
	}
	return values
}

func decodeMessage(queue string, msg redis.XMessage, deliveries int64) (Envelope, error) {
	env := Envelope{ID: msg.ID, Queue: queue, Deliveries: deliveries}

	job, ok := msg.Values[fieldJob].(string)
	if !ok || job == "" {
		return env, oops.Code("QUEUE_MESSAGE_INVALID").
			With("message_id", msg.ID).
			Errorf("message has no job name")
	}
	env.Job = job

	payload, ok := msg.Values[fieldPayload].(string)
	if !ok {
		return env, oops.Code("QUEUE_MESSAGE_INVALID").
			With("message_id", msg.ID).
			With("job", job).
			Errorf("message has no payload")
	}
	env.Payload = json.RawMessage(payload)

	if raw, ok := msg.Values[fieldEnqueuedAt].(string); ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			env.EnqueuedAt = time.UnixMilli(ms).UTC()
		}
	}
	if raw, ok := msg.Values[fieldTrace].(string); ok {
		_ = json.Unmarshal([]byte(raw), &env.trace) //nolint:errcheck // trace context is optional
	}
	return env, nil
}
