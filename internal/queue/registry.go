// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package queue

import (
	"context"
	"errors"
	"slices"
	"sync"
)

// Handler processes one job. Returning an error wrapped with Permanent sends
// the message straight to the dead-letter stream; any other error is
// retried.
type Handler func(ctx context.Context, env Envelope) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Registry maps queue and job names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]map[string]Handler)}
}

// Register binds a handler. A later registration for the same job replaces
// the earlier one.
func (r *Registry) Register(queue, job string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs, ok := r.handlers[queue]
	if !ok {
		jobs = make(map[string]Handler)
		r.handlers[queue] = jobs
	}
	jobs[job] = h
}

// Lookup returns the handler for a job.
func (r *Registry) Lookup(queue, job string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[queue][job]
	return h, ok
}

// HasQueue reports whether any handler is registered for queue.
func (r *Registry) HasQueue(queue string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[queue]) > 0
}

// Queues returns the registered queue names in sorted order.
func (r *Registry) Queues() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	queues := make([]string, 0, len(r.handlers))
	for q := range r.handlers {
		queues = append(queues, q)
	}
	slices.Sort(queues)
	return queues
}
