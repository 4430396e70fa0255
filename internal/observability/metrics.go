// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/hubbub-social/hubbub/internal/auth"
	"github.com/hubbub-social/hubbub/internal/queue"
)

// Metrics contains the Prometheus metrics for Hubbub.
type Metrics struct {
	AuthOperations  *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	CacheBreaker    prometheus.Gauge
	EnqueueFailures *prometheus.CounterVec
	JobsProcessed   *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
}

var (
	_ auth.Recorder  = (*Metrics)(nil)
	_ queue.Recorder = (*Metrics)(nil)
)

// NewMetrics creates and registers Hubbub metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubbub_auth_operations_total",
				Help: "Total number of auth operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubbub_user_cache_lookups_total",
				Help: "Total number of user cache lookups by result",
			},
			[]string{"result"},
		),
		CacheBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hubbub_user_cache_breaker_state",
				Help: "User cache circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
		),
		EnqueueFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubbub_job_enqueue_failures_total",
				Help: "Total number of jobs that could not be enqueued",
			},
			[]string{"queue", "job"},
		),
		JobsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubbub_jobs_processed_total",
				Help: "Total number of job deliveries by queue, job and outcome",
			},
			[]string{"queue", "job", "outcome"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hubbub_job_duration_seconds",
				Help:    "Job handling time including in-process retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue", "job"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hubbub_http_requests_total",
				Help: "Total number of HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(
		m.AuthOperations,
		m.CacheLookups,
		m.CacheBreaker,
		m.EnqueueFailures,
		m.JobsProcessed,
		m.JobDuration,
		m.HTTPRequests,
	)
	return m
}

// AuthOperation implements auth.Recorder.
func (m *Metrics) AuthOperation(operation, outcome string) {
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
}

// CacheLookup implements auth.Recorder.
func (m *Metrics) CacheLookup(result string) {
	m.CacheLookups.WithLabelValues(result).Inc()
}

// EnqueueFailure implements auth.Recorder.
func (m *Metrics) EnqueueFailure(queueName, job string) {
	m.EnqueueFailures.WithLabelValues(queueName, job).Inc()
}

// JobProcessed implements queue.Recorder.
func (m *Metrics) JobProcessed(queueName, job, outcome string, elapsed time.Duration) {
	m.JobsProcessed.WithLabelValues(queueName, job, outcome).Inc()
	m.JobDuration.WithLabelValues(queueName, job).Observe(elapsed.Seconds())
}

// BreakerStateChanged records a cache circuit breaker transition.
func (m *Metrics) BreakerStateChanged(_, to gobreaker.State) {
	m.CacheBreaker.Set(float64(to))
}

// HTTPRequest counts a served request. route is the matched pattern, not
// the raw path, to keep label cardinality bounded.
func (m *Metrics) HTTPRequest(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
