// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/keybridge/lib/audit"
)

const metricsNamespace = "keybridge"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	consentOutcomes *prometheus.CounterVec
	rateLimited     *prometheus.CounterVec
	auditFailures   prometheus.Counter
}

// NewMetrics creates and registers the daemon collectors. hasKeys is
// sampled at scrape time for the keys_held gauge.
func NewMetrics(hasKeys func() bool) *Metrics {
	registry := prometheus.NewRegistry()
	metrics := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Daemon API requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Daemon API request latency, including time waiting for consent.",
			Buckets:   []float64{0.005, 0.05, 0.5, 2, 5, 15, 30, 60, 120},
		}, []string{"route"}),
		consentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "consent_requests_total",
			Help:      "Resolved consent requests by operation and outcome.",
		}, []string{"operation", "outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Consent-gated requests rejected by the per-origin rate limit.",
		}, []string{"route"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit records that could not be written.",
		}),
	}

	keysHeld := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "keys_held",
		Help:      "1 when the daemon holds a keypair.",
	}, func() float64 {
		if hasKeys != nil && hasKeys() {
			return 1
		}
		return 0
	})

	registry.MustRegister(
		metrics.requests,
		metrics.requestDuration,
		metrics.consentOutcomes,
		metrics.rateLimited,
		metrics.auditFailures,
		keysHeld,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeRequest(route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeRateLimited(route string) {
	m.rateLimited.WithLabelValues(route).Inc()
}

// AuditSink wraps next so every resolved consent request is counted
// before it is written. A nil next counts without writing.
func (m *Metrics) AuditSink(next audit.Sink) audit.Sink {
	return &countingSink{next: next, metrics: m}
}

type countingSink struct {
	next    audit.Sink
	metrics *Metrics
}

func (s *countingSink) Append(record audit.Record) error {
	s.metrics.consentOutcomes.WithLabelValues(record.Operation, record.Outcome).Inc()
	if s.next == nil {
		return nil
	}
	if err := s.next.Append(record); err != nil {
		s.metrics.auditFailures.Inc()
		return err
	}
	return nil
}
