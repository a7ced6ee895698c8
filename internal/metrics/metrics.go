// Package metrics provides Prometheus metrics for the draft pipeline
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Generation metrics
	GenerationAttemptsTotal *prometheus.CounterVec

	// Draft lifecycle metrics
	DraftTransitionsTotal *prometheus.CounterVec
	PendingDrafts         prometheus.Gauge
	StaleDrafts           prometheus.Gauge

	// Publication metrics
	PublicationsTotal *prometheus.CounterVec

	// Webhook metrics
	WebhookRequestsTotal   *prometheus.CounterVec
	WebhookRequestDuration *prometheus.HistogramVec
	SignatureFailuresTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics on a private registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg}

	m.GenerationAttemptsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafts_generation_attempts_total",
			Help: "Generation attempts by critic outcome",
		},
		[]string{"outcome"},
	)

	m.DraftTransitionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafts_transitions_total",
			Help: "Draft lifecycle transitions",
		},
		[]string{"action"},
	)

	m.PendingDrafts = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "drafts_pending",
			Help: "Drafts awaiting review at last health check",
		},
	)

	m.StaleDrafts = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "drafts_stale",
			Help: "Pending drafts older than the configured TTL at last health check",
		},
	)

	m.PublicationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafts_publications_total",
			Help: "Publication results per platform",
		},
		[]string{"platform", "result"},
	)

	m.WebhookRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "drafts_webhook_requests_total",
			Help: "Inbound webhook requests",
		},
		[]string{"path", "status"},
	)

	m.WebhookRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "drafts_webhook_request_duration_seconds",
			Help:    "Duration of webhook requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	m.SignatureFailuresTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "drafts_signature_failures_total",
			Help: "Inbound requests rejected by signature verification",
		},
	)

	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the registry, mainly for tests
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

func (m *Metrics) ObserveAttempt(outcome string) {
	if m == nil {
		return
	}
	m.GenerationAttemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(action string) {
	if m == nil {
		return
	}
	m.DraftTransitionsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) ObservePublication(platform string, success, skipped bool) {
	if m == nil {
		return
	}
	result := "failure"
	switch {
	case skipped:
		result = "skipped"
	case success:
		result = "success"
	}
	m.PublicationsTotal.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) ObserveRequest(path, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.WebhookRequestsTotal.WithLabelValues(path, status).Inc()
	m.WebhookRequestDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSignatureFailure() {
	if m == nil {
		return
	}
	m.SignatureFailuresTotal.Inc()
}

func (m *Metrics) SetDraftGauges(pending, stale int) {
	if m == nil {
		return
	}
	m.PendingDrafts.Set(float64(pending))
	m.StaleDrafts.Set(float64(stale))
}
