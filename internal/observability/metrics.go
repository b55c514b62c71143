package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for relay and notification counters.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics owns the prometheus collectors of the process. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry        *prometheus.Registry
	requestCount    *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	relayEvents     *prometheus.CounterVec
	notifications   *prometheus.CounterVec
	correlationWarn prometheus.Counter
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"path", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "http_errors_total",
			Help:      "HTTP requests that ended in a domain error",
		}, []string{"path", "method", "code"}),
		relayEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "events_total",
			Help:      "Inbound chat events handled by the correlation engine",
		}, []string{"event", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "notifications_total",
			Help:      "Per-recipient staff and user notifications",
		}, []string{"kind", "outcome"}),
		correlationWarn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "relay",
			Name:      "correlation_ambiguities_total",
			Help:      "Lookups that matched more than one record",
		}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestLatency,
		m.errorCount,
		m.relayEvents,
		m.notifications,
		m.correlationWarn,
		collectors.NewGoCollector(),
	)
	return m
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordRelay counts one handled chat event.
func (m *Metrics) RecordRelay(event, outcome string) {
	if m == nil {
		return
	}
	m.relayEvents.WithLabelValues(event, outcome).Inc()
}

// RecordNotification counts one notification attempt.
func (m *Metrics) RecordNotification(kind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// RecordAmbiguity counts a correlation lookup with several candidates.
func (m *Metrics) RecordAmbiguity() {
	if m == nil {
		return
	}
	m.correlationWarn.Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
