package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// initHTTPMetrics initializes HTTP API metrics.
func (m *Manager) initHTTPMetrics(cfg Config) {
	m.httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	m.httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: cfg.HTTPDurationBuckets,
		},
		[]string{"method", "path"},
	)

	m.httpConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_connections",
			Help: "Current number of active HTTP connections",
		},
	)

	m.registry.MustRegister(m.httpRequests)
	m.registry.MustRegister(m.httpDuration)
	m.registry.MustRegister(m.httpConnections)
}

// traceExemplarLabels extracts the active span's trace and span ids so
// histogram samples can carry exemplars linking back to the trace.
func traceExemplarLabels(ctx context.Context) (prometheus.Labels, bool) {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return nil, false
	}
	return prometheus.Labels{
		"trace_id": spanCtx.TraceID().String(),
		"span_id":  spanCtx.SpanID().String(),
	}, true
}

// RecordHTTPRequest records an HTTP request with method, path, and status.
func (m *Manager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordHTTPRequestContext records an HTTP request and attaches a trace
// exemplar to the duration sample when the context carries a span.
func (m *Manager) RecordHTTPRequestContext(ctx context.Context, method, path, status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(method, path, status).Inc()
	obs := m.httpDuration.WithLabelValues(method, path)
	if labels, ok := traceExemplarLabels(ctx); ok {
		if eo, ok := obs.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(duration.Seconds(), labels)
			return
		}
	}
	obs.Observe(duration.Seconds())
}

// IncActiveConnections increments the active HTTP connections count.
func (m *Manager) IncActiveConnections() {
	if !m.enabled {
		return
	}
	m.httpConnections.Inc()
}

// DecActiveConnections decrements the active HTTP connections count.
func (m *Manager) DecActiveConnections() {
	if !m.enabled {
		return
	}
	m.httpConnections.Dec()
}
