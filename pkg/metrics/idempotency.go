package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initIdempotencyMetrics(_ Config) {
	m.idempotencyHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_hits_total",
			Help: "Total number of requests answered from the idempotency cache",
		},
		[]string{"endpoint"},
	)

	m.idempotencyMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_misses_total",
			Help: "Total number of requests executed fresh under an idempotency key",
		},
		[]string{"endpoint"},
	)

	m.idempotencyConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "idempotency_conflicts_total",
			Help: "Total number of idempotency key reuses with a different request body",
		},
		[]string{"endpoint"},
	)

	m.registry.MustRegister(m.idempotencyHits)
	m.registry.MustRegister(m.idempotencyMisses)
	m.registry.MustRegister(m.idempotencyConflicts)
}

// RecordIdempotencyHit records one cached response replay.
func (m *Manager) RecordIdempotencyHit(endpoint string) {
	if !m.enabled {
		return
	}
	m.idempotencyHits.WithLabelValues(endpoint).Inc()
}

// RecordIdempotencyMiss records one fresh execution under an idempotency key.
func (m *Manager) RecordIdempotencyMiss(endpoint string) {
	if !m.enabled {
		return
	}
	m.idempotencyMisses.WithLabelValues(endpoint).Inc()
}

// RecordIdempotencyConflict records one conflicting key reuse.
func (m *Manager) RecordIdempotencyConflict(endpoint string) {
	if !m.enabled {
		return
	}
	m.idempotencyConflicts.WithLabelValues(endpoint).Inc()
}
