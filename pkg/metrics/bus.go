package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initBusMetrics(_ Config) {
	m.busPublishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_publishes_total",
			Help: "Total number of event bus publish attempts by final status",
		},
		[]string{"status"},
	)

	m.busRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventbus_publish_retries_total",
			Help: "Total number of event bus publish retries",
		},
	)

	m.busDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventbus_degraded",
			Help: "Whether the event bus publisher is in degraded mode (1) or healthy (0)",
		},
	)

	m.busOutages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventbus_outages_total",
			Help: "Total number of detected event bus outages",
		},
	)

	m.busRecoveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventbus_recoveries_total",
			Help: "Total number of event bus recoveries after an outage",
		},
	)

	m.registry.MustRegister(m.busPublishes)
	m.registry.MustRegister(m.busRetries)
	m.registry.MustRegister(m.busDegraded)
	m.registry.MustRegister(m.busOutages)
	m.registry.MustRegister(m.busRecoveries)
}

// RecordPublish records one publish attempt's final status.
func (m *Manager) RecordPublish(status string) {
	if !m.enabled {
		return
	}
	m.busPublishes.WithLabelValues(status).Inc()
}

// RecordRetry records one publish retry.
func (m *Manager) RecordRetry() {
	if !m.enabled {
		return
	}
	m.busRetries.Inc()
}

// SetDegradedMode sets the degraded mode gauge.
func (m *Manager) SetDegradedMode(active bool) {
	if !m.enabled {
		return
	}
	if active {
		m.busDegraded.Set(1)
		return
	}
	m.busDegraded.Set(0)
}

// RecordOutage records one detected bus outage.
func (m *Manager) RecordOutage() {
	if !m.enabled {
		return
	}
	m.busOutages.Inc()
}

// RecordRecovered records one bus recovery.
func (m *Manager) RecordRecovered() {
	if !m.enabled {
		return
	}
	m.busRecoveries.Inc()
}
