package metrics

import "github.com/prometheus/client_golang/prometheus"

func (m *Manager) initRepairMetrics(_ Config) {
	m.repairCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repair_records_created_total",
			Help: "Total number of transaction repair records created by repair type",
		},
		[]string{"repair_type"},
	)

	m.repairClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "repair_records_closed_total",
			Help: "Total number of transaction repair records closed by terminal status",
		},
		[]string{"status"},
	)

	m.repairRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repair_retries_total",
			Help: "Total number of automatic repair retry attempts",
		},
	)

	m.repairEscalated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "repair_escalations_total",
			Help: "Total number of repairs escalated to the operator queue",
		},
	)

	m.repairQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "repair_queue_depth",
			Help: "Current number of open transaction repair records",
		},
	)

	m.registry.MustRegister(m.repairCreated)
	m.registry.MustRegister(m.repairClosed)
	m.registry.MustRegister(m.repairRetries)
	m.registry.MustRegister(m.repairEscalated)
	m.registry.MustRegister(m.repairQueueDepth)
}

// RecordRepairCreated records one repair record created.
func (m *Manager) RecordRepairCreated(repairType string) {
	if !m.enabled {
		return
	}
	m.repairCreated.WithLabelValues(repairType).Inc()
	m.repairQueueDepth.Inc()
}

// RecordRepairClosed records one repair record reaching a terminal status.
func (m *Manager) RecordRepairClosed(status string) {
	if !m.enabled {
		return
	}
	m.repairClosed.WithLabelValues(status).Inc()
	m.repairQueueDepth.Dec()
}

// RecordRepairRetry records one automatic repair retry attempt.
func (m *Manager) RecordRepairRetry() {
	if !m.enabled {
		return
	}
	m.repairRetries.Inc()
}

// RecordRepairEscalated records one repair escalated to an operator.
func (m *Manager) RecordRepairEscalated() {
	if !m.enabled {
		return
	}
	m.repairEscalated.Inc()
}
