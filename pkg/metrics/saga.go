package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func (m *Manager) initSagaMetrics(cfg Config) {
	m.sagaExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_executions_total",
			Help: "Total number of saga executions by terminal status",
		},
		[]string{"status"},
	)

	m.sagaDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_duration_seconds",
			Help:    "Saga execution duration in seconds",
			Buckets: cfg.SagaDurationBuckets,
		},
		[]string{"status"},
	)

	m.sagaActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "saga_active_count",
			Help: "Current number of active saga executions",
		},
	)

	m.stepAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_step_attempts_total",
			Help: "Total number of step attempts by step type and outcome",
		},
		[]string{"step_type", "outcome"},
	)

	m.stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_step_duration_seconds",
			Help:    "Step execution duration in seconds",
			Buckets: cfg.StepDurationBuckets,
		},
		[]string{"step_type"},
	)

	m.sagaCompensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_compensations_total",
			Help: "Total number of compensation phases by status",
		},
		[]string{"status"},
	)

	m.sagaCompensationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "saga_compensation_duration_seconds",
			Help:    "Compensation phase duration in seconds",
			Buckets: cfg.StepDurationBuckets,
		},
	)

	m.sagaCompensationRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "saga_compensation_retries_total",
			Help: "Total number of compensation retries",
		},
	)

	m.sagaRecovery = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_recovery_total",
			Help: "Total number of saga recovery attempts by status",
		},
		[]string{"status"},
	)

	m.repairHandoffs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_repair_handoffs_total",
			Help: "Total number of sagas handed to the repair workflow by repair type",
		},
		[]string{"repair_type"},
	)

	m.registry.MustRegister(m.sagaExecutions)
	m.registry.MustRegister(m.sagaDuration)
	m.registry.MustRegister(m.sagaActive)
	m.registry.MustRegister(m.stepAttempts)
	m.registry.MustRegister(m.stepDuration)
	m.registry.MustRegister(m.sagaCompensations)
	m.registry.MustRegister(m.sagaCompensationDuration)
	m.registry.MustRegister(m.sagaCompensationRetries)
	m.registry.MustRegister(m.sagaRecovery)
	m.registry.MustRegister(m.repairHandoffs)
}

// RecordSagaExecution records one saga execution outcome.
func (m *Manager) RecordSagaExecution(status string) {
	if !m.enabled {
		return
	}
	m.sagaExecutions.WithLabelValues(status).Inc()
}

// RecordSagaDuration records saga execution latency.
func (m *Manager) RecordSagaDuration(status string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.sagaDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncActiveSagas increments current active saga count.
func (m *Manager) IncActiveSagas() {
	if !m.enabled {
		return
	}
	m.sagaActive.Inc()
}

// DecActiveSagas decrements current active saga count.
func (m *Manager) DecActiveSagas() {
	if !m.enabled {
		return
	}
	m.sagaActive.Dec()
}

// RecordStepAttempt records one step attempt by outcome.
func (m *Manager) RecordStepAttempt(stepType, outcome string) {
	if !m.enabled {
		return
	}
	m.stepAttempts.WithLabelValues(stepType, outcome).Inc()
}

// RecordStepDuration records step execution latency.
func (m *Manager) RecordStepDuration(stepType string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.stepDuration.WithLabelValues(stepType).Observe(duration.Seconds())
}

// RecordCompensation records one compensation phase outcome.
func (m *Manager) RecordCompensation(status string) {
	if !m.enabled {
		return
	}
	m.sagaCompensations.WithLabelValues(status).Inc()
}

// RecordCompensationDuration records compensation phase duration.
func (m *Manager) RecordCompensationDuration(duration time.Duration) {
	if !m.enabled {
		return
	}
	m.sagaCompensationDuration.Observe(duration.Seconds())
}

// RecordCompensationRetry records one compensation retry.
func (m *Manager) RecordCompensationRetry() {
	if !m.enabled {
		return
	}
	m.sagaCompensationRetries.Inc()
}

// RecordRepairHandoff records one saga escalated to the repair workflow.
func (m *Manager) RecordRepairHandoff(repairType string) {
	if !m.enabled {
		return
	}
	m.repairHandoffs.WithLabelValues(repairType).Inc()
}

// RecordRecovery records one recovery operation outcome.
func (m *Manager) RecordRecovery(status string) {
	if !m.enabled {
		return
	}
	m.sagaRecovery.WithLabelValues(status).Inc()
}
