package saga

import "time"

// MetricsRecorder records saga runtime metrics.
type MetricsRecorder interface {
	RecordSagaExecution(status string)
	RecordSagaDuration(status string, duration time.Duration)
	IncActiveSagas()
	DecActiveSagas()
	RecordStepAttempt(stepType, outcome string)
	RecordStepDuration(stepType string, duration time.Duration)
	RecordCompensation(status string)
	RecordCompensationDuration(duration time.Duration)
	RecordCompensationRetry()
	RecordRepairHandoff(repairType string)
	RecordRecovery(status string)
}

type nopMetricsRecorder struct{}

func (n *nopMetricsRecorder) RecordSagaExecution(status string)                        {}
func (n *nopMetricsRecorder) RecordSagaDuration(status string, duration time.Duration) {}
func (n *nopMetricsRecorder) IncActiveSagas()                                          {}
func (n *nopMetricsRecorder) DecActiveSagas()                                          {}
func (n *nopMetricsRecorder) RecordStepAttempt(stepType, outcome string)               {}
func (n *nopMetricsRecorder) RecordStepDuration(stepType string, d time.Duration)      {}
func (n *nopMetricsRecorder) RecordCompensation(status string)                         {}
func (n *nopMetricsRecorder) RecordCompensationDuration(duration time.Duration)        {}
func (n *nopMetricsRecorder) RecordCompensationRetry()                                 {}
func (n *nopMetricsRecorder) RecordRepairHandoff(repairType string)                    {}
func (n *nopMetricsRecorder) RecordRecovery(status string)                             {}
