package repair

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

// MetricsRecorder is the metrics subset used by the repair manager.
type MetricsRecorder interface {
	RecordRepairCreated(repairType string)
	RecordRepairClosed(status string)
	RecordRepairRetry()
	RecordRepairEscalated()
}

type nopMetricsRecorder struct{}

func (nopMetricsRecorder) RecordRepairCreated(string) {}
func (nopMetricsRecorder) RecordRepairClosed(string)  {}
func (nopMetricsRecorder) RecordRepairRetry()         {}
func (nopMetricsRecorder) RecordRepairEscalated()     {}

// Resolver attempts the automatic part of a repair, e.g. re-driving a
// failed reversal. It must honor the leg invariant: a settled leg is
// never re-issued.
type Resolver interface {
	Attempt(ctx context.Context, record *TransactionRepair) (resolved bool, err error)
}

// ManagerOption customizes Manager initialization.
type ManagerOption func(m *Manager)

// WithResolver wires the automatic retry handler.
func WithResolver(resolver Resolver) ManagerOption {
	return func(m *Manager) {
		m.resolver = resolver
	}
}

// WithRetryDelay sets the delay before a re-attempt after a failed
// automatic resolution.
func WithRetryDelay(delay time.Duration) ManagerOption {
	return func(m *Manager) {
		if delay > 0 {
			m.retryDelay = delay
		}
	}
}

// WithMetricsRecorder wires a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) ManagerOption {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// WithLogger wires structured logging.
func WithLogger(log saga.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.logger = log
		}
	}
}

// Manager owns the transaction repair queue: it accepts failure reports
// from the orchestrator, runs the bounded automatic retry loop, and
// exposes the operator workflow.
type Manager struct {
	store      Store
	resolver   Resolver
	retryDelay time.Duration
	metrics    MetricsRecorder
	logger     saga.Logger
}

// NewManager creates a repair manager.
func NewManager(store Store, options ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("repair store cannot be nil")
	}
	m := &Manager{
		store:      store,
		retryDelay: 5 * time.Minute,
		metrics:    nopMetricsRecorder{},
		logger:     noplog{},
	}
	for _, option := range options {
		if option != nil {
			option(m)
		}
	}
	return m, nil
}

type noplog struct{}

func (noplog) Debug(string, ...any) {}
func (noplog) Info(string, ...any)  {}
func (noplog) Warn(string, ...any)  {}
func (noplog) Error(string, ...any) {}

// CreateFromSaga records a failed saga as a repair work item. Redelivery
// of the same saga is a no-op: one saga maps to at most one open repair.
func (m *Manager) CreateFromSaga(ctx context.Context, report *saga.FailureReport) error {
	if report == nil {
		return fmt.Errorf("failure report cannot be nil")
	}
	if existing, err := m.store.GetByParent(ctx, report.SagaID); err == nil {
		m.logger.Debug("repair already exists for saga",
			"saga_id", report.SagaID,
			"repair_id", existing.ID,
		)
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	record, err := New(report)
	if err != nil {
		return err
	}
	if err := m.store.Save(ctx, record, 0); err != nil {
		return err
	}

	m.metrics.RecordRepairCreated(string(record.RepairType))
	m.logger.Warn("transaction repair created",
		"repair_id", record.ID,
		"saga_id", record.ParentTransactionID,
		"repair_type", record.RepairType,
		"debit_status", record.Debit.Status,
		"credit_status", record.Credit.Status,
	)
	return nil
}

// Get returns one repair record.
func (m *Manager) Get(ctx context.Context, id string) (*TransactionRepair, error) {
	return m.store.Get(ctx, id)
}

// GetBySaga returns the repair record created for a saga.
func (m *Manager) GetBySaga(ctx context.Context, sagaID string) (*TransactionRepair, error) {
	return m.store.GetByParent(ctx, sagaID)
}

// List lists repair records.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*TransactionRepair, int, error) {
	return m.store.List(ctx, filter)
}

// Assign hands a repair to an operator.
func (m *Manager) Assign(ctx context.Context, id, operator string) (*TransactionRepair, error) {
	return m.mutate(ctx, id, func(record *TransactionRepair) error {
		return record.AssignTo(operator)
	})
}

// StartWork marks an assigned repair as in progress.
func (m *Manager) StartWork(ctx context.Context, id string) (*TransactionRepair, error) {
	return m.mutate(ctx, id, func(record *TransactionRepair) error {
		return record.MarkInProgress()
	})
}

// Resolve closes a repair with a resolution.
func (m *Manager) Resolve(ctx context.Context, id, by, notes string, action CorrectiveAction) (*TransactionRepair, error) {
	record, err := m.mutate(ctx, id, func(record *TransactionRepair) error {
		return record.MarkAsResolved(by, notes, action)
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordRepairClosed(string(StatusResolved))
	m.logger.Info("transaction repair resolved", "repair_id", id, "by", by, "action", action)
	return record, nil
}

// Cancel closes a repair without resolution.
func (m *Manager) Cancel(ctx context.Context, id, by, notes string) (*TransactionRepair, error) {
	record, err := m.mutate(ctx, id, func(record *TransactionRepair) error {
		return record.Cancel(by, notes)
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordRepairClosed(string(StatusCancelled))
	return record, nil
}

// Retry schedules a manual re-attempt after the given delay.
func (m *Manager) Retry(ctx context.Context, id string, delay time.Duration) (*TransactionRepair, error) {
	record, err := m.mutate(ctx, id, func(record *TransactionRepair) error {
		return record.MarkForRetry(delay)
	})
	if err != nil {
		return nil, err
	}
	m.metrics.RecordRepairRetry()
	return record, nil
}

// ProcessDue runs one scheduler pass: re-attempts due repairs through the
// resolver and escalates records that timed out or exhausted their retry
// budget. Returns how many repairs were resolved.
func (m *Manager) ProcessDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	resolved := 0

	due, err := m.store.ListDue(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, record := range due {
		select {
		case <-ctx.Done():
			return resolved, ctx.Err()
		default:
		}
		if m.processOne(ctx, record) {
			resolved++
		}
	}

	if err := m.escalateStalled(ctx, now); err != nil {
		return resolved, err
	}
	return resolved, nil
}

func (m *Manager) processOne(ctx context.Context, record *TransactionRepair) bool {
	if m.resolver == nil {
		return false
	}

	previous := record.Version
	done, err := m.resolver.Attempt(ctx, record)
	if err == nil && done {
		if resolveErr := record.MarkAsResolved("system", "automatic retry succeeded", ActionNoAction); resolveErr != nil {
			m.logger.Warn("repair resolution rejected", "repair_id", record.ID, "error", resolveErr)
			return false
		}
		if saveErr := m.store.Save(ctx, record, previous); saveErr != nil {
			m.logger.Warn("repair save failed", "repair_id", record.ID, "error", saveErr)
			return false
		}
		m.metrics.RecordRepairClosed(string(StatusResolved))
		m.logger.Info("transaction repair auto-resolved", "repair_id", record.ID)
		return true
	}

	if err != nil {
		m.logger.Warn("repair attempt failed", "repair_id", record.ID, "error", err)
	}
	if retryErr := record.MarkForRetry(m.retryDelay); retryErr != nil {
		if errors.Is(retryErr, ErrRetryExhausted) {
			record.Escalate()
			m.metrics.RecordRepairEscalated()
			m.logger.Warn("transaction repair escalated to operator queue",
				"repair_id", record.ID,
				"retry_count", record.RetryCount,
			)
		} else {
			m.logger.Warn("repair retry rejected", "repair_id", record.ID, "error", retryErr)
			return false
		}
	} else {
		m.metrics.RecordRepairRetry()
	}
	if saveErr := m.store.Save(ctx, record, previous); saveErr != nil {
		m.logger.Warn("repair save failed", "repair_id", record.ID, "error", saveErr)
	}
	return false
}

// escalateStalled surfaces repairs that will never leave the automatic
// path on their own: pending records past their retry budget, and any
// open record that sat unresolved past its deadline.
func (m *Manager) escalateStalled(ctx context.Context, now time.Time) error {
	for _, status := range []Status{StatusPending, StatusAssigned, StatusInProgress} {
		records, _, err := m.store.List(ctx, ListFilter{Status: string(status)})
		if err != nil {
			return err
		}
		for _, record := range records {
			if record.CorrectiveAction == ActionEscalate {
				continue
			}
			exhausted := record.RepairStatus == StatusPending && record.RetryCount >= record.MaxRetries
			if !exhausted && !record.IsTimedOut(now) {
				continue
			}
			previous := record.Version
			record.Escalate()
			if err := m.store.Save(ctx, record, previous); err != nil {
				m.logger.Warn("repair escalation save failed", "repair_id", record.ID, "error", err)
				continue
			}
			m.metrics.RecordRepairEscalated()
			m.logger.Warn("transaction repair escalated to operator queue",
				"repair_id", record.ID,
				"retry_count", record.RetryCount,
				"priority", record.Priority,
			)
		}
	}
	return nil
}

func (m *Manager) mutate(ctx context.Context, id string, fn func(record *TransactionRepair) error) (*TransactionRepair, error) {
	record, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := record.Version
	if err := fn(record); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, record, previous); err != nil {
		return nil, err
	}
	return record, nil
}
