package saga

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RecoveryManager resumes non-terminal sagas after a restart. The event
// stream is the source of truth: each candidate is rebuilt by replay,
// cross-checked against the stored projection, and re-driven through the
// orchestrator from wherever it stopped.
type RecoveryManager struct {
	orchestrator *Orchestrator
	events       EventStore
	store        Store
	metrics      MetricsRecorder
	logger       Logger
}

// NewRecoveryManager creates a recovery manager.
func NewRecoveryManager(
	orchestrator *Orchestrator,
	events EventStore,
	store Store,
	metrics MetricsRecorder,
	logger Logger,
) (*RecoveryManager, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if events == nil {
		return nil, fmt.Errorf("event store cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("saga store cannot be nil")
	}
	if metrics == nil {
		metrics = &nopMetricsRecorder{}
	}
	if logger == nil {
		logger = nopLogger{}
	}
	return &RecoveryManager{
		orchestrator: orchestrator,
		events:       events,
		store:        store,
		metrics:      metrics,
		logger:       logger,
	}, nil
}

// Recover scans for non-terminal sagas and resumes each one.
func (m *RecoveryManager) Recover(ctx context.Context) (int, error) {
	candidates, err := m.scan(ctx)
	if err != nil {
		return 0, err
	}

	m.logger.Info("saga recovery scan started", "candidates", len(candidates))

	recovered := 0
	var firstErr error
	for _, sagaID := range candidates {
		select {
		case <-ctx.Done():
			return recovered, ctx.Err()
		default:
		}

		if err := m.recoverOne(ctx, sagaID); err != nil {
			m.logger.Warn("saga recovery failed", "saga_id", sagaID, "error", err)
			m.metrics.RecordRecovery("failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		recovered++
		m.metrics.RecordRecovery("recovered")
	}

	m.logger.Info("saga recovery scan completed", "recovered", recovered)
	return recovered, firstErr
}

func (m *RecoveryManager) scan(ctx context.Context) ([]string, error) {
	var candidates []string
	for _, status := range []Status{StatusStarted, StatusRunning, StatusCompensating} {
		instances, _, err := m.store.List(ctx, ListFilter{Status: status.String()})
		if err != nil {
			return nil, err
		}
		for _, instance := range instances {
			candidates = append(candidates, instance.ID)
		}
	}
	return candidates, nil
}

func (m *RecoveryManager) recoverOne(ctx context.Context, sagaID string) error {
	events, err := m.events.List(ctx, sagaID)
	if err != nil {
		return err
	}

	replayed, err := Replay(sagaID, events)
	if err != nil {
		return fmt.Errorf("replaying saga %s: %w", sagaID, err)
	}
	if replayed.Status.IsTerminal() {
		// The projection lagged behind the stream; writing the replayed
		// instance back heals it.
		stored, err := m.store.Get(ctx, sagaID)
		if err != nil {
			return err
		}
		m.logger.Warn("saga projection behind event stream, healing",
			"saga_id", sagaID,
			"stored_status", stored.Status.String(),
			"replayed_status", replayed.Status.String(),
		)
		return m.store.Save(ctx, replayed, stored.Version)
	}

	_, err = m.orchestrator.Run(ctx, sagaID)
	return err
}

// CleanupManager removes terminal sagas and their event streams once
// they age past the retention window.
type CleanupManager struct {
	events EventStore
	store  Store
	logger Logger

	mu      sync.Mutex
	running bool
}

// NewCleanupManager creates a cleanup manager.
func NewCleanupManager(events EventStore, store Store, logger Logger) *CleanupManager {
	if logger == nil {
		logger = nopLogger{}
	}
	return &CleanupManager{
		events: events,
		store:  store,
		logger: logger,
	}
}

// Start runs periodic cleanup until the context is cancelled.
func (m *CleanupManager) Start(ctx context.Context, interval, retention time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("cleanup interval must be > 0")
	}
	if retention <= 0 {
		return fmt.Errorf("retention must be > 0")
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("cleanup manager already running")
	}
	m.running = true
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				m.running = false
				m.mu.Unlock()
				return
			case <-ticker.C:
				deleted, err := m.RunOnce(ctx, retention)
				if err != nil {
					m.logger.Warn("saga cleanup failed", "error", err)
					continue
				}
				if deleted > 0 {
					m.logger.Info("saga cleanup completed", "deleted_sagas", deleted)
				}
			}
		}
	}()

	return nil
}

// RunOnce performs one cleanup pass and returns the number of sagas removed.
func (m *CleanupManager) RunOnce(ctx context.Context, retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be > 0")
	}

	cutoff := time.Now().UTC().Add(-retention)
	deleted := 0

	for _, status := range []Status{StatusCompleted, StatusCompensated, StatusFailed} {
		instances, _, err := m.store.List(ctx, ListFilter{Status: status.String()})
		if err != nil {
			return deleted, err
		}

		for _, instance := range instances {
			select {
			case <-ctx.Done():
				return deleted, ctx.Err()
			default:
			}

			if instance.UpdatedAt.IsZero() || instance.UpdatedAt.After(cutoff) {
				continue
			}

			if err := m.events.DeleteBySagaID(ctx, instance.ID); err != nil {
				return deleted, err
			}
			if err := m.store.Delete(ctx, instance.ID); err != nil {
				return deleted, err
			}
			deleted++
		}
	}

	return deleted, nil
}
