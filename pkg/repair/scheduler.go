package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/payrail/payrail/pkg/saga"
)

// Scheduler periodically drives the repair manager's automatic pass.
type Scheduler struct {
	manager *Manager
	logger  saga.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a repair scheduler.
func NewScheduler(manager *Manager, logger saga.Logger) (*Scheduler, error) {
	if manager == nil {
		return nil, fmt.Errorf("repair manager cannot be nil")
	}
	if logger == nil {
		logger = noplog{}
	}
	return &Scheduler{manager: manager, logger: logger}, nil
}

// Start runs scheduler passes until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler interval must be > 0")
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("repair scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			case <-ticker.C:
				resolved, err := s.manager.ProcessDue(ctx)
				if err != nil {
					s.logger.Warn("repair scheduler pass failed", "error", err)
					continue
				}
				if resolved > 0 {
					s.logger.Info("repair scheduler pass completed", "resolved", resolved)
				}
			}
		}
	}()

	return nil
}
