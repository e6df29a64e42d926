package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/payrail/payrail/pkg/downstream"
)

// CompensationStore tracks compensation calls already applied, so a
// resumed or redelivered compensation pass never re-invokes a reversal
// that succeeded.
type CompensationStore interface {
	Seen(key string) bool
	Mark(key string)
}

// InMemoryCompensationStore is a thread-safe CompensationStore.
type InMemoryCompensationStore struct {
	store sync.Map
}

// NewInMemoryCompensationStore creates an in-memory compensation store.
func NewInMemoryCompensationStore() *InMemoryCompensationStore {
	return &InMemoryCompensationStore{}
}

// Seen checks whether a key was already recorded.
func (s *InMemoryCompensationStore) Seen(key string) bool {
	_, ok := s.store.Load(key)
	return ok
}

// Mark records one compensation key.
func (s *InMemoryCompensationStore) Mark(key string) {
	s.store.Store(key, struct{}{})
}

// Coordinator walks completed steps in descending sequence order and
// invokes each step's compensating action with the original output as
// context. Steps of one saga never compensate concurrently; different
// sagas compensate independently.
type Coordinator struct {
	invoker downstream.Invoker
	events  EventStore
	store   Store
	applied CompensationStore
	retry   RetryConfig
	metrics MetricsRecorder
	now     func() time.Time
}

// NewCoordinator creates a compensation coordinator.
func NewCoordinator(invoker downstream.Invoker, events EventStore, store Store, applied CompensationStore) *Coordinator {
	if applied == nil {
		applied = NewInMemoryCompensationStore()
	}
	return &Coordinator{
		invoker: invoker,
		events:  events,
		store:   store,
		applied: applied,
		retry:   DefaultRetryConfig(),
		metrics: &nopMetricsRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run compensates every completed step of the saga in reverse order.
// The first compensation that exhausts its retries aborts the walk and is
// returned as a CompensationError; the caller escalates to repair.
func (c *Coordinator) Run(ctx context.Context, instance *Instance) error {
	if instance == nil {
		return fmt.Errorf("saga instance cannot be nil")
	}
	if instance.Status != StatusCompensating {
		return fmt.Errorf("compensation requires status %s, got %s", StatusCompensating, instance.Status)
	}

	started := c.now()
	for i := len(instance.Steps) - 1; i >= 0; i-- {
		step := instance.Steps[i]
		switch step.Status {
		case StepStatusCompleted, StepStatusCompensating:
		default:
			continue
		}

		if err := c.compensateStep(ctx, instance, step); err != nil {
			c.metrics.RecordCompensation("failed")
			return err
		}
	}

	c.metrics.RecordCompensation("compensated")
	c.metrics.RecordCompensationDuration(c.now().Sub(started))
	return nil
}

func (c *Coordinator) compensateStep(ctx context.Context, instance *Instance, step *Step) error {
	// A reversal that already went through downstream is not re-invoked,
	// but the step record still advances to compensated.
	key := CompensationKey(instance.ID, step.Sequence)
	if c.applied.Seen(key) {
		return c.recordCompensated(ctx, instance, step)
	}

	// A step with no compensating action never mutated external state in
	// a way that needs reversal.
	if step.CompensationEndpoint == "" {
		return c.recordCompensated(ctx, instance, step)
	}

	if step.Status == StepStatusCompleted {
		if err := step.TransitionTo(StepStatusCompensating); err != nil {
			return err
		}
		step.Version++
		if err := persist(ctx, c.events, c.store, instance, EventStepCompensating, StepEventData{
			Sequence: step.Sequence,
			StepType: step.Type,
		}); err != nil {
			return err
		}
	}

	maxRetries := step.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			c.metrics.RecordCompensationRetry()
			if err := sleepBackoff(ctx, c.retry, attempt-2); err != nil {
				return err
			}
		}

		resp, err := c.invokeCompensation(ctx, step)
		if err == nil && !resp.Failed() {
			c.applied.Mark(key)
			return c.recordCompensated(ctx, instance, step)
		}

		switch {
		case errors.Is(err, context.DeadlineExceeded):
			lastErr = fmt.Errorf("%w: compensation of step %d (%s) attempt %d", ErrStepTimeout, step.Sequence, step.Type, attempt)
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
		default:
			lastErr = &StepFailureError{
				Sequence:  step.Sequence,
				StepType:  step.Type,
				ErrorCode: resp.ErrorCode,
				Message:   resp.ErrorMessage,
			}
		}
	}

	compErr := &CompensationError{
		SagaID:   instance.ID,
		Sequence: step.Sequence,
		StepType: step.Type,
		Attempts: maxRetries,
		Cause:    lastErr,
	}

	step.ErrorMessage = compErr.Error()
	step.ErrorData = map[string]any{"compensation_attempts": maxRetries}
	step.Version++
	if err := persist(ctx, c.events, c.store, instance, EventStepCompensationFailed, StepEventData{
		Sequence:     step.Sequence,
		StepType:     step.Type,
		Attempt:      maxRetries,
		ErrorData:    step.ErrorData,
		ErrorMessage: compErr.Error(),
	}); err != nil {
		return err
	}

	return compErr
}

func (c *Coordinator) invokeCompensation(ctx context.Context, step *Step) (*downstream.Response, error) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	compCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.invoker.Invoke(compCtx, downstream.Request{
		StepType:    step.Type.String(),
		ServiceName: step.ServiceName,
		Endpoint:    step.CompensationEndpoint,
		Reference:   step.ID,
		Input:       step.OutputData,
	})
	if err != nil && compCtx.Err() == context.DeadlineExceeded {
		return nil, context.DeadlineExceeded
	}
	return resp, err
}

func (c *Coordinator) recordCompensated(ctx context.Context, instance *Instance, step *Step) error {
	if step.Status == StepStatusCompleted {
		if err := step.TransitionTo(StepStatusCompensating); err != nil {
			return err
		}
		step.Version++
		if err := persist(ctx, c.events, c.store, instance, EventStepCompensating, StepEventData{
			Sequence: step.Sequence,
			StepType: step.Type,
		}); err != nil {
			return err
		}
	}

	if err := step.TransitionTo(StepStatusCompensated); err != nil {
		return err
	}
	compensated := c.now()
	step.CompensatedAt = &compensated
	step.Version++

	return persist(ctx, c.events, c.store, instance, EventStepCompensated, StepEventData{
		Sequence: step.Sequence,
		StepType: step.Type,
	})
}

// CompensationKey builds the idempotency key for one compensation call.
func CompensationKey(sagaID string, sequence int) string {
	return fmt.Sprintf("%s:compensate:%d", sagaID, sequence)
}
