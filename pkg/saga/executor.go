package saga

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/payrail/payrail/pkg/downstream"
)

// Outcome is the result of driving one step to resolution.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeTimeout
)

// String returns the string form of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Executor drives one step to a terminal status: it invokes the
// downstream collaborator under the step deadline, retries with
// exponential backoff up to the step's budget, and persists every attempt
// before the call so a crash mid-call is seen as "already attempted" on
// replay rather than silently lost.
type Executor struct {
	invoker downstream.Invoker
	events  EventStore
	store   Store
	retry   RetryConfig
	metrics MetricsRecorder
	now     func() time.Time
}

// NewExecutor creates a step executor.
func NewExecutor(invoker downstream.Invoker, events EventStore, store Store, retry RetryConfig) *Executor {
	return &Executor{
		invoker: invoker,
		events:  events,
		store:   store,
		retry:   retry,
		metrics: &nopMetricsRecorder{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Execute runs one step until completed, failed, or timed out. It assumes
// exclusive ownership of the instance; a concurrent executor racing on the
// same saga loses on the version gate inside persist.
func (e *Executor) Execute(ctx context.Context, instance *Instance, step *Step) (Outcome, error) {
	// Idempotent re-dispatch guard: a redelivered command for a resolved
	// step is a no-op.
	switch step.Status {
	case StepStatusCompleted:
		return OutcomeSuccess, nil
	case StepStatusFailed:
		return OutcomeFailure, fmt.Errorf("step %d (%s) already resolved as %s", step.Sequence, step.Type, step.Status)
	}

	var lastErr error
	lastTimeout := false

	for attempt := step.RetryCount + 1; attempt <= step.MaxRetries; attempt++ {
		if attempt > step.RetryCount+1 {
			if err := sleepBackoff(ctx, e.retry, attempt-2); err != nil {
				return OutcomeFailure, err
			}
		}

		if err := e.recordAttempt(ctx, instance, step, attempt); err != nil {
			return OutcomeFailure, err
		}

		resp, err := e.invokeOnce(ctx, step)
		switch {
		case err == nil && !resp.Failed():
			if persistErr := e.recordSuccess(ctx, instance, step, resp); persistErr != nil {
				return OutcomeFailure, persistErr
			}
			e.metrics.RecordStepAttempt(step.Type.String(), "success")
			return OutcomeSuccess, nil

		case errors.Is(err, context.DeadlineExceeded):
			lastErr = fmt.Errorf("%w: step %d (%s) attempt %d", ErrStepTimeout, step.Sequence, step.Type, attempt)
			lastTimeout = true
			e.metrics.RecordStepAttempt(step.Type.String(), "timeout")

		case err != nil:
			if ctx.Err() != nil {
				return OutcomeFailure, ctx.Err()
			}
			lastErr = fmt.Errorf("step %d (%s) attempt %d: %w", step.Sequence, step.Type, attempt, err)
			lastTimeout = false
			e.metrics.RecordStepAttempt(step.Type.String(), "failure")

		default:
			lastErr = &StepFailureError{
				Sequence:  step.Sequence,
				StepType:  step.Type,
				ErrorCode: resp.ErrorCode,
				Message:   resp.ErrorMessage,
			}
			lastTimeout = false
			e.metrics.RecordStepAttempt(step.Type.String(), "failure")
		}
	}

	if err := e.recordFailure(ctx, instance, step, lastErr, lastTimeout); err != nil {
		return OutcomeFailure, err
	}

	if lastTimeout {
		return OutcomeTimeout, lastErr
	}
	return OutcomeFailure, lastErr
}

func (e *Executor) invokeOnce(ctx context.Context, step *Step) (*downstream.Response, error) {
	timeout := step.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.invoker.Invoke(stepCtx, downstream.Request{
		StepType:    step.Type.String(),
		ServiceName: step.ServiceName,
		Endpoint:    step.Endpoint,
		Reference:   step.ID,
		Input:       step.InputData,
	})
	if err != nil && stepCtx.Err() == context.DeadlineExceeded {
		return nil, context.DeadlineExceeded
	}
	return resp, err
}

func (e *Executor) recordAttempt(ctx context.Context, instance *Instance, step *Step, attempt int) error {
	if step.Status == StepStatusPending {
		if err := step.TransitionTo(StepStatusRunning); err != nil {
			return err
		}
		started := e.now()
		step.StartedAt = &started
	}
	step.RetryCount = attempt
	step.Version++

	return persist(ctx, e.events, e.store, instance, EventStepAttemptStarted, StepEventData{
		Sequence: step.Sequence,
		StepType: step.Type,
		Attempt:  attempt,
	})
}

func (e *Executor) recordSuccess(ctx context.Context, instance *Instance, step *Step, resp *downstream.Response) error {
	if err := step.TransitionTo(StepStatusCompleted); err != nil {
		return err
	}
	step.OutputData = resp.Output
	completed := e.now()
	step.CompletedAt = &completed
	step.Version++

	return persist(ctx, e.events, e.store, instance, EventStepCompleted, StepEventData{
		Sequence:   step.Sequence,
		StepType:   step.Type,
		Attempt:    step.RetryCount,
		OutputData: resp.Output,
	})
}

func (e *Executor) recordFailure(ctx context.Context, instance *Instance, step *Step, cause error, timeout bool) error {
	if err := step.TransitionTo(StepStatusFailed); err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	step.ErrorMessage = message
	step.ErrorData = map[string]any{
		"attempts": step.RetryCount,
		"timeout":  timeout,
	}
	var failure *StepFailureError
	if errors.As(cause, &failure) {
		step.ErrorData["error_code"] = failure.ErrorCode
	}
	failed := e.now()
	step.FailedAt = &failed
	step.Version++

	return persist(ctx, e.events, e.store, instance, EventStepFailed, StepEventData{
		Sequence:     step.Sequence,
		StepType:     step.Type,
		Attempt:      step.RetryCount,
		ErrorData:    step.ErrorData,
		ErrorMessage: message,
		Timeout:      timeout,
	})
}

// persist appends exactly one event for a state transition and then saves
// the projection, both gated by the version loaded by the caller. The
// event append is the durability point: a crash after it is recovered by
// replaying the stream.
func persist(ctx context.Context, events EventStore, store Store, instance *Instance, eventType EventType, payload any) error {
	event, err := NewEvent(instance.ID, eventType, payload)
	if err != nil {
		return err
	}

	assigned, err := events.Append(ctx, event, instance.Version)
	if err != nil {
		return err
	}
	previous := instance.Version
	instance.Version = assigned
	instance.UpdatedAt = event.OccurredAt

	if store == nil {
		return nil
	}
	return store.Save(ctx, instance, previous)
}

func sleepBackoff(ctx context.Context, cfg RetryConfig, attempt int) error {
	timer := time.NewTimer(backoffForAttempt(cfg, attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func backoffForAttempt(cfg RetryConfig, attempt int) time.Duration {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2.0
	}

	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	duration := time.Duration(backoff)
	if duration > cfg.MaxBackoff {
		return cfg.MaxBackoff
	}
	return duration
}
