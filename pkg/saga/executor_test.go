package saga

import (
	"context"
	"errors"
	"testing"
	"time"
)

func runnableInstance(t *testing.T, events EventStore, store Store, def *Definition) *Instance {
	t.Helper()

	instance, err := NewInstance("", def)
	if err != nil {
		t.Fatalf("NewInstance() error = %v", err)
	}
	ctx := context.Background()
	if err := persist(ctx, events, store, instance, EventSagaStarted, Seed(instance)); err != nil {
		t.Fatalf("persist() error = %v", err)
	}
	if err := instance.TransitionTo(StatusRunning); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}
	if err := persist(ctx, events, store, instance, EventSagaRunning, nil); err != nil {
		t.Fatalf("persist() error = %v", err)
	}
	return instance
}

func TestExecutorSuccessFirstAttempt(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.on("/debit", ok(map[string]any{"debit_ref": "d-1"}))
	events := NewMemoryEventStore()
	store := NewMemoryStore()
	executor := NewExecutor(invoker, events, store, fastRetry())

	instance := runnableInstance(t, events, store, transferDefinition(t, time.Second))
	step := instance.NextPendingStep()

	outcome, err := executor.Execute(context.Background(), instance, step)
	if err != nil || outcome != OutcomeSuccess {
		t.Fatalf("Execute() = %v, %v", outcome, err)
	}
	if step.Status != StepStatusCompleted {
		t.Fatalf("step status = %s, want %s", step.Status, StepStatusCompleted)
	}
	if step.RetryCount != 1 {
		t.Fatalf("attempts = %d, want 1", step.RetryCount)
	}
	if step.OutputData["debit_ref"] != "d-1" {
		t.Fatalf("output not captured: %#v", step.OutputData)
	}
	if step.StartedAt == nil || step.CompletedAt == nil {
		t.Fatal("expected started/completed timestamps")
	}

	types := eventTypes(t, events, instance.ID)
	if types[len(types)-2] != EventStepAttemptStarted || types[len(types)-1] != EventStepCompleted {
		t.Fatalf("unexpected tail of stream: %v", types)
	}
}

func TestExecutorRetriesUpToBudgetThenFails(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.on("/debit",
		declined("LEDGER_DOWN", "no"),
		declined("LEDGER_DOWN", "no"),
		declined("LEDGER_DOWN", "no"),
		declined("LEDGER_DOWN", "no"),
	)
	events := NewMemoryEventStore()
	store := NewMemoryStore()
	executor := NewExecutor(invoker, events, store, fastRetry())

	instance := runnableInstance(t, events, store, transferDefinition(t, time.Second))
	step := instance.NextPendingStep()

	outcome, err := executor.Execute(context.Background(), instance, step)
	if outcome != OutcomeFailure || err == nil {
		t.Fatalf("Execute() = %v, %v", outcome, err)
	}

	// The budget is total attempts, not retries after the first.
	if invoker.callsTo("/debit") != DefaultMaxRetries {
		t.Fatalf("debit called %d times, want %d", invoker.callsTo("/debit"), DefaultMaxRetries)
	}
	if step.Status != StepStatusFailed {
		t.Fatalf("step status = %s, want %s", step.Status, StepStatusFailed)
	}
	if step.RetryCount != DefaultMaxRetries {
		t.Fatalf("attempts = %d, want %d", step.RetryCount, DefaultMaxRetries)
	}

	var failure *StepFailureError
	if !errors.As(err, &failure) || failure.ErrorCode != "LEDGER_DOWN" {
		t.Fatalf("expected StepFailureError with code, got %v", err)
	}
	if step.ErrorData["error_code"] != "LEDGER_DOWN" {
		t.Fatalf("error data = %#v", step.ErrorData)
	}
}

func TestExecutorTimeoutOutcome(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.on("/debit", hangs(time.Second), hangs(time.Second), hangs(time.Second))
	events := NewMemoryEventStore()
	store := NewMemoryStore()
	executor := NewExecutor(invoker, events, store, fastRetry())

	instance := runnableInstance(t, events, store, transferDefinition(t, 10*time.Millisecond))
	step := instance.NextPendingStep()

	outcome, err := executor.Execute(context.Background(), instance, step)
	if outcome != OutcomeTimeout {
		t.Fatalf("outcome = %v, want timeout", outcome)
	}
	if !errors.Is(err, ErrStepTimeout) {
		t.Fatalf("expected ErrStepTimeout, got %v", err)
	}
	if timedOut, _ := step.ErrorData["timeout"].(bool); !timedOut {
		t.Fatalf("error data must flag timeout: %#v", step.ErrorData)
	}
}

func TestExecutorPersistsAttemptBeforeInvocation(t *testing.T) {
	invoker := newScriptedInvoker()
	invoker.on("/debit", invokeResult{err: errors.New("connection refused")})
	events := NewMemoryEventStore()
	store := NewMemoryStore()
	executor := NewExecutor(invoker, events, store, fastRetry())

	def, err := New("single").
		Step(StepTypeDebit, "ledger", "/debit", MaxRetries(1)).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	instance := runnableInstance(t, events, store, def)
	step := instance.NextPendingStep()

	if outcome, err := executor.Execute(context.Background(), instance, step); outcome != OutcomeFailure || err == nil {
		t.Fatalf("Execute() = %v, %v", outcome, err)
	}

	// The attempt event precedes the failure event, so a crash between
	// append and invoke is visible on replay.
	types := eventTypes(t, events, instance.ID)
	sawAttempt := false
	for _, eventType := range types {
		if eventType == EventStepAttemptStarted {
			sawAttempt = true
		}
		if eventType == EventStepFailed && !sawAttempt {
			t.Fatalf("failure recorded without a preceding attempt: %v", types)
		}
	}
	if !sawAttempt {
		t.Fatalf("attempt event missing from stream: %v", types)
	}
}

func TestExecutorSkipsResolvedStep(t *testing.T) {
	invoker := newScriptedInvoker()
	events := NewMemoryEventStore()
	store := NewMemoryStore()
	executor := NewExecutor(invoker, events, store, fastRetry())

	instance := runnableInstance(t, events, store, transferDefinition(t, time.Second))
	step := instance.NextPendingStep()
	if err := step.TransitionTo(StepStatusRunning); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}
	if err := step.TransitionTo(StepStatusCompleted); err != nil {
		t.Fatalf("TransitionTo() error = %v", err)
	}

	outcome, err := executor.Execute(context.Background(), instance, step)
	if outcome != OutcomeSuccess || err != nil {
		t.Fatalf("Execute() on resolved step = %v, %v", outcome, err)
	}
	if len(invoker.endpointOrder()) != 0 {
		t.Fatalf("resolved step re-invoked downstream: %v", invoker.endpointOrder())
	}
}

func TestBackoffForAttemptGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2.0,
	}
	if d := backoffForAttempt(cfg, 0); d != 100*time.Millisecond {
		t.Fatalf("attempt 0 backoff = %s", d)
	}
	if d := backoffForAttempt(cfg, 1); d != 200*time.Millisecond {
		t.Fatalf("attempt 1 backoff = %s", d)
	}
	if d := backoffForAttempt(cfg, 10); d != time.Second {
		t.Fatalf("backoff must cap at max, got %s", d)
	}
}
