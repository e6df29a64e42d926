package saga

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/payrail/payrail/pkg/downstream"
)

type invokeResult struct {
	resp  *downstream.Response
	err   error
	delay time.Duration
}

func ok(output map[string]any) invokeResult {
	return invokeResult{resp: &downstream.Response{Status: downstream.InvokeStatusSuccess, Output: output}}
}

func declined(code, message string) invokeResult {
	return invokeResult{resp: &downstream.Response{
		Status:       downstream.InvokeStatusFailure,
		ErrorCode:    code,
		ErrorMessage: message,
	}}
}

func hangs(delay time.Duration) invokeResult {
	return invokeResult{delay: delay}
}

// scriptedInvoker replays canned collaborator responses per endpoint and
// records every request it sees.
type scriptedInvoker struct {
	mu     sync.Mutex
	script map[string][]invokeResult
	calls  []downstream.Request
}

func newScriptedInvoker() *scriptedInvoker {
	return &scriptedInvoker{script: make(map[string][]invokeResult)}
}

func (s *scriptedInvoker) on(endpoint string, results ...invokeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script[endpoint] = append(s.script[endpoint], results...)
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req downstream.Request) (*downstream.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	var result invokeResult
	if queued := s.script[req.Endpoint]; len(queued) > 0 {
		result = queued[0]
		s.script[req.Endpoint] = queued[1:]
	} else {
		result = ok(map[string]any{"endpoint": req.Endpoint})
	}
	s.mu.Unlock()

	if result.delay > 0 {
		timer := time.NewTimer(result.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.resp, nil
}

func (s *scriptedInvoker) callsTo(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, call := range s.calls {
		if call.Endpoint == endpoint {
			count++
		}
	}
	return count
}

func (s *scriptedInvoker) endpointOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	order := make([]string, len(s.calls))
	for i, call := range s.calls {
		order[i] = call.Endpoint
	}
	return order
}

type captureRepairSink struct {
	mu      sync.Mutex
	reports []*FailureReport
}

func (s *captureRepairSink) CreateFromSaga(_ context.Context, report *FailureReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *captureRepairSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *captureRepairSink) last() *FailureReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return nil
	}
	return s.reports[len(s.reports)-1]
}

func fastRetry() RetryConfig {
	return RetryConfig{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		BackoffFactor:  1.0,
	}
}

type harness struct {
	invoker *scriptedInvoker
	events  *MemoryEventStore
	store   *MemoryStore
	repairs *captureRepairSink
	orch    *Orchestrator
}

func newHarness(t *testing.T, options ...OrchestratorOption) *harness {
	t.Helper()

	invoker := newScriptedInvoker()
	events := NewMemoryEventStore()
	store := NewMemoryStore()
	repairs := &captureRepairSink{}

	executor := NewExecutor(invoker, events, store, fastRetry())
	coordinator := NewCoordinator(invoker, events, store, nil)

	base := []OrchestratorOption{
		WithRepairSink(repairs),
		WithRetryConfig(fastRetry()),
	}
	orch, err := NewOrchestrator(events, store, executor, coordinator, append(base, options...)...)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	return &harness{
		invoker: invoker,
		events:  events,
		store:   store,
		repairs: repairs,
		orch:    orch,
	}
}

func transferDefinition(t *testing.T, timeout time.Duration) *Definition {
	t.Helper()

	def, err := New("transfer").
		WithCorrelationID("transfer-123").
		WithTenant("tenant-a", "retail").
		WithDefaultStepTimeout(timeout).
		Step(StepTypeDebit, "ledger", "/debit",
			Input(map[string]any{"account": "acc-1", "amount_minor": 10_000, "currency": "EUR"}),
			CompensateAt("/debit/reverse"),
		).
		Step(StepTypeCredit, "ledger", "/credit",
			Input(map[string]any{"account": "acc-2", "amount_minor": 10_000}),
			CompensateAt("/credit/reverse"),
		).
		Step(StepTypeClearingSubmit, "clearing", "/clearing/submit").
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return def
}

func eventTypes(t *testing.T, events *MemoryEventStore, sagaID string) []EventType {
	t.Helper()
	stream, err := events.List(context.Background(), sagaID)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	types := make([]EventType, len(stream))
	for i, event := range stream {
		types[i] = event.Type
	}
	return types
}
