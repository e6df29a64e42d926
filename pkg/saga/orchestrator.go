package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Logger is the logging subset used by the saga engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// LegStatus is the repair-facing view of one money-movement leg.
type LegStatus string

const (
	LegStatusPending  LegStatus = "PENDING"
	LegStatusSuccess  LegStatus = "SUCCESS"
	LegStatusFailed   LegStatus = "FAILED"
	LegStatusTimeout  LegStatus = "TIMEOUT"
	LegStatusReversed LegStatus = "CANCELLED"
)

// LegReport describes the final observed state of one leg.
type LegReport struct {
	Status    LegStatus
	Reference string
	Response  map[string]any
}

// FailureReport is handed to the repair sink when the automatic path
// cannot close a saga. The two legs are reported independently so repair
// never re-issues a leg that already settled.
type FailureReport struct {
	SagaID             string
	CorrelationID      string
	TenantID           string
	BusinessUnit       string
	FailedSequence     int
	FailedStepType     StepType
	Timeout            bool
	CompensationFailed bool
	Reason             string
	Amount             int64
	Currency           string
	Debit              LegReport
	Credit             LegReport
	OccurredAt         time.Time
}

// RepairSink receives sagas that exhausted automatic recovery.
type RepairSink interface {
	CreateFromSaga(ctx context.Context, report *FailureReport) error
}

// EventSink observes saga lifecycle transitions, e.g. for bus publication
// or operator streaming.
type EventSink interface {
	SagaTransitioned(instance *Instance, eventType EventType)
}

const conflictRetryLimit = 3

// OrchestratorOption customizes Orchestrator initialization.
type OrchestratorOption func(o *Orchestrator)

// WithMaxConcurrentSagas bounds concurrently executing sagas.
func WithMaxConcurrentSagas(max int) OrchestratorOption {
	return func(o *Orchestrator) {
		if max > 0 {
			o.maxConcurrent = max
			o.sema = make(chan struct{}, max)
		}
	}
}

// WithRetryConfig overrides the backoff policy for steps and compensation.
func WithRetryConfig(cfg RetryConfig) OrchestratorOption {
	return func(o *Orchestrator) {
		o.executor.retry = cfg
		o.coordinator.retry = cfg
	}
}

// WithRepairSink wires the transaction-repair handoff.
func WithRepairSink(sink RepairSink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.repairs = sink
	}
}

// WithEventSink wires an observer for lifecycle transitions.
func WithEventSink(sink EventSink) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sink = sink
	}
}

// WithMetricsRecorder wires a metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if metrics != nil {
			o.metrics = metrics
			o.executor.metrics = metrics
			o.coordinator.metrics = metrics
		}
	}
}

// WithLogger wires structured logging.
func WithLogger(log Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithCompensationStore wires a shared applied-compensation store.
func WithCompensationStore(store CompensationStore) OrchestratorOption {
	return func(o *Orchestrator) {
		if store != nil {
			o.coordinator.applied = store
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.executor.now = now
			o.coordinator.now = now
		}
	}
}

// Orchestrator drives payment sagas through their ordered steps,
// appending one event per transition, compensating on terminal step
// failure, and handing unresolvable sagas to repair. Each saga is
// processed by at most one logical worker at a time, enforced by the
// optimistic version gate rather than locks; many sagas run concurrently.
type Orchestrator struct {
	events      EventStore
	store       Store
	executor    *Executor
	coordinator *Coordinator
	repairs     RepairSink
	sink        EventSink
	metrics     MetricsRecorder
	logger      Logger

	maxConcurrent int
	sema          chan struct{}
}

// NewOrchestrator creates a saga orchestrator.
func NewOrchestrator(events EventStore, store Store, executor *Executor, coordinator *Coordinator, options ...OrchestratorOption) (*Orchestrator, error) {
	if events == nil {
		return nil, fmt.Errorf("event store cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("saga store cannot be nil")
	}
	if executor == nil {
		return nil, fmt.Errorf("step executor cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("compensation coordinator cannot be nil")
	}

	o := &Orchestrator{
		events:        events,
		store:         store,
		executor:      executor,
		coordinator:   coordinator,
		metrics:       &nopMetricsRecorder{},
		logger:        nopLogger{},
		maxConcurrent: 100,
		sema:          make(chan struct{}, 100),
	}
	for _, option := range options {
		if option != nil {
			option(o)
		}
	}
	return o, nil
}

// Start creates a saga instance from a definition and appends the
// SagaStarted event. The instance stays in started until Run dispatches
// the first step.
func (o *Orchestrator) Start(ctx context.Context, def *Definition) (*Instance, error) {
	instance, err := NewInstance("", def)
	if err != nil {
		return nil, err
	}

	if err := persist(ctx, o.events, o.store, instance, EventSagaStarted, Seed(instance)); err != nil {
		return nil, err
	}
	o.notify(instance, EventSagaStarted)

	o.logger.Info("saga started",
		"saga_id", instance.ID,
		"correlation_id", instance.CorrelationID,
		"steps", len(instance.Steps),
	)
	return instance.Clone(), nil
}

// Execute starts a saga and runs it to a terminal status.
func (o *Orchestrator) Execute(ctx context.Context, def *Definition) (*Instance, error) {
	instance, err := o.Start(ctx, def)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, instance.ID)
}

// Run drives a saga from its current state to a terminal status. It is
// idempotent: re-running a terminal saga is a no-op, and a lost optimistic
// write triggers reload-and-retry instead of surfacing the conflict.
func (o *Orchestrator) Run(ctx context.Context, sagaID string) (*Instance, error) {
	select {
	case o.sema <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-o.sema }()

	ctx, span := sagaTracer().Start(ctx, spanSagaExecute)
	span.SetAttributes(attribute.String("saga.id", sagaID))
	defer span.End()

	var instance *Instance
	var err error
	for attempt := 0; attempt < conflictRetryLimit; attempt++ {
		instance, err = o.store.Get(ctx, sagaID)
		if err != nil {
			return nil, err
		}
		instance, err = o.run(ctx, instance)
		if errors.Is(err, ErrVersionConflict) {
			o.logger.Debug("saga run lost optimistic write, reloading", "saga_id", sagaID)
			continue
		}
		break
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return instance, err
}

func (o *Orchestrator) run(ctx context.Context, instance *Instance) (*Instance, error) {
	if instance.Status.IsTerminal() {
		return instance, nil
	}

	started := time.Now()
	o.metrics.IncActiveSagas()
	defer o.metrics.DecActiveSagas()

	if instance.Status == StatusStarted {
		if err := instance.TransitionTo(StatusRunning); err != nil {
			return instance, err
		}
		if err := persist(ctx, o.events, o.store, instance, EventSagaRunning, nil); err != nil {
			return instance, err
		}
		o.notify(instance, EventSagaRunning)
	}

	if instance.Status == StatusCompensating {
		// Resumed mid-compensation, e.g. after a crash.
		return o.compensate(ctx, instance, fmt.Errorf("resumed compensation for saga %s", instance.ID), false)
	}

	for {
		step := instance.NextPendingStep()
		if step == nil {
			break
		}

		stepCtx, stepSpan := sagaTracer().Start(ctx, spanSagaStep)
		stepSpan.SetAttributes(
			attribute.String("saga.id", instance.ID),
			attribute.Int("saga.step.sequence", step.Sequence),
			attribute.String("saga.step.type", step.Type.String()),
		)
		stepStarted := time.Now()
		outcome, err := o.executor.Execute(stepCtx, instance, step)
		o.metrics.RecordStepDuration(step.Type.String(), time.Since(stepStarted))
		stepSpan.End()

		if outcome == OutcomeSuccess && err == nil {
			o.logger.Debug("saga step completed",
				"saga_id", instance.ID,
				"sequence", step.Sequence,
				"step_type", step.Type.String(),
			)
			o.notify(instance, EventStepCompleted)
			continue
		}
		if errors.Is(err, ErrVersionConflict) || ctx.Err() != nil {
			return instance, err
		}

		o.logger.Warn("saga step exhausted retries",
			"saga_id", instance.ID,
			"sequence", step.Sequence,
			"step_type", step.Type.String(),
			"outcome", outcome.String(),
			"error", err,
		)
		instance.SetFailure(step.Sequence, err)
		o.notify(instance, EventStepFailed)
		return o.compensate(ctx, instance, err, outcome == OutcomeTimeout)
	}

	if err := instance.TransitionTo(StatusCompleted); err != nil {
		return instance, err
	}
	if err := persist(ctx, o.events, o.store, instance, EventSagaCompleted, nil); err != nil {
		return instance, err
	}
	o.notify(instance, EventSagaCompleted)
	o.metrics.RecordSagaExecution(StatusCompleted.String())
	o.metrics.RecordSagaDuration(StatusCompleted.String(), time.Since(started))
	o.logger.Info("saga completed", "saga_id", instance.ID, "correlation_id", instance.CorrelationID)
	return instance, nil
}

func (o *Orchestrator) compensate(ctx context.Context, instance *Instance, cause error, timedOut bool) (*Instance, error) {
	ctx, span := sagaTracer().Start(ctx, spanSagaCompensate)
	span.SetAttributes(attribute.String("saga.id", instance.ID))
	defer span.End()

	if instance.Status == StatusRunning {
		if err := instance.TransitionTo(StatusCompensating); err != nil {
			return instance, err
		}
		if err := persist(ctx, o.events, o.store, instance, EventSagaCompensating, nil); err != nil {
			return instance, err
		}
		o.notify(instance, EventSagaCompensating)
	}

	compErr := o.coordinator.Run(ctx, instance)
	if compErr == nil {
		if err := instance.TransitionTo(StatusCompensated); err != nil {
			return instance, err
		}
		if err := persist(ctx, o.events, o.store, instance, EventSagaCompensated, nil); err != nil {
			return instance, err
		}
		o.notify(instance, EventSagaCompensated)
		o.metrics.RecordSagaExecution(StatusCompensated.String())
		o.logger.Info("saga compensated cleanly", "saga_id", instance.ID, "cause", cause)
		return instance, nil
	}
	if errors.Is(compErr, ErrVersionConflict) || ctx.Err() != nil {
		return instance, compErr
	}

	// Compensation could not close the saga: mark failed and hand off to
	// manual repair. The saga is never left silently stuck.
	if err := instance.TransitionTo(StatusFailed); err != nil {
		return instance, err
	}
	if err := persist(ctx, o.events, o.store, instance, EventSagaFailed, FailureEventData{
		FailedStep:         instance.FailedStep,
		Reason:             compErr.Error(),
		CompensationFailed: true,
	}); err != nil {
		return instance, err
	}
	o.notify(instance, EventSagaFailed)
	o.metrics.RecordSagaExecution(StatusFailed.String())

	report := o.buildFailureReport(instance, cause, compErr, timedOut)
	if o.repairs != nil {
		if err := o.repairs.CreateFromSaga(ctx, report); err != nil {
			o.logger.Error("transaction repair handoff failed", "saga_id", instance.ID, "error", err)
		} else {
			o.metrics.RecordRepairHandoff(string(report.FailedStepType))
		}
	} else {
		o.logger.Error("saga failed with no repair sink configured", "saga_id", instance.ID, "error", compErr)
	}

	return instance, compErr
}

// Cancel aborts a saga before any step has been dispatched downstream, or
// compensates the completed prefix while the current step is still
// pending. Once a step is in flight, cancellation is rejected: an
// in-flight money-movement call is never abandoned.
func (o *Orchestrator) Cancel(ctx context.Context, sagaID string) (*Instance, error) {
	instance, err := o.store.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	if instance.Status.IsTerminal() {
		return instance, fmt.Errorf("saga %s is already %s", sagaID, instance.Status)
	}

	if instance.Status == StatusStarted && !instance.Dispatched() {
		if err := instance.TransitionTo(StatusCompensated); err != nil {
			return instance, err
		}
		if err := persist(ctx, o.events, o.store, instance, EventSagaCancelled, nil); err != nil {
			return instance, err
		}
		o.notify(instance, EventSagaCancelled)
		o.logger.Info("saga cancelled before dispatch", "saga_id", sagaID)
		return instance, nil
	}

	current := instance.NextPendingStep()
	if current != nil && current.Status != StepStatusPending {
		return instance, ErrCancelNotAllowed
	}

	instance.SetFailure(0, fmt.Errorf("cancelled by caller"))
	return o.compensate(ctx, instance, fmt.Errorf("saga %s cancelled", sagaID), false)
}

// Get returns one saga instance by id.
func (o *Orchestrator) Get(ctx context.Context, sagaID string) (*Instance, error) {
	return o.store.Get(ctx, sagaID)
}

// List lists saga instances with optional filters and pagination.
func (o *Orchestrator) List(ctx context.Context, filter ListFilter) ([]*Instance, int, error) {
	return o.store.List(ctx, filter)
}

// History returns the event stream of one saga in version order.
func (o *Orchestrator) History(ctx context.Context, sagaID string) ([]Event, error) {
	return o.events.List(ctx, sagaID)
}

func (o *Orchestrator) buildFailureReport(instance *Instance, cause, compErr error, timedOut bool) *FailureReport {
	report := &FailureReport{
		SagaID:             instance.ID,
		CorrelationID:      instance.CorrelationID,
		TenantID:           instance.TenantID,
		BusinessUnit:       instance.BusinessUnit,
		FailedSequence:     instance.FailedStep,
		Timeout:            timedOut,
		CompensationFailed: true,
		OccurredAt:         time.Now().UTC(),
	}
	if compErr != nil {
		report.Reason = compErr.Error()
	} else if cause != nil {
		report.Reason = cause.Error()
	}
	if step, err := instance.StepBySequence(instance.FailedStep); err == nil {
		report.FailedStepType = step.Type
	}
	report.Debit = legReport(instance.StepByType(StepTypeDebit))
	report.Credit = legReport(instance.StepByType(StepTypeCredit))
	if debit := instance.StepByType(StepTypeDebit); debit != nil {
		report.Amount = amountFromInput(debit.InputData)
		if currency, ok := debit.InputData["currency"].(string); ok {
			report.Currency = currency
		}
	}
	return report
}

// amountFromInput reads the monetary amount in minor units from a step's
// input. JSON round-trips land numbers as float64, so all three shapes are
// accepted.
func amountFromInput(input map[string]any) int64 {
	switch v := input["amount_minor"].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	default:
		return 0
	}
}

func legReport(step *Step) LegReport {
	if step == nil {
		return LegReport{Status: LegStatusPending}
	}
	report := LegReport{Reference: step.ID, Response: step.OutputData}
	switch step.Status {
	case StepStatusCompleted:
		report.Status = LegStatusSuccess
	case StepStatusCompensated:
		report.Status = LegStatusReversed
	case StepStatusCompensating:
		// Compensation did not complete; the leg's downstream state is
		// unresolved.
		report.Status = LegStatusFailed
		report.Response = step.ErrorData
	case StepStatusFailed:
		if timedOut, ok := step.ErrorData["timeout"].(bool); ok && timedOut {
			report.Status = LegStatusTimeout
		} else {
			report.Status = LegStatusFailed
		}
		report.Response = step.ErrorData
	default:
		report.Status = LegStatusPending
	}
	return report
}

func (o *Orchestrator) notify(instance *Instance, eventType EventType) {
	if o.sink == nil {
		return
	}
	o.sink.SagaTransitioned(instance.Clone(), eventType)
}
