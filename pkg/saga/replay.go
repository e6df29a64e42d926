package saga

import (
	"fmt"
	"time"
)

// Replay reconstructs a saga instance by folding its event stream from
// version 1. The result matches the live-mutated instance: same status,
// same step statuses, same version. Events out of version order or with
// gaps are rejected.
func Replay(sagaID string, events []Event) (*Instance, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("saga %s: empty event stream", sagaID)
	}
	if events[0].Type != EventSagaStarted {
		return nil, fmt.Errorf("saga %s: stream must begin with %s, got %s", sagaID, EventSagaStarted, events[0].Type)
	}

	var instance *Instance
	for i, event := range events {
		if event.Version != uint64(i+1) {
			return nil, fmt.Errorf("saga %s: event stream gap at version %d (got %d)", sagaID, i+1, event.Version)
		}
		if event.SagaID != sagaID {
			return nil, fmt.Errorf("saga %s: stream contains foreign event for %s", sagaID, event.SagaID)
		}

		next, err := apply(instance, event)
		if err != nil {
			return nil, err
		}
		instance = next
	}

	return instance, nil
}

func apply(instance *Instance, event Event) (*Instance, error) {
	if event.Type == EventSagaStarted {
		if instance != nil {
			return nil, fmt.Errorf("saga %s: duplicate %s event", event.SagaID, EventSagaStarted)
		}
		return applyStarted(event)
	}
	if instance == nil {
		return nil, fmt.Errorf("saga %s: %s before %s", event.SagaID, event.Type, EventSagaStarted)
	}

	instance.Version = event.Version
	instance.UpdatedAt = event.OccurredAt

	switch event.Type {
	case EventSagaRunning:
		if err := instance.TransitionTo(StatusRunning); err != nil {
			return nil, err
		}
		started := event.OccurredAt
		instance.StartedAt = &started
	case EventSagaCompleted:
		if err := instance.TransitionTo(StatusCompleted); err != nil {
			return nil, err
		}
		completed := event.OccurredAt
		instance.CompletedAt = &completed
	case EventSagaCompensating:
		if err := instance.TransitionTo(StatusCompensating); err != nil {
			return nil, err
		}
	case EventSagaCompensated, EventSagaCancelled:
		if err := instance.TransitionTo(StatusCompensated); err != nil {
			return nil, err
		}
		completed := event.OccurredAt
		instance.CompletedAt = &completed
	case EventSagaFailed:
		var data FailureEventData
		if err := event.DecodeData(&data); err != nil {
			return nil, err
		}
		if err := instance.TransitionTo(StatusFailed); err != nil {
			return nil, err
		}
		instance.FailedStep = data.FailedStep
		instance.FailureReason = data.Reason
		completed := event.OccurredAt
		instance.CompletedAt = &completed
	case EventStepAttemptStarted, EventStepCompleted, EventStepFailed,
		EventStepCompensating, EventStepCompensated, EventStepCompensationFailed:
		if err := applyStepEvent(instance, event); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("saga %s: unknown event type %q at version %d", event.SagaID, event.Type, event.Version)
	}

	return instance, nil
}

func applyStarted(event Event) (*Instance, error) {
	var data SagaStartedData
	if err := event.DecodeData(&data); err != nil {
		return nil, err
	}

	instance := &Instance{
		ID:            event.SagaID,
		Name:          data.Name,
		CorrelationID: data.CorrelationID,
		TenantID:      data.TenantID,
		BusinessUnit:  data.BusinessUnit,
		Status:        StatusStarted,
		Steps:         make([]*Step, 0, len(data.Steps)),
		Version:       event.Version,
		CreatedAt:     event.OccurredAt,
		UpdatedAt:     event.OccurredAt,
	}

	for i, seed := range data.Steps {
		if seed.Sequence != i+1 {
			return nil, fmt.Errorf("saga %s: step sequences not contiguous at %d", event.SagaID, seed.Sequence)
		}
		instance.Steps = append(instance.Steps, &Step{
			ID:                   seed.ID,
			SagaID:               event.SagaID,
			Sequence:             seed.Sequence,
			Type:                 seed.Type,
			ServiceName:          seed.ServiceName,
			Endpoint:             seed.Endpoint,
			CompensationEndpoint: seed.CompensationEndpoint,
			Status:               StepStatusPending,
			InputData:            seed.InputData,
			MaxRetries:           seed.MaxRetries,
			Timeout:              time.Duration(seed.TimeoutMillis) * time.Millisecond,
		})
	}

	return instance, nil
}

func applyStepEvent(instance *Instance, event Event) error {
	var data StepEventData
	if err := event.DecodeData(&data); err != nil {
		return err
	}
	step, err := instance.StepBySequence(data.Sequence)
	if err != nil {
		return err
	}

	step.Version++
	switch event.Type {
	case EventStepAttemptStarted:
		if step.Status == StepStatusPending {
			if err := step.TransitionTo(StepStatusRunning); err != nil {
				return err
			}
			started := event.OccurredAt
			step.StartedAt = &started
		}
		// Attempt numbers are 1-based; retryCount counts attempts made.
		step.RetryCount = data.Attempt
	case EventStepCompleted:
		if err := step.TransitionTo(StepStatusCompleted); err != nil {
			return err
		}
		step.OutputData = data.OutputData
		completed := event.OccurredAt
		step.CompletedAt = &completed
	case EventStepFailed:
		if err := step.TransitionTo(StepStatusFailed); err != nil {
			return err
		}
		step.ErrorData = data.ErrorData
		step.ErrorMessage = data.ErrorMessage
		failed := event.OccurredAt
		step.FailedAt = &failed
	case EventStepCompensating:
		if err := step.TransitionTo(StepStatusCompensating); err != nil {
			return err
		}
	case EventStepCompensated:
		if err := step.TransitionTo(StepStatusCompensated); err != nil {
			return err
		}
		compensated := event.OccurredAt
		step.CompensatedAt = &compensated
	case EventStepCompensationFailed:
		// The step stays compensating; the saga-level failure event
		// carries the escalation.
		step.ErrorData = data.ErrorData
		step.ErrorMessage = data.ErrorMessage
	}

	return nil
}
