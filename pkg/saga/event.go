package saga

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies one saga state-change event.
type EventType string

const (
	EventSagaStarted            EventType = "saga_started"
	EventSagaRunning            EventType = "saga_running"
	EventSagaCompleted          EventType = "saga_completed"
	EventSagaCompensating       EventType = "saga_compensating"
	EventSagaCompensated        EventType = "saga_compensated"
	EventSagaFailed             EventType = "saga_failed"
	EventSagaCancelled          EventType = "saga_cancelled"
	EventStepAttemptStarted     EventType = "step_attempt_started"
	EventStepCompleted          EventType = "step_completed"
	EventStepFailed             EventType = "step_failed"
	EventStepCompensating       EventType = "step_compensating"
	EventStepCompensated        EventType = "step_compensated"
	EventStepCompensationFailed EventType = "step_compensation_failed"
)

// Event is one append-only saga event record. Version increases
// monotonically per saga; it is assigned by the event store on append and
// read back in strict order during replay.
type Event struct {
	ID         string          `json:"id"`
	SagaID     string          `json:"saga_id"`
	Type       EventType       `json:"event_type"`
	Data       json.RawMessage `json:"event_data,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Version    uint64          `json:"version"`
}

// SagaStartedData is the payload of a saga_started event. It carries the
// full step layout so the instance can be rebuilt from the stream alone.
type SagaStartedData struct {
	Name          string     `json:"name"`
	CorrelationID string     `json:"correlation_id"`
	TenantID      string     `json:"tenant_id,omitempty"`
	BusinessUnit  string     `json:"business_unit,omitempty"`
	Steps         []StepSeed `json:"steps"`
}

// StepSeed is the per-step slice of SagaStartedData.
type StepSeed struct {
	ID                   string         `json:"id"`
	Sequence             int            `json:"sequence"`
	Type                 StepType       `json:"step_type"`
	ServiceName          string         `json:"service_name"`
	Endpoint             string         `json:"endpoint"`
	CompensationEndpoint string         `json:"compensation_endpoint,omitempty"`
	InputData            map[string]any `json:"input_data,omitempty"`
	MaxRetries           int            `json:"max_retries"`
	TimeoutMillis        int64          `json:"timeout_ms,omitempty"`
}

// StepEventData is the payload of step-scoped events.
type StepEventData struct {
	Sequence     int            `json:"sequence"`
	StepType     StepType       `json:"step_type"`
	Attempt      int            `json:"attempt,omitempty"`
	OutputData   map[string]any `json:"output_data,omitempty"`
	ErrorData    map[string]any `json:"error_data,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Timeout      bool           `json:"timeout,omitempty"`
}

// FailureEventData is the payload of saga_failed events.
type FailureEventData struct {
	FailedStep         int    `json:"failed_step"`
	Reason             string `json:"reason"`
	CompensationFailed bool   `json:"compensation_failed,omitempty"`
}

// NewEvent builds an unversioned event; the store assigns the version on
// append.
func NewEvent(sagaID string, eventType EventType, payload any) (Event, error) {
	if sagaID == "" {
		return Event{}, fmt.Errorf("event saga_id cannot be empty")
	}
	if eventType == "" {
		return Event{}, fmt.Errorf("event type cannot be empty")
	}

	event := Event{
		ID:         uuid.NewString(),
		SagaID:     sagaID,
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal event payload: %w", err)
		}
		event.Data = data
	}
	return event, nil
}

// DecodeData unmarshals the event payload into out.
func (e Event) DecodeData(out any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Seed builds the saga_started payload for an instance.
func Seed(instance *Instance) SagaStartedData {
	seeds := make([]StepSeed, 0, len(instance.Steps))
	for _, step := range instance.Steps {
		seeds = append(seeds, StepSeed{
			ID:                   step.ID,
			Sequence:             step.Sequence,
			Type:                 step.Type,
			ServiceName:          step.ServiceName,
			Endpoint:             step.Endpoint,
			CompensationEndpoint: step.CompensationEndpoint,
			InputData:            copyDataMap(step.InputData),
			MaxRetries:           step.MaxRetries,
			TimeoutMillis:        step.Timeout.Milliseconds(),
		})
	}
	return SagaStartedData{
		Name:          instance.Name,
		CorrelationID: instance.CorrelationID,
		TenantID:      instance.TenantID,
		BusinessUnit:  instance.BusinessUnit,
		Steps:         seeds,
	}
}
