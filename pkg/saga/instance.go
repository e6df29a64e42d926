package saga

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Instance is the saga aggregate: an ordered collection of steps whose
// outcomes drive the instance status. It is owned exclusively by the
// orchestrator and mutated only through the state machine; Version tracks
// the last event appended for this saga and doubles as the optimistic
// write token.
type Instance struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	CorrelationID string     `json:"correlation_id"`
	TenantID      string     `json:"tenant_id,omitempty"`
	BusinessUnit  string     `json:"business_unit,omitempty"`
	Status        Status     `json:"status"`
	Steps         []*Step    `json:"steps"`
	FailedStep    int        `json:"failed_step,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Version       uint64     `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// NewInstance materializes a saga instance from a validated definition.
// Step sequence numbers are assigned contiguously starting at 1.
func NewInstance(id string, def *Definition) (*Instance, error) {
	if def == nil {
		return nil, fmt.Errorf("saga definition cannot be nil")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		id = uuid.NewString()
	}

	now := time.Now().UTC()
	instance := &Instance{
		ID:            id,
		Name:          def.Name,
		CorrelationID: def.CorrelationID,
		TenantID:      def.TenantID,
		BusinessUnit:  def.BusinessUnit,
		Status:        StatusStarted,
		Steps:         make([]*Step, 0, len(def.Steps)),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	for i, stepDef := range def.Steps {
		maxRetries := stepDef.MaxRetries
		if maxRetries < 0 {
			maxRetries = def.DefaultMaxRetries
		}
		timeout := stepDef.Timeout
		if timeout == 0 {
			timeout = def.DefaultStepTimeout
		}
		instance.Steps = append(instance.Steps, &Step{
			ID:                   uuid.NewString(),
			SagaID:               id,
			Sequence:             i + 1,
			Type:                 stepDef.Type,
			ServiceName:          stepDef.ServiceName,
			Endpoint:             stepDef.Endpoint,
			CompensationEndpoint: stepDef.CompensationEndpoint,
			Status:               StepStatusPending,
			InputData:            copyDataMap(stepDef.InputData),
			MaxRetries:           maxRetries,
			Timeout:              timeout,
		})
	}

	return instance, nil
}

// TransitionTo applies a saga status transition.
func (i *Instance) TransitionTo(next Status) error {
	if i == nil {
		return fmt.Errorf("saga instance cannot be nil")
	}
	if err := ValidateTransition(i.Status, next); err != nil {
		return err
	}

	now := time.Now().UTC()
	if i.Status == StatusStarted && next == StatusRunning {
		started := now
		i.StartedAt = &started
	}
	if next.IsTerminal() {
		done := now
		i.CompletedAt = &done
	}
	i.Status = next
	i.UpdatedAt = now
	return nil
}

// StepBySequence returns the step with the given sequence number.
func (i *Instance) StepBySequence(sequence int) (*Step, error) {
	if sequence < 1 || sequence > len(i.Steps) {
		return nil, fmt.Errorf("saga %s has no step with sequence %d", i.ID, sequence)
	}
	step := i.Steps[sequence-1]
	if step.Sequence != sequence {
		return nil, fmt.Errorf("saga %s step order corrupted at sequence %d", i.ID, sequence)
	}
	return step, nil
}

// NextPendingStep returns the first step that has not reached a terminal
// status, or nil when every step is resolved. Step i+1 never starts before
// step i completes, so this is also the only dispatchable step.
func (i *Instance) NextPendingStep() *Step {
	for _, step := range i.Steps {
		switch step.Status {
		case StepStatusCompleted, StepStatusCompensated:
			continue
		default:
			return step
		}
	}
	return nil
}

// CompletedSteps returns steps that finished forward execution, in
// ascending sequence order.
func (i *Instance) CompletedSteps() []*Step {
	completed := make([]*Step, 0, len(i.Steps))
	for _, step := range i.Steps {
		if step.Status == StepStatusCompleted {
			completed = append(completed, step)
		}
	}
	return completed
}

// StepByType returns the first step of the given type, or nil.
func (i *Instance) StepByType(stepType StepType) *Step {
	for _, step := range i.Steps {
		if step.Type == stepType {
			return step
		}
	}
	return nil
}

// Dispatched reports whether any step has left pending. Cancellation is
// only allowed before dispatch; afterwards it must go through
// compensation so an in-flight money-movement call is never abandoned.
func (i *Instance) Dispatched() bool {
	for _, step := range i.Steps {
		if step.Status != StepStatusPending {
			return true
		}
	}
	return false
}

// SetFailure records the failed step and error details.
func (i *Instance) SetFailure(sequence int, err error) {
	if i == nil {
		return
	}
	i.FailedStep = sequence
	if err != nil {
		i.FailureReason = err.Error()
	}
	i.UpdatedAt = time.Now().UTC()
}

// Clone returns a deep copy of the instance.
func (i *Instance) Clone() *Instance {
	if i == nil {
		return nil
	}

	steps := make([]*Step, 0, len(i.Steps))
	for _, step := range i.Steps {
		copied := *step
		copied.InputData = copyDataMap(step.InputData)
		copied.OutputData = copyDataMap(step.OutputData)
		copied.ErrorData = copyDataMap(step.ErrorData)
		copied.StartedAt = copyTime(step.StartedAt)
		copied.CompletedAt = copyTime(step.CompletedAt)
		copied.FailedAt = copyTime(step.FailedAt)
		copied.CompensatedAt = copyTime(step.CompensatedAt)
		steps = append(steps, &copied)
	}

	clone := *i
	clone.Steps = steps
	clone.StartedAt = copyTime(i.StartedAt)
	clone.CompletedAt = copyTime(i.CompletedAt)
	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
