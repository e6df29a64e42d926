// Package saga provides orchestration primitives for distributed payment
// transactions: an event-sourced saga instance, a retrying step executor,
// reverse-order compensation, and handoff to manual repair.
package saga

import (
	"fmt"
	"time"
)

// StepType identifies the money-movement leg a step performs.
type StepType string

const (
	StepTypeDebit          StepType = "DEBIT"
	StepTypeCredit         StepType = "CREDIT"
	StepTypeClearingSubmit StepType = "CLEARING_SUBMIT"
)

// String returns the string form of StepType.
func (t StepType) String() string { return string(t) }

// ParseStepType parses a step type string and rejects unknown values.
func ParseStepType(s string) (StepType, error) {
	switch StepType(s) {
	case StepTypeDebit, StepTypeCredit, StepTypeClearingSubmit:
		return StepType(s), nil
	default:
		return "", fmt.Errorf("unknown step type: %q", s)
	}
}

// Step is one executable unit of a saga. Sequence defines execution order
// and, reversed, compensation order. Version is the optimistic-concurrency
// token incremented on every persisted mutation.
type Step struct {
	ID                   string         `json:"id"`
	SagaID               string         `json:"saga_id"`
	Sequence             int            `json:"sequence"`
	Type                 StepType       `json:"step_type"`
	ServiceName          string         `json:"service_name"`
	Endpoint             string         `json:"endpoint"`
	CompensationEndpoint string         `json:"compensation_endpoint,omitempty"`
	Status               StepStatus     `json:"status"`
	InputData            map[string]any `json:"input_data,omitempty"`
	OutputData           map[string]any `json:"output_data,omitempty"`
	ErrorData            map[string]any `json:"error_data,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	RetryCount           int            `json:"retry_count"`
	MaxRetries           int            `json:"max_retries"`
	Timeout              time.Duration  `json:"timeout,omitempty"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	FailedAt             *time.Time     `json:"failed_at,omitempty"`
	CompensatedAt        *time.Time     `json:"compensated_at,omitempty"`
	Version              uint64         `json:"version"`
}

// TransitionTo applies a step status transition.
func (s *Step) TransitionTo(next StepStatus) error {
	if s == nil {
		return fmt.Errorf("step cannot be nil")
	}
	if err := ValidateStepTransition(s.Status, next); err != nil {
		return fmt.Errorf("step %d (%s): %w", s.Sequence, s.Type, err)
	}
	s.Status = next
	return nil
}

// StepDefinition declares one step of a saga before execution.
type StepDefinition struct {
	Type                 StepType
	ServiceName          string
	Endpoint             string
	CompensationEndpoint string
	InputData            map[string]any
	MaxRetries           int
	Timeout              time.Duration
}

// StepOption configures a step definition.
type StepOption func(def *StepDefinition) error

// Input configures the opaque payload passed to the downstream collaborator.
func Input(data map[string]any) StepOption {
	return func(def *StepDefinition) error {
		def.InputData = data
		return nil
	}
}

// CompensateAt configures the endpoint invoked to reverse this step.
func CompensateAt(endpoint string) StepOption {
	return func(def *StepDefinition) error {
		def.CompensationEndpoint = endpoint
		return nil
	}
}

// MaxRetries overrides the default retry budget for this step.
func MaxRetries(n int) StepOption {
	return func(def *StepDefinition) error {
		if n < 0 {
			return fmt.Errorf("max retries cannot be negative")
		}
		def.MaxRetries = n
		return nil
	}
}

// StepTimeout configures the per-attempt deadline for this step.
func StepTimeout(timeout time.Duration) StepOption {
	return func(def *StepDefinition) error {
		if timeout < 0 {
			return fmt.Errorf("timeout cannot be negative")
		}
		def.Timeout = timeout
		return nil
	}
}
