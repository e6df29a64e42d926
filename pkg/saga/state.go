package saga

import "fmt"

// Status defines the lifecycle of a saga instance.
type Status int

const (
	StatusStarted Status = iota
	StatusRunning
	StatusCompleted
	StatusCompensating
	StatusCompensated
	StatusFailed
)

var validTransitions = map[Status]map[Status]struct{}{
	StatusStarted: {
		StatusRunning: {},
		// Cancellation before the first dispatch has nothing to reverse.
		StatusCompensated: {},
	},
	StatusRunning: {
		StatusCompleted:    {},
		StatusCompensating: {},
	},
	StatusCompensating: {
		StatusCompensated: {},
		StatusFailed:      {},
	},
}

// String returns the string form of Status.
func (s Status) String() string {
	switch s {
	case StatusStarted:
		return "started"
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusCompensating:
		return "compensating"
	case StatusCompensated:
		return "compensated"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ParseStatus parses a status string and rejects unknown values.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "started":
		return StatusStarted, nil
	case "running":
		return StatusRunning, nil
	case "completed":
		return StatusCompleted, nil
	case "compensating":
		return StatusCompensating, nil
	case "compensated":
		return StatusCompensated, nil
	case "failed":
		return StatusFailed, nil
	default:
		return 0, fmt.Errorf("unknown saga status: %q", s)
	}
}

// IsTerminal reports whether the status is terminal.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCompensated, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether a status transition is valid.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	validNext, ok := validTransitions[s]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// ValidateTransition validates transition semantics.
func ValidateTransition(current, next Status) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid saga status transition: %s -> %s", current, next)
	}
	return nil
}

// StepStatus defines the lifecycle of one saga step.
type StepStatus int

const (
	StepStatusPending StepStatus = iota
	StepStatusRunning
	StepStatusCompleted
	StepStatusFailed
	StepStatusCompensating
	StepStatusCompensated
)

// Step statuses only move forward; retries of the same step stay in
// running and are tracked by the attempt counter, never by regressing
// the status.
var validStepTransitions = map[StepStatus]map[StepStatus]struct{}{
	StepStatusPending: {
		StepStatusRunning: {},
	},
	StepStatusRunning: {
		StepStatusCompleted: {},
		StepStatusFailed:    {},
	},
	StepStatusCompleted: {
		StepStatusCompensating: {},
	},
	StepStatusCompensating: {
		StepStatusCompensated: {},
	},
}

// String returns the string form of StepStatus.
func (s StepStatus) String() string {
	switch s {
	case StepStatusPending:
		return "pending"
	case StepStatusRunning:
		return "running"
	case StepStatusCompleted:
		return "completed"
	case StepStatusFailed:
		return "failed"
	case StepStatusCompensating:
		return "compensating"
	case StepStatusCompensated:
		return "compensated"
	default:
		return "unknown"
	}
}

// ParseStepStatus parses a step status string and rejects unknown values.
func ParseStepStatus(s string) (StepStatus, error) {
	switch s {
	case "pending":
		return StepStatusPending, nil
	case "running":
		return StepStatusRunning, nil
	case "completed":
		return StepStatusCompleted, nil
	case "failed":
		return StepStatusFailed, nil
	case "compensating":
		return StepStatusCompensating, nil
	case "compensated":
		return StepStatusCompensated, nil
	default:
		return 0, fmt.Errorf("unknown step status: %q", s)
	}
}

// IsTerminal reports whether the step status is terminal.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusCompensated:
		return true
	default:
		return false
	}
}

// CanTransitionTo checks whether a step status transition is valid.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	if s == next {
		return true
	}
	validNext, ok := validStepTransitions[s]
	if !ok {
		return false
	}
	_, ok = validNext[next]
	return ok
}

// ValidateStepTransition validates a step status transition.
func ValidateStepTransition(current, next StepStatus) error {
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("invalid step status transition: %s -> %s", current, next)
	}
	return nil
}
