package saga

import (
	"errors"
	"fmt"
)

var (
	// ErrSagaNotFound is returned when a saga instance cannot be located.
	ErrSagaNotFound = errors.New("saga instance not found")

	// ErrVersionConflict is returned when an optimistic write loses the
	// race. Callers reload and retry; it is never surfaced upstream.
	ErrVersionConflict = errors.New("saga version conflict")

	// ErrStepTimeout is returned when a downstream attempt exceeds its
	// deadline. The downstream outcome is unknown, which matters for
	// repair classification.
	ErrStepTimeout = errors.New("step attempt timed out")

	// ErrCancelNotAllowed is returned when cancellation is requested
	// after a step has been dispatched downstream.
	ErrCancelNotAllowed = errors.New("saga cannot be cancelled after dispatch; compensation required")
)

// VersionConflictError reports a stale optimistic write.
type VersionConflictError struct {
	SagaID   string
	Expected uint64
	Actual   uint64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("saga %s version conflict: expected %d, found %d", e.SagaID, e.Expected, e.Actual)
}

// Unwrap lets callers match with errors.Is(err, ErrVersionConflict).
func (e *VersionConflictError) Unwrap() error { return ErrVersionConflict }

// StepFailureError reports an explicit failure returned by the downstream
// collaborator.
type StepFailureError struct {
	Sequence  int
	StepType  StepType
	ErrorCode string
	Message   string
}

func (e *StepFailureError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %s: %s", e.Sequence, e.StepType, e.ErrorCode, e.Message)
}

// CompensationError reports a compensation call that exhausted its
// retries. It always escalates to transaction repair.
type CompensationError struct {
	SagaID   string
	Sequence int
	StepType StepType
	Attempts int
	Cause    error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of step %d (%s) in saga %s failed after %d attempts: %v",
		e.Sequence, e.StepType, e.SagaID, e.Attempts, e.Cause)
}

func (e *CompensationError) Unwrap() error { return e.Cause }
