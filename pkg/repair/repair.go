// Package repair manages transactions the saga's automatic compensation
// path could not close: classification of the failure, a bounded
// scheduler-driven retry loop, and an operator workflow for the rest.
package repair

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/payrail/payrail/pkg/saga"
)

// Type classifies why a transaction needs repair.
type Type string

const (
	TypeDebitFailed         Type = "DEBIT_FAILED"
	TypeCreditFailed        Type = "CREDIT_FAILED"
	TypeDebitTimeout        Type = "DEBIT_TIMEOUT"
	TypeCreditTimeout       Type = "CREDIT_TIMEOUT"
	TypeDebitCreditMismatch Type = "DEBIT_CREDIT_MISMATCH"
	TypePartialSuccess      Type = "PARTIAL_SUCCESS"
	TypeSystemError         Type = "SYSTEM_ERROR"
	TypeManualReview        Type = "MANUAL_REVIEW"
)

// Status is the repair workflow state.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether the repair workflow has ended.
func (s Status) IsTerminal() bool {
	return s == StatusResolved || s == StatusCancelled
}

// CorrectiveAction is the operator- or system-chosen recovery action.
type CorrectiveAction string

const (
	ActionRetryDebit        CorrectiveAction = "RETRY_DEBIT"
	ActionRetryCredit       CorrectiveAction = "RETRY_CREDIT"
	ActionRetryBoth         CorrectiveAction = "RETRY_BOTH"
	ActionReverseDebit      CorrectiveAction = "REVERSE_DEBIT"
	ActionReverseCredit     CorrectiveAction = "REVERSE_CREDIT"
	ActionReverseBoth       CorrectiveAction = "REVERSE_BOTH"
	ActionManualCredit      CorrectiveAction = "MANUAL_CREDIT"
	ActionManualDebit       CorrectiveAction = "MANUAL_DEBIT"
	ActionManualBoth        CorrectiveAction = "MANUAL_BOTH"
	ActionCancelTransaction CorrectiveAction = "CANCEL_TRANSACTION"
	ActionEscalate          CorrectiveAction = "ESCALATE"
	ActionNoAction          CorrectiveAction = "NO_ACTION"
)

const (
	// DefaultMaxRetries bounds automatic repair re-attempts.
	DefaultMaxRetries = 3
	// DefaultTimeout is how long a repair may sit unresolved before it
	// escalates to the operator queue.
	DefaultTimeout = 24 * time.Hour

	// Priority runs from 1 (most urgent) to 5. Unresolved timeouts move
	// a record toward 1.
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
	PriorityLow      = 5
)

var (
	// ErrNotFound is returned when a repair record does not exist.
	ErrNotFound = errors.New("transaction repair not found")
	// ErrTerminal is returned for mutations on a resolved or cancelled
	// repair.
	ErrTerminal = errors.New("transaction repair already closed")
	// ErrRetryExhausted is returned when the automatic retry budget is
	// spent.
	ErrRetryExhausted = errors.New("transaction repair retries exhausted")
)

// Leg is the independently tracked state of one money-movement leg. The
// two legs are never collapsed into one status: a settled credit must
// survive a debit retry untouched.
type Leg struct {
	Status    saga.LegStatus `json:"status"`
	Reference string         `json:"reference,omitempty"`
	Response  map[string]any `json:"response,omitempty"`
}

// Settled reports whether this leg completed downstream and must never
// be re-issued.
func (l Leg) Settled() bool {
	return l.Status == saga.LegStatusSuccess
}

// TransactionRepair is one manual-recovery work item.
type TransactionRepair struct {
	ID                   string           `json:"id"`
	TransactionReference string           `json:"transaction_reference"`
	ParentTransactionID  string           `json:"parent_transaction_id"`
	TenantID             string           `json:"tenant_id,omitempty"`
	BusinessUnit         string           `json:"business_unit,omitempty"`
	RepairType           Type             `json:"repair_type"`
	RepairStatus         Status           `json:"repair_status"`
	Amount               int64            `json:"amount"`
	Currency             string           `json:"currency,omitempty"`
	Debit                Leg              `json:"debit"`
	Credit               Leg              `json:"credit"`
	FailureReason        string           `json:"failure_reason,omitempty"`
	RetryCount           int              `json:"retry_count"`
	MaxRetries           int              `json:"max_retries"`
	NextRetryAt          *time.Time       `json:"next_retry_at,omitempty"`
	TimeoutAt            *time.Time       `json:"timeout_at,omitempty"`
	Priority             int              `json:"priority"`
	AssignedTo           string           `json:"assigned_to,omitempty"`
	CorrectiveAction     CorrectiveAction `json:"corrective_action,omitempty"`
	ResolutionNotes      string           `json:"resolution_notes,omitempty"`
	ResolvedBy           string           `json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
	Version              uint64           `json:"version"`
}

// New builds a pending repair record from a saga failure report.
func New(report *saga.FailureReport) (*TransactionRepair, error) {
	if report == nil {
		return nil, fmt.Errorf("failure report cannot be nil")
	}
	if report.SagaID == "" {
		return nil, fmt.Errorf("failure report missing saga id")
	}

	now := time.Now().UTC()
	repairType := Classify(report)
	timeoutAt := now.Add(DefaultTimeout)

	record := &TransactionRepair{
		ID:                   uuid.NewString(),
		TransactionReference: report.CorrelationID,
		ParentTransactionID:  report.SagaID,
		TenantID:             report.TenantID,
		BusinessUnit:         report.BusinessUnit,
		RepairType:           repairType,
		RepairStatus:         StatusPending,
		Amount:               report.Amount,
		Currency:             report.Currency,
		Debit: Leg{
			Status:    report.Debit.Status,
			Reference: report.Debit.Reference,
			Response:  report.Debit.Response,
		},
		Credit: Leg{
			Status:    report.Credit.Status,
			Reference: report.Credit.Reference,
			Response:  report.Credit.Response,
		},
		FailureReason: report.Reason,
		MaxRetries:    DefaultMaxRetries,
		TimeoutAt:     &timeoutAt,
		Priority:      priorityFor(repairType),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return record, nil
}

// MarkForRetry schedules the next automatic attempt. Legs that already
// settled are left untouched; only unsettled legs are reset to pending.
func (r *TransactionRepair) MarkForRetry(delay time.Duration) error {
	if r.RepairStatus.IsTerminal() {
		return ErrTerminal
	}
	if r.RetryCount >= r.MaxRetries {
		return ErrRetryExhausted
	}

	now := time.Now().UTC()
	next := now.Add(delay)
	r.RetryCount++
	r.NextRetryAt = &next
	r.RepairStatus = StatusPending
	if !r.Debit.Settled() {
		r.Debit.Status = saga.LegStatusPending
	}
	if !r.Credit.Settled() {
		r.Credit.Status = saga.LegStatusPending
	}
	r.UpdatedAt = now
	return nil
}

// CanRetry reports whether the scheduler may re-attempt this repair now.
func (r *TransactionRepair) CanRetry(now time.Time) bool {
	if r.RepairStatus != StatusPending {
		return false
	}
	if r.RetryCount >= r.MaxRetries {
		return false
	}
	if r.NextRetryAt != nil && now.Before(*r.NextRetryAt) {
		return false
	}
	return true
}

// IsTimedOut reports whether the record sat unresolved past its deadline.
func (r *TransactionRepair) IsTimedOut(now time.Time) bool {
	if r.RepairStatus.IsTerminal() {
		return false
	}
	return r.TimeoutAt != nil && now.After(*r.TimeoutAt)
}

// Escalate raises priority and routes the record to the operator queue.
func (r *TransactionRepair) Escalate() {
	if r.Priority > PriorityCritical {
		r.Priority--
	}
	r.CorrectiveAction = ActionEscalate
	r.UpdatedAt = time.Now().UTC()
}

// AssignTo hands the record to an operator.
func (r *TransactionRepair) AssignTo(operator string) error {
	if operator == "" {
		return fmt.Errorf("operator cannot be empty")
	}
	if r.RepairStatus.IsTerminal() {
		return ErrTerminal
	}
	r.AssignedTo = operator
	r.RepairStatus = StatusAssigned
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkInProgress records that the assigned operator started working.
func (r *TransactionRepair) MarkInProgress() error {
	if r.RepairStatus != StatusAssigned {
		return fmt.Errorf("repair %s must be assigned before work starts, is %s", r.ID, r.RepairStatus)
	}
	r.RepairStatus = StatusInProgress
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkAsResolved closes the record. No automatic processing happens after
// resolution.
func (r *TransactionRepair) MarkAsResolved(by, notes string, action CorrectiveAction) error {
	if by == "" {
		return fmt.Errorf("resolver cannot be empty")
	}
	if r.RepairStatus.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now().UTC()
	r.RepairStatus = StatusResolved
	r.ResolvedBy = by
	r.ResolvedAt = &now
	r.ResolutionNotes = notes
	if action != "" {
		r.CorrectiveAction = action
	}
	r.UpdatedAt = now
	return nil
}

// Cancel closes the record without resolution.
func (r *TransactionRepair) Cancel(by, notes string) error {
	if r.RepairStatus.IsTerminal() {
		return ErrTerminal
	}
	now := time.Now().UTC()
	r.RepairStatus = StatusCancelled
	r.ResolvedBy = by
	r.ResolvedAt = &now
	r.ResolutionNotes = notes
	r.CorrectiveAction = ActionCancelTransaction
	r.UpdatedAt = now
	return nil
}

// Clone returns a deep copy.
func (r *TransactionRepair) Clone() *TransactionRepair {
	if r == nil {
		return nil
	}
	clone := *r
	clone.NextRetryAt = copyTime(r.NextRetryAt)
	clone.TimeoutAt = copyTime(r.TimeoutAt)
	clone.ResolvedAt = copyTime(r.ResolvedAt)
	clone.Debit.Response = copyResponse(r.Debit.Response)
	clone.Credit.Response = copyResponse(r.Credit.Response)
	return &clone
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}

func copyResponse(source map[string]any) map[string]any {
	if source == nil {
		return nil
	}
	copied := make(map[string]any, len(source))
	for k, v := range source {
		copied[k] = v
	}
	return copied
}
