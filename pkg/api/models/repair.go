// Package models defines API request/response data structures.
package models

import "time"

// RepairLegView is the API projection of one money-movement leg.
type RepairLegView struct {
	Status    string         `json:"status"`
	Reference string         `json:"reference,omitempty"`
	Response  map[string]any `json:"response,omitempty"`
}

// RepairView is the API projection of one transaction repair record.
type RepairView struct {
	ID                   string        `json:"id"`
	TransactionReference string        `json:"transaction_reference"`
	ParentTransactionID  string        `json:"parent_transaction_id"`
	TenantID             string        `json:"tenant_id,omitempty"`
	BusinessUnit         string        `json:"business_unit,omitempty"`
	RepairType           string        `json:"repair_type"`
	RepairStatus         string        `json:"repair_status"`
	Amount               int64         `json:"amount"`
	Currency             string        `json:"currency,omitempty"`
	Debit                RepairLegView `json:"debit"`
	Credit               RepairLegView `json:"credit"`
	FailureReason        string        `json:"failure_reason,omitempty"`
	RetryCount           int           `json:"retry_count"`
	MaxRetries           int           `json:"max_retries"`
	NextRetryAt          *time.Time    `json:"next_retry_at,omitempty"`
	TimeoutAt            *time.Time    `json:"timeout_at,omitempty"`
	Priority             int           `json:"priority"`
	AssignedTo           string        `json:"assigned_to,omitempty"`
	CorrectiveAction     string        `json:"corrective_action,omitempty"`
	ResolutionNotes      string        `json:"resolution_notes,omitempty"`
	ResolvedBy           string        `json:"resolved_by,omitempty"`
	ResolvedAt           *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// RepairListResponse is a paginated list of repair records.
type RepairListResponse struct {
	Items  []RepairView `json:"items"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// RepairAssignRequest hands a repair record to an operator.
type RepairAssignRequest struct {
	Operator string `json:"operator" validate:"required,min=1,max=100"`
}

// RepairResolveRequest closes a repair record with a resolution.
type RepairResolveRequest struct {
	ResolvedBy string `json:"resolved_by" validate:"required,min=1,max=100"`
	Notes      string `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Action     string `json:"action,omitempty"`
}

// RepairCancelRequest closes a repair record without resolution.
type RepairCancelRequest struct {
	CancelledBy string `json:"cancelled_by" validate:"required,min=1,max=100"`
	Notes       string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// RepairRetryRequest schedules a manual re-attempt.
type RepairRetryRequest struct {
	DelayMS int `json:"delay_ms,omitempty" validate:"omitempty,min=0"`
}

// RepairSummaryResponse aggregates the repair queue for settlement
// reporting. Amounts are integer minor units.
type RepairSummaryResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByType        map[string]int `json:"by_type"`
	TotalAmount   int64          `json:"total_amount"`
	AverageAmount int64          `json:"average_amount"`
}
