package models

import "time"

// SagaSubmitRequest describes a payment saga submission payload.
type SagaSubmitRequest struct {
	Name          string            `json:"name" validate:"required,min=1,max=100"`
	CorrelationID string            `json:"correlation_id,omitempty" validate:"omitempty,max=100"`
	TenantID      string            `json:"tenant_id,omitempty" validate:"omitempty,max=100"`
	BusinessUnit  string            `json:"business_unit,omitempty" validate:"omitempty,max=100"`
	StepTimeoutMS int               `json:"step_timeout_ms,omitempty" validate:"omitempty,min=1"`
	MaxRetries    *int              `json:"max_retries,omitempty" validate:"omitempty,min=0"`
	Steps         []SagaStepRequest `json:"steps" validate:"required,min=1,dive"`
}

// SagaStepRequest defines one money-movement step in a submitted saga.
type SagaStepRequest struct {
	StepType             string         `json:"step_type" validate:"required,oneof=DEBIT CREDIT CLEARING_SUBMIT"`
	ServiceName          string         `json:"service_name" validate:"required,min=1,max=100"`
	Endpoint             string         `json:"endpoint" validate:"required,min=1"`
	CompensationEndpoint string         `json:"compensation_endpoint,omitempty"`
	Input                map[string]any `json:"input,omitempty"`
	TimeoutMS            int            `json:"timeout_ms,omitempty" validate:"omitempty,min=1"`
	MaxRetries           *int           `json:"max_retries,omitempty" validate:"omitempty,min=0"`
}

// SagaSubmitResponse is returned when a saga is accepted for execution.
type SagaSubmitResponse struct {
	SagaID        string    `json:"saga_id"`
	Name          string    `json:"name"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// StepView is the API projection of one saga step.
type StepView struct {
	Sequence             int            `json:"sequence"`
	StepType             string         `json:"step_type"`
	ServiceName          string         `json:"service_name"`
	Endpoint             string         `json:"endpoint"`
	CompensationEndpoint string         `json:"compensation_endpoint,omitempty"`
	Status               string         `json:"status"`
	RetryCount           int            `json:"retry_count"`
	MaxRetries           int            `json:"max_retries"`
	OutputData           map[string]any `json:"output_data,omitempty"`
	ErrorData            map[string]any `json:"error_data,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty"`
	StartedAt            *time.Time     `json:"started_at,omitempty"`
	CompletedAt          *time.Time     `json:"completed_at,omitempty"`
	CompensatedAt        *time.Time     `json:"compensated_at,omitempty"`
}

// SagaStatusResponse returns the current state of one saga instance.
type SagaStatusResponse struct {
	SagaID        string     `json:"saga_id"`
	Name          string     `json:"name"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	TenantID      string     `json:"tenant_id,omitempty"`
	BusinessUnit  string     `json:"business_unit,omitempty"`
	Status        string     `json:"status"`
	Steps         []StepView `json:"steps"`
	FailedStep    int        `json:"failed_step,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	Version       uint64     `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// SagaSummary is one row in a saga list response.
type SagaSummary struct {
	SagaID        string     `json:"saga_id"`
	Name          string     `json:"name"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	TenantID      string     `json:"tenant_id,omitempty"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// SagaListResponse is a paginated list of saga summaries.
type SagaListResponse struct {
	Items  []SagaSummary `json:"items"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// SagaEventView is one row of a saga's event history.
type SagaEventView struct {
	ID         string    `json:"id"`
	Type       string    `json:"event_type"`
	Version    uint64    `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"event_data,omitempty"`
}

// SagaHistoryResponse is the event stream of one saga in version order.
type SagaHistoryResponse struct {
	SagaID string          `json:"saga_id"`
	Events []SagaEventView `json:"events"`
}

// SagaActionResponse is returned by cancel operations.
type SagaActionResponse struct {
	SagaID string `json:"saga_id"`
	Status string `json:"status"`
}
