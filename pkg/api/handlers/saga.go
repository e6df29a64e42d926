// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/payrail/payrail/pkg/api/middleware"
	"github.com/payrail/payrail/pkg/api/models"
	"github.com/payrail/payrail/pkg/api/response"
	"github.com/payrail/payrail/pkg/idempotency"
	"github.com/payrail/payrail/pkg/logger"
	"github.com/payrail/payrail/pkg/saga"
)

// IdempotencyKeyHeader carries the client-chosen saga submission key.
const IdempotencyKeyHeader = "X-Idempotency-Key"

func getRequestID(ctx context.Context) string {
	return middleware.GetRequestID(ctx)
}

// SagaHandler handles saga API endpoints.
type SagaHandler struct {
	orchestrator *saga.Orchestrator
	guard        *idempotency.Guard
	logger       logger.Logger
	validator    *validator.Validate
}

// NewSagaHandler creates a saga handler. The idempotency guard is
// optional; without it duplicate submissions are not deduplicated.
func NewSagaHandler(orchestrator *saga.Orchestrator, guard *idempotency.Guard, log logger.Logger) *SagaHandler {
	return &SagaHandler{
		orchestrator: orchestrator,
		guard:        guard,
		logger:       log,
		validator:    validator.New(),
	}
}

// SubmitSaga handles POST /api/v1/sagas.
func (h *SagaHandler) SubmitSaga(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga orchestrator unavailable", getRequestID(r.Context()))
		return
	}

	var req models.SagaSubmitRequest
	body, decoded := decodeBody(w, r, &req)
	if !decoded {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}

	definition, err := buildDefinition(req)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if h.guard == nil || key == "" {
		status, payload, err := h.submit(r.Context(), definition)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
			return
		}
		writeRaw(w, status, payload)
		return
	}

	resp, replayed, err := h.guard.Execute(r.Context(), key, req.TenantID, "/api/v1/sagas", body,
		func(ctx context.Context) (*idempotency.Response, error) {
			status, payload, err := h.submit(ctx, definition)
			if err != nil {
				return nil, err
			}
			return &idempotency.Response{Status: status, Body: payload}, nil
		})
	if err != nil {
		var conflict *idempotency.ConflictError
		switch {
		case errors.As(err, &conflict):
			response.Error(w, http.StatusConflict, response.ErrCodeConflict, "idempotency key reused with a different request body", getRequestID(r.Context()))
		case errors.Is(err, idempotency.ErrInFlight):
			response.Error(w, http.StatusConflict, response.ErrCodeConflict, "original request with this idempotency key is still executing", getRequestID(r.Context()))
		default:
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		}
		return
	}
	if replayed {
		w.Header().Set("X-Idempotency-Replayed", "true")
	}
	writeRaw(w, resp.Status, resp.Body)
}

// submit starts the saga, runs it in the background, and returns the
// accepted response body. Kept separate so the idempotency guard can cache
// the exact bytes.
func (h *SagaHandler) submit(ctx context.Context, definition *saga.Definition) (int, []byte, error) {
	instance, err := h.orchestrator.Start(ctx, definition)
	if err != nil {
		return 0, nil, err
	}

	sagaID := instance.ID
	go func() {
		if _, runErr := h.orchestrator.Run(context.Background(), sagaID); runErr != nil && h.logger != nil {
			h.logger.Warn("saga run finished with error", "saga_id", sagaID, "error", runErr)
		}
	}()

	payload, err := json.Marshal(models.SagaSubmitResponse{
		SagaID:        instance.ID,
		Name:          instance.Name,
		CorrelationID: instance.CorrelationID,
		Status:        instance.Status.String(),
		CreatedAt:     instance.CreatedAt,
	})
	if err != nil {
		return 0, nil, err
	}
	return http.StatusAccepted, payload, nil
}

// GetSaga handles GET /api/v1/sagas/{id}.
func (h *SagaHandler) GetSaga(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga orchestrator unavailable", getRequestID(r.Context()))
		return
	}

	sagaID := chi.URLParam(r, "id")
	if sagaID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "saga id is required", getRequestID(r.Context()))
		return
	}

	instance, err := h.orchestrator.Get(r.Context(), sagaID)
	if err != nil {
		if errors.Is(err, saga.ErrSagaNotFound) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "saga not found", getRequestID(r.Context()))
			return
		}
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		return
	}

	response.JSON(w, http.StatusOK, sagaStatusView(instance))
}

// ListSagas handles GET /api/v1/sagas.
func (h *SagaHandler) ListSagas(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga orchestrator unavailable", getRequestID(r.Context()))
		return
	}

	limit, offset := pageParams(r, 20)
	filter := saga.ListFilter{
		Status:        strings.TrimSpace(r.URL.Query().Get("status")),
		TenantID:      strings.TrimSpace(r.URL.Query().Get("tenant_id")),
		CorrelationID: strings.TrimSpace(r.URL.Query().Get("correlation_id")),
		Limit:         limit,
		Offset:        offset,
	}
	if filter.Status != "" {
		if _, err := saga.ParseStatus(filter.Status); err != nil {
			response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), getRequestID(r.Context()))
			return
		}
	}

	instances, total, err := h.orchestrator.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		return
	}

	items := make([]models.SagaSummary, 0, len(instances))
	for _, instance := range instances {
		items = append(items, models.SagaSummary{
			SagaID:        instance.ID,
			Name:          instance.Name,
			CorrelationID: instance.CorrelationID,
			TenantID:      instance.TenantID,
			Status:        instance.Status.String(),
			CreatedAt:     instance.CreatedAt,
			CompletedAt:   instance.CompletedAt,
		})
	}

	response.JSON(w, http.StatusOK, models.SagaListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CancelSaga handles POST /api/v1/sagas/{id}/cancel.
func (h *SagaHandler) CancelSaga(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga orchestrator unavailable", getRequestID(r.Context()))
		return
	}

	sagaID := chi.URLParam(r, "id")
	if sagaID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "saga id is required", getRequestID(r.Context()))
		return
	}

	instance, err := h.orchestrator.Cancel(r.Context(), sagaID)
	if err != nil {
		switch {
		case errors.Is(err, saga.ErrSagaNotFound):
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "saga not found", getRequestID(r.Context()))
		case errors.Is(err, saga.ErrCancelNotAllowed):
			response.Error(w, http.StatusConflict, response.ErrCodeConflict, err.Error(), getRequestID(r.Context()))
		case instance != nil && instance.Status.IsTerminal():
			response.Error(w, http.StatusConflict, response.ErrCodeConflict, err.Error(), getRequestID(r.Context()))
		default:
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		}
		return
	}

	response.JSON(w, http.StatusAccepted, models.SagaActionResponse{
		SagaID: instance.ID,
		Status: instance.Status.String(),
	})
}

// GetSagaHistory handles GET /api/v1/sagas/{id}/events.
func (h *SagaHandler) GetSagaHistory(w http.ResponseWriter, r *http.Request) {
	if h.orchestrator == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "saga orchestrator unavailable", getRequestID(r.Context()))
		return
	}

	sagaID := chi.URLParam(r, "id")
	if sagaID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "saga id is required", getRequestID(r.Context()))
		return
	}

	events, err := h.orchestrator.History(r.Context(), sagaID)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		return
	}
	if len(events) == 0 {
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "saga not found", getRequestID(r.Context()))
		return
	}

	views := make([]models.SagaEventView, 0, len(events))
	for _, event := range events {
		view := models.SagaEventView{
			ID:         event.ID,
			Type:       string(event.Type),
			Version:    event.Version,
			OccurredAt: event.OccurredAt,
		}
		if len(event.Data) > 0 {
			var data any
			if err := json.Unmarshal(event.Data, &data); err == nil {
				view.Data = data
			}
		}
		views = append(views, view)
	}

	response.JSON(w, http.StatusOK, models.SagaHistoryResponse{
		SagaID: sagaID,
		Events: views,
	})
}

func buildDefinition(req models.SagaSubmitRequest) (*saga.Definition, error) {
	builder := saga.New(req.Name).
		WithCorrelationID(req.CorrelationID).
		WithTenant(req.TenantID, req.BusinessUnit)
	if req.StepTimeoutMS > 0 {
		builder = builder.WithDefaultStepTimeout(time.Duration(req.StepTimeoutMS) * time.Millisecond)
	}
	if req.MaxRetries != nil {
		builder = builder.WithDefaultMaxRetries(*req.MaxRetries)
	}

	for _, stepReq := range req.Steps {
		stepType, err := saga.ParseStepType(stepReq.StepType)
		if err != nil {
			return nil, err
		}
		options := []saga.StepOption{}
		if stepReq.Input != nil {
			options = append(options, saga.Input(stepReq.Input))
		}
		if stepReq.CompensationEndpoint != "" {
			options = append(options, saga.CompensateAt(stepReq.CompensationEndpoint))
		}
		if stepReq.TimeoutMS > 0 {
			options = append(options, saga.StepTimeout(time.Duration(stepReq.TimeoutMS)*time.Millisecond))
		}
		if stepReq.MaxRetries != nil {
			options = append(options, saga.MaxRetries(*stepReq.MaxRetries))
		}
		builder = builder.Step(stepType, stepReq.ServiceName, stepReq.Endpoint, options...)
	}
	return builder.Build()
}

func sagaStatusView(instance *saga.Instance) models.SagaStatusResponse {
	steps := make([]models.StepView, 0, len(instance.Steps))
	for _, step := range instance.Steps {
		steps = append(steps, models.StepView{
			Sequence:             step.Sequence,
			StepType:             step.Type.String(),
			ServiceName:          step.ServiceName,
			Endpoint:             step.Endpoint,
			CompensationEndpoint: step.CompensationEndpoint,
			Status:               step.Status.String(),
			RetryCount:           step.RetryCount,
			MaxRetries:           step.MaxRetries,
			OutputData:           step.OutputData,
			ErrorData:            step.ErrorData,
			ErrorMessage:         step.ErrorMessage,
			StartedAt:            step.StartedAt,
			CompletedAt:          step.CompletedAt,
			CompensatedAt:        step.CompensatedAt,
		})
	}

	return models.SagaStatusResponse{
		SagaID:        instance.ID,
		Name:          instance.Name,
		CorrelationID: instance.CorrelationID,
		TenantID:      instance.TenantID,
		BusinessUnit:  instance.BusinessUnit,
		Status:        instance.Status.String(),
		Steps:         steps,
		FailedStep:    instance.FailedStep,
		FailureReason: instance.FailureReason,
		Version:       instance.Version,
		CreatedAt:     instance.CreatedAt,
		UpdatedAt:     instance.UpdatedAt,
		StartedAt:     instance.StartedAt,
		CompletedAt:   instance.CompletedAt,
	}
}

func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

// decodeBody reads and decodes a JSON request body, reporting the failure
// to the client itself. The raw bytes are returned for request hashing.
func decodeBody(w http.ResponseWriter, r *http.Request, target any) ([]byte, bool) {
	body, err := readBody(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "unable to read request body", getRequestID(r.Context()))
		return nil, false
	}
	if err := json.Unmarshal(body, target); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "invalid request body", getRequestID(r.Context()))
		return nil, false
	}
	return body, true
}

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

const maxBodyBytes = 1 << 20

func writeRaw(w http.ResponseWriter, status int, payload []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}
