package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/payrail/payrail/pkg/api/models"
	"github.com/payrail/payrail/pkg/api/response"
	"github.com/payrail/payrail/pkg/logger"
	"github.com/payrail/payrail/pkg/repair"
)

// RepairHandler handles the transaction repair operator API.
type RepairHandler struct {
	manager   *repair.Manager
	logger    logger.Logger
	validator *validator.Validate
}

// NewRepairHandler creates a repair handler.
func NewRepairHandler(manager *repair.Manager, log logger.Logger) *RepairHandler {
	return &RepairHandler{
		manager:   manager,
		logger:    log,
		validator: validator.New(),
	}
}

// ListRepairs handles GET /api/v1/repairs.
func (h *RepairHandler) ListRepairs(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	limit, offset := pageParams(r, 20)
	filter := repair.ListFilter{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		RepairType: strings.TrimSpace(r.URL.Query().Get("repair_type")),
		AssignedTo: strings.TrimSpace(r.URL.Query().Get("assigned_to")),
		TenantID:   strings.TrimSpace(r.URL.Query().Get("tenant_id")),
		Limit:      limit,
		Offset:     offset,
	}

	records, total, err := h.manager.List(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		return
	}

	items := make([]models.RepairView, 0, len(records))
	for _, record := range records {
		items = append(items, repairView(record))
	}

	response.JSON(w, http.StatusOK, models.RepairListResponse{
		Items:  items,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRepair handles GET /api/v1/repairs/{id}.
func (h *RepairHandler) GetRepair(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	record, err := h.manager.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, repairView(record))
}

// GetRepairBySaga handles GET /api/v1/sagas/{id}/repair.
func (h *RepairHandler) GetRepairBySaga(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	record, err := h.manager.GetBySaga(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, repairView(record))
}

// AssignRepair handles POST /api/v1/repairs/{id}/assign.
func (h *RepairHandler) AssignRepair(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	var req models.RepairAssignRequest
	if _, ok := decodeBody(w, r, &req); !ok {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}

	record, err := h.manager.Assign(r.Context(), chi.URLParam(r, "id"), req.Operator)
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, repairView(record))
}

// StartRepairWork handles POST /api/v1/repairs/{id}/start.
func (h *RepairHandler) StartRepairWork(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	record, err := h.manager.StartWork(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, repairView(record))
}

// ResolveRepair handles POST /api/v1/repairs/{id}/resolve.
func (h *RepairHandler) ResolveRepair(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	var req models.RepairResolveRequest
	if _, ok := decodeBody(w, r, &req); !ok {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}

	record, err := h.manager.Resolve(r.Context(), chi.URLParam(r, "id"), req.ResolvedBy, req.Notes, repair.CorrectiveAction(req.Action))
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, repairView(record))
}

// RetryRepair handles POST /api/v1/repairs/{id}/retry.
func (h *RepairHandler) RetryRepair(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	var req models.RepairRetryRequest
	if r.ContentLength > 0 {
		if _, ok := decodeBody(w, r, &req); !ok {
			return
		}
	}

	record, err := h.manager.Retry(r.Context(), chi.URLParam(r, "id"), time.Duration(req.DelayMS)*time.Millisecond)
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusAccepted, repairView(record))
}

// CancelRepair handles POST /api/v1/repairs/{id}/cancel.
func (h *RepairHandler) CancelRepair(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	var req models.RepairCancelRequest
	if _, ok := decodeBody(w, r, &req); !ok {
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}

	record, err := h.manager.Cancel(r.Context(), chi.URLParam(r, "id"), req.CancelledBy, req.Notes)
	if err != nil {
		h.writeRepairError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, repairView(record))
}

// GetRepairSummary handles GET /api/v1/repairs/summary.
func (h *RepairHandler) GetRepairSummary(w http.ResponseWriter, r *http.Request) {
	if h.manager == nil {
		response.Error(w, http.StatusServiceUnavailable, response.ErrCodeServiceUnavailable, "repair manager unavailable", getRequestID(r.Context()))
		return
	}

	filter := repair.ListFilter{
		Status:     strings.TrimSpace(r.URL.Query().Get("status")),
		RepairType: strings.TrimSpace(r.URL.Query().Get("repair_type")),
		TenantID:   strings.TrimSpace(r.URL.Query().Get("tenant_id")),
	}
	summary, err := h.manager.Summarize(r.Context(), filter)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
		return
	}

	resp := models.RepairSummaryResponse{
		Total:         summary.Total,
		ByStatus:      make(map[string]int, len(summary.ByStatus)),
		ByType:        make(map[string]int, len(summary.ByType)),
		TotalAmount:   summary.TotalAmount,
		AverageAmount: summary.AverageAmount,
	}
	for status, count := range summary.ByStatus {
		resp.ByStatus[string(status)] = count
	}
	for repairType, count := range summary.ByType {
		resp.ByType[string(repairType)] = count
	}
	response.JSON(w, http.StatusOK, resp)
}

func (h *RepairHandler) writeRepairError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repair.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "transaction repair not found", getRequestID(r.Context()))
	case errors.Is(err, repair.ErrTerminal), errors.Is(err, repair.ErrRetryExhausted):
		response.Error(w, http.StatusConflict, response.ErrCodeConflict, err.Error(), getRequestID(r.Context()))
	default:
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, err.Error(), getRequestID(r.Context()))
	}
}

func repairView(record *repair.TransactionRepair) models.RepairView {
	return models.RepairView{
		ID:                   record.ID,
		TransactionReference: record.TransactionReference,
		ParentTransactionID:  record.ParentTransactionID,
		TenantID:             record.TenantID,
		BusinessUnit:         record.BusinessUnit,
		RepairType:           string(record.RepairType),
		RepairStatus:         string(record.RepairStatus),
		Amount:               record.Amount,
		Currency:             record.Currency,
		Debit: models.RepairLegView{
			Status:    string(record.Debit.Status),
			Reference: record.Debit.Reference,
			Response:  record.Debit.Response,
		},
		Credit: models.RepairLegView{
			Status:    string(record.Credit.Status),
			Reference: record.Credit.Reference,
			Response:  record.Credit.Response,
		},
		FailureReason:    record.FailureReason,
		RetryCount:       record.RetryCount,
		MaxRetries:       record.MaxRetries,
		NextRetryAt:      record.NextRetryAt,
		TimeoutAt:        record.TimeoutAt,
		Priority:         record.Priority,
		AssignedTo:       record.AssignedTo,
		CorrectiveAction: string(record.CorrectiveAction),
		ResolutionNotes:  record.ResolutionNotes,
		ResolvedBy:       record.ResolvedBy,
		ResolvedAt:       record.ResolvedAt,
		CreatedAt:        record.CreatedAt,
		UpdatedAt:        record.UpdatedAt,
	}
}
