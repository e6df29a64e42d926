package handlers

import (
	"net/http"

	"github.com/payrail/payrail/pkg/api/response"
)

// Prober reports process health for the liveness and readiness probes.
type Prober interface {
	Healthy() bool
	Ready() bool
	Status() map[string]any
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	prober Prober
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(prober Prober) *HealthHandler {
	return &HealthHandler{prober: prober}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil || h.prober.Healthy() {
		response.JSON(w, http.StatusOK, map[string]string{
			"status": "ok",
		})
		return
	}
	response.JSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "unhealthy",
	})
}

// Ready handles the /ready endpoint (readiness probe).
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil || h.prober.Ready() {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
		return
	}
	response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
		"ready": false,
	})
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.prober == nil {
		response.JSON(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}
	response.JSON(w, http.StatusOK, h.prober.Status())
}
