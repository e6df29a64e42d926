// Package api provides HTTP API server components.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/payrail/payrail/config"
	"github.com/payrail/payrail/pkg/api/handlers"
	"github.com/payrail/payrail/pkg/api/middleware"
	"github.com/payrail/payrail/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Saga handles saga submission and lifecycle endpoints
	Saga *handlers.SagaHandler

	// Repair handles the transaction repair operator endpoints
	Repair *handlers.RepairHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams saga lifecycle events to subscribers
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))

	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		if h.Saga != nil {
			r.Route("/sagas", func(r chi.Router) {
				r.Post("/", h.Saga.SubmitSaga)
				r.Get("/", h.Saga.ListSagas)
				r.Get("/{id}", h.Saga.GetSaga)
				r.Post("/{id}/cancel", h.Saga.CancelSaga)
				r.Get("/{id}/events", h.Saga.GetSagaHistory)
				if h.Repair != nil {
					r.Get("/{id}/repair", h.Repair.GetRepairBySaga)
				}
			})
		}

		if h.Repair != nil {
			r.Route("/repairs", func(r chi.Router) {
				r.Get("/", h.Repair.ListRepairs)
				r.Get("/summary", h.Repair.GetRepairSummary)
				r.Get("/{id}", h.Repair.GetRepair)
				r.Post("/{id}/assign", h.Repair.AssignRepair)
				r.Post("/{id}/start", h.Repair.StartRepairWork)
				r.Post("/{id}/resolve", h.Repair.ResolveRepair)
				r.Post("/{id}/retry", h.Repair.RetryRepair)
				r.Post("/{id}/cancel", h.Repair.CancelRepair)
			})
		}

		r.Get("/openapi.json", openAPIHandler)
	})

	// Health check routes (not versioned)
	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
		r.Get("/status", h.Health.Status)
	}

	// Saga lifecycle event stream
	if h.WebSocket != nil {
		r.Get("/ws/events", h.WebSocket.ServeHTTP)
	}

	// Swagger documentation served from the static OpenAPI document
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/api/v1/openapi.json"),
	))
}

func openAPIHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(openAPIDocument))
}
