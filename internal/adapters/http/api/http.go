// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/shiftmetrics/internal/adapters/repository"
	"github.com/okian/shiftmetrics/internal/domain/dedupe"
	"github.com/okian/shiftmetrics/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	MetricsDependencies
	RegistryDependencies
	ReadinessChecker
}

// Server wires HTTP routes for the business API.
type Server struct {
	rootHandler     *RootHandler
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	eventsHandler   *EventsHandler
	metricsHandler  *MetricsHandler
	registryHandler *RegistryHandler
	exportHandler   *ExportHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		rootHandler:     NewRootHandler(),
		healthHandler:   NewHealthHandler(deps),
		statsHandler:    NewStatsHandler(statsProvider),
		eventsHandler:   NewEventsHandler(deps),
		metricsHandler:  NewMetricsHandler(deps),
		registryHandler: NewRegistryHandler(deps),
		exportHandler:   NewExportHandler(deps, time.Now),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", MetricsMiddleware(s.rootHandler.HandleRoot, "root"))
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /readyz", MetricsMiddleware(s.healthHandler.HandleReady, "readyz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /api/events", MetricsMiddleware(s.eventsHandler.HandlePostEvent, "events"))
	mux.HandleFunc("GET /api/events", MetricsMiddleware(s.eventsHandler.HandleListEvents, "events"))

	mux.HandleFunc("GET /api/metrics/workers", MetricsMiddleware(s.metricsHandler.HandleWorkers, "metrics_workers"))
	mux.HandleFunc("GET /api/metrics/workers/{id}", MetricsMiddleware(s.metricsHandler.HandleWorker, "metrics_worker"))
	mux.HandleFunc("GET /api/metrics/workstations", MetricsMiddleware(s.metricsHandler.HandleWorkstations, "metrics_workstations"))
	mux.HandleFunc("GET /api/metrics/workstations/{id}", MetricsMiddleware(s.metricsHandler.HandleWorkstation, "metrics_workstation"))
	mux.HandleFunc("GET /api/metrics/factory", MetricsMiddleware(s.metricsHandler.HandleFactory, "metrics_factory"))
	mux.HandleFunc("GET /api/metrics/export.xlsx", MetricsMiddleware(s.exportHandler.HandleExport, "metrics_export"))

	mux.HandleFunc("GET /api/workers", MetricsMiddleware(s.registryHandler.HandleWorkers, "workers"))
	mux.HandleFunc("GET /api/workstations", MetricsMiddleware(s.registryHandler.HandleWorkstations, "workstations"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError maps domain and store errors onto status codes.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, dedupe.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", Wrap(op, err))
	case errors.Is(err, dedupe.ErrReference):
		writeError(w, http.StatusNotFound, "unknown_reference", Wrap(op, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", WrapKind(op, ErrNotFound, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// parseWindow reads the optional from/to RFC3339 bounds.
func parseWindow(r *http.Request) (model.Window, error) {
	var (
		w   model.Window
		err error
	)
	q := r.URL.Query()
	if v := q.Get("from"); v != "" {
		if w.From, err = time.Parse(time.RFC3339, v); err != nil {
			return model.Window{}, fmt.Errorf("invalid from; must be RFC3339: %w", err)
		}
	}
	if v := q.Get("to"); v != "" {
		if w.To, err = time.Parse(time.RFC3339, v); err != nil {
			return model.Window{}, fmt.Errorf("invalid to; must be RFC3339: %w", err)
		}
	}
	if !w.From.IsZero() && !w.To.IsZero() && !w.From.Before(w.To) {
		return model.Window{}, errors.New("from must be before to")
	}
	return w, nil
}
