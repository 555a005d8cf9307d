package api

import (
	"context"
	"net/http"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// MetricsDependencies defines the interface for productivity reads.
type MetricsDependencies interface {
	WorkerMetrics(ctx context.Context, window model.Window) ([]model.WorkerMetric, error)
	WorkerMetric(ctx context.Context, id string, window model.Window) (model.WorkerMetric, error)
	WorkstationMetrics(ctx context.Context, window model.Window) ([]model.WorkstationMetric, error)
	WorkstationMetric(ctx context.Context, id string, window model.Window) (model.WorkstationMetric, error)
	FactoryMetrics(ctx context.Context, window model.Window) (model.FactoryMetric, error)
}

// MetricsHandler serves computed metrics.
type MetricsHandler struct {
	deps MetricsDependencies
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(deps MetricsDependencies) *MetricsHandler {
	return &MetricsHandler{deps: deps}
}

// HandleWorkers handles GET /api/metrics/workers.
func (h *MetricsHandler) HandleWorkers(w http.ResponseWriter, r *http.Request) {
	serveMetric(w, r, "api.worker_metrics", func(ctx context.Context, win model.Window) (any, error) {
		return h.deps.WorkerMetrics(ctx, win)
	})
}

// HandleWorker handles GET /api/metrics/workers/{id}.
func (h *MetricsHandler) HandleWorker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	serveMetric(w, r, "api.worker_metric", func(ctx context.Context, win model.Window) (any, error) {
		return h.deps.WorkerMetric(ctx, id, win)
	})
}

// HandleWorkstations handles GET /api/metrics/workstations.
func (h *MetricsHandler) HandleWorkstations(w http.ResponseWriter, r *http.Request) {
	serveMetric(w, r, "api.workstation_metrics", func(ctx context.Context, win model.Window) (any, error) {
		return h.deps.WorkstationMetrics(ctx, win)
	})
}

// HandleWorkstation handles GET /api/metrics/workstations/{id}.
func (h *MetricsHandler) HandleWorkstation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	serveMetric(w, r, "api.workstation_metric", func(ctx context.Context, win model.Window) (any, error) {
		return h.deps.WorkstationMetric(ctx, id, win)
	})
}

// HandleFactory handles GET /api/metrics/factory.
func (h *MetricsHandler) HandleFactory(w http.ResponseWriter, r *http.Request) {
	serveMetric(w, r, "api.factory_metrics", func(ctx context.Context, win model.Window) (any, error) {
		return h.deps.FactoryMetrics(ctx, win)
	})
}

func serveMetric(w http.ResponseWriter, r *http.Request, op string, read func(context.Context, model.Window) (any, error)) {
	win, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	v, err := read(r.Context(), win)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}
