package api

import (
	"context"
	"net/http"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

// RegistryDependencies lists registered entities.
type RegistryDependencies interface {
	Workers(ctx context.Context) ([]model.Worker, error)
	Workstations(ctx context.Context) ([]model.Workstation, error)
}

// RegistryHandler serves the worker and workstation registry.
type RegistryHandler struct {
	deps RegistryDependencies
}

// NewRegistryHandler creates a new registry handler.
func NewRegistryHandler(deps RegistryDependencies) *RegistryHandler {
	return &RegistryHandler{deps: deps}
}

// HandleWorkers handles GET /api/workers.
func (h *RegistryHandler) HandleWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.deps.Workers(r.Context())
	if err != nil {
		writeServiceError(w, "api.list_workers", err)
		return
	}
	writeJSON(w, http.StatusOK, workers)
}

// HandleWorkstations handles GET /api/workstations.
func (h *RegistryHandler) HandleWorkstations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.deps.Workstations(r.Context())
	if err != nil {
		writeServiceError(w, "api.list_workstations", err)
		return
	}
	writeJSON(w, http.StatusOK, stations)
}
