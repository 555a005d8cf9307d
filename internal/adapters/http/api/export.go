package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/shiftmetrics/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExportHandler renders all metrics as a workbook download.
type ExportHandler struct {
	deps MetricsDependencies
	now  func() time.Time
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps MetricsDependencies, now func() time.Time) *ExportHandler {
	return &ExportHandler{deps: deps, now: now}
}

// HandleExport handles GET /api/metrics/export.xlsx.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_metrics"

	win, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	ctx := r.Context()

	snap := report.Snapshot{Generated: h.now(), Window: win}
	if snap.Factory, err = h.deps.FactoryMetrics(ctx, win); err != nil {
		writeServiceError(w, op, err)
		return
	}
	if snap.Workers, err = h.deps.WorkerMetrics(ctx, win); err != nil {
		writeServiceError(w, op, err)
		return
	}
	if snap.Workstations, err = h.deps.WorkstationMetrics(ctx, win); err != nil {
		writeServiceError(w, op, err)
		return
	}

	body, err := report.Workbook(snap)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export_failed", WrapKind(op, ErrExport, err))
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="shiftmetrics-%s.xlsx"`, snap.Generated.UTC().Format("20060102-150405")))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
