package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/okian/shiftmetrics/internal/domain/model"
)

const (
	maxEventBody = 1 << 20
	sourceHTTP   = "http"
)

// EventDependencies defines the interface for event ingestion and listing.
type EventDependencies interface {
	Ingest(ctx context.Context, source string, in model.EventInput) (model.Event, bool, error)
	Events(ctx context.Context, f model.EventFilter) ([]model.Event, error)
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps EventDependencies
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventDependencies) *EventsHandler {
	return &EventsHandler{deps: deps}
}

// HandlePostEvent handles POST /api/events. A new event answers 201, a
// retransmission of a stored one answers 200 with the original record.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"

	var in model.EventInput
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	e, created, err := h.deps.Ingest(r.Context(), sourceHTTP, in)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, e)
}

// HandleListEvents handles GET /api/events?worker_id=&workstation_id=&skip=&limit=.
func (h *EventsHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_events"

	q := r.URL.Query()
	f := model.EventFilter{
		WorkerID:      q.Get("worker_id"),
		WorkstationID: q.Get("workstation_id"),
	}
	var err error
	if v := q.Get("skip"); v != "" {
		if f.Skip, err = strconv.Atoi(v); err != nil || f.Skip < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
	}

	events, err := h.deps.Events(r.Context(), f)
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
