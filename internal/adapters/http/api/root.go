package api

import "net/http"

// Version is reported by the service banner.
const Version = "1.0.0"

type banner struct {
	Message string `json:"message"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

// RootHandler answers the service banner.
type RootHandler struct{}

// NewRootHandler creates a new root handler.
func NewRootHandler() *RootHandler {
	return &RootHandler{}
}

// HandleRoot handles GET / requests.
func (h *RootHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, banner{
		Message: "shiftmetrics worker productivity API",
		Status:  "running",
		Version: Version,
	})
}
