// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/highleverage/momentum/internal/domain/model"
)

// ResultDependencies defines the interface for result lookups.
type ResultDependencies interface {
	Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error)
	ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error)
}

// ResultsHandler handles score lookups.
type ResultsHandler struct {
	deps ResultDependencies
}

// NewResultsHandler creates a new results handler.
func NewResultsHandler(deps ResultDependencies) *ResultsHandler {
	return &ResultsHandler{deps: deps}
}

// HandleGetResults handles GET /results/{moment_id} and
// GET /results/{moment_id}/{player_id} requests.
func (h *ResultsHandler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameters after /results/
	path := strings.TrimPrefix(r.URL.Path, "/results/")
	parts := strings.Split(path, "/")
	switch {
	case len(parts) == 1 && parts[0] != "":
		results, err := h.deps.ResultsForMoment(r.Context(), parts[0])
		if err != nil {
			h.writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		result, err := h.deps.Result(r.Context(), parts[0], parts[1])
		if err != nil {
			h.writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
	}
}

func (h *ResultsHandler) writeLookupError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}
