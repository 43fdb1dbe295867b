// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/highleverage/momentum/internal/domain/model"
)

// WeightDependencies defines the interface for weight set queries.
type WeightDependencies interface {
	WeightSet(ctx context.Context, version string) (model.WeightSet, error)
	WeightHistory(ctx context.Context) ([]model.WeightSet, error)
}

// WeightsHandler handles weight set queries.
type WeightsHandler struct {
	deps WeightDependencies
}

// NewWeightsHandler creates a new weights handler.
func NewWeightsHandler(deps WeightDependencies) *WeightsHandler {
	return &WeightsHandler{deps: deps}
}

// HandleGetLatest handles GET /weights requests. The response carries the
// weight set currently in force; ?history=true returns every published
// version, oldest first.
func (h *WeightsHandler) HandleGetLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if r.URL.Query().Get("history") == "true" {
		history, err := h.deps.WeightHistory(r.Context())
		if err != nil {
			h.writeLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
		return
	}
	ws, err := h.deps.WeightSet(r.Context(), "")
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// HandleGetVersion handles GET /weights/{version} requests.
func (h *WeightsHandler) HandleGetVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Extract path parameter after /weights/
	version := strings.TrimPrefix(r.URL.Path, "/weights/")
	if version == "" || strings.Contains(version, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	ws, err := h.deps.WeightSet(r.Context(), version)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WeightsHandler) writeLookupError(w http.ResponseWriter, err error) {
	if isNotFound(err) {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err)
}
