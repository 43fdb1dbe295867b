// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/highleverage/momentum/internal/domain/dedupe"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/moment"
)

// MomentDependencies defines the interface for moment ingestion dependencies.
type MomentDependencies interface {
	dedupe.Deduper
	Enqueue(ctx context.Context, req model.ScoreRequest) bool
}

// MomentsHandler handles moment submissions.
type MomentsHandler struct {
	deps MomentDependencies
}

// NewMomentsHandler creates a new moments handler.
func NewMomentsHandler(deps MomentDependencies) *MomentsHandler {
	return &MomentsHandler{deps: deps}
}

// HandlePostMoment handles POST /moments requests.
func (h *MomentsHandler) HandlePostMoment(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_moment"
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req momentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, err))
		return
	}

	// Reject malformed events before they claim a dedupe slot. The worker
	// rebuilds the moment when scoring; building is pure and cheap.
	task := req.toModel()
	if _, err := moment.Build(task.Raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_moment", err)
		return
	}

	// Idempotency check - mark as seen first
	if h.deps.SeenAndRecord(r.Context(), task.Raw.EventID) {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
		return
	}

	// Try to enqueue for async scoring
	if ok := h.deps.Enqueue(r.Context(), task); !ok {
		// Rollback the "seen" status since enqueue failed
		h.deps.Unrecord(r.Context(), task.Raw.EventID)
		writeError(w, http.StatusTooManyRequests, "backpressure", fmt.Errorf("%s: %w", op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", Duplicate: false})
}
