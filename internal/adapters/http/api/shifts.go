// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/highleverage/momentum/internal/adapters/ledger"
)

// ShiftDependencies defines the interface for ranking queries.
type ShiftDependencies interface {
	TopShifts(ctx context.Context, n int) ([]RankedShift, error)
}

// ShiftsHandler handles top-shift ranking requests.
type ShiftsHandler struct {
	deps     ShiftDependencies
	maxLimit int
}

// NewShiftsHandler creates a new shifts handler.
func NewShiftsHandler(deps ShiftDependencies, maxLimit int) *ShiftsHandler {
	return &ShiftsHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetShifts handles GET /shifts?limit=N requests.
func (h *ShiftsHandler) HandleGetShifts(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_shifts"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	limitStr := r.URL.Query().Get("limit")
	n, err := strconv.Atoi(limitStr)
	if err != nil || n < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%s: %w", op, ErrBadRequest))
		return
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", fmt.Errorf("%s: %w", op, ErrBadRequest))
		return
	}
	rows, err := h.deps.TopShifts(r.Context(), n)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidLimit) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
