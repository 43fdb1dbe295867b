// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/highleverage/momentum/internal/domain/evaluate"
	"github.com/highleverage/momentum/internal/domain/model"
)

// RefitDependencies defines the interface for triggering a recalibration.
type RefitDependencies interface {
	RefitSettled(ctx context.Context) (evaluate.RefitOutcome, error)
}

// RefitHandler handles recalibration requests.
type RefitHandler struct {
	deps RefitDependencies
}

// NewRefitHandler creates a new refit handler.
func NewRefitHandler(deps RefitDependencies) *RefitHandler {
	return &RefitHandler{deps: deps}
}

// refitResponse is the wire shape of a successful recalibration.
type refitResponse struct {
	Weights      model.WeightSet         `json:"weights"`
	ModelVersion string                  `json:"model_version"`
	Report       model.CalibrationReport `json:"report"`
}

// HandlePostRefit handles POST /refit requests. A degenerate training batch
// is a client-visible condition, not a server fault: published versions stay
// in force and the caller gets a 422.
func (h *RefitHandler) HandlePostRefit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	out, err := h.deps.RefitSettled(r.Context())
	if err != nil {
		if errors.Is(err, evaluate.ErrDegenerateBatch) {
			writeError(w, http.StatusUnprocessableEntity, "degenerate_batch", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, refitResponse{
		Weights:      out.Weights,
		ModelVersion: out.ModelVersion,
		Report:       out.Report,
	})
}
