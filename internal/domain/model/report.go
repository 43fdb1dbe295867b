package model

import "time"

// Degenerate-batch flags set on a CalibrationReport.
const (
	FlagEmptyBatch        = "empty-batch"
	FlagZeroScoreVariance = "zero-score-variance"
	FlagZeroDeltaVariance = "zero-delta-variance"
)

// RecordEval is one per-record row of a calibration report.
type RecordEval struct {
	MomentID      string  `json:"moment_id"`
	PlayerID      string  `json:"player_id"`
	Score         float64 `json:"score"`
	RealizedDelta float64 `json:"realized_delta"`
	MeanAbsDev    float64 `json:"mean_abs_dev"`
}

// CalibrationReport summarizes how predicted trajectories held up against
// observed outcomes. Degenerate batches are flagged, never failed.
type CalibrationReport struct {
	RunID              string       `json:"run_id"`
	GeneratedAt        time.Time    `json:"generated_at"`
	Batch              int          `json:"batch"`     // records submitted
	Evaluated          int          `json:"evaluated"` // records with observed outcomes
	Skipped            int          `json:"skipped"`   // records missing outcomes
	MeanAbsDev         float64      `json:"mean_abs_dev"`
	Correlation        float64      `json:"correlation"` // score vs realized delta
	CorrelationDefined bool         `json:"correlation_defined"`
	Flags              []string     `json:"flags,omitempty"`
	Records            []RecordEval `json:"records,omitempty"` // sorted by moment then player
}
