package model

// PredictionStatus tracks the single allowed transition of a record.
type PredictionStatus string

const (
	PredictionPending   PredictionStatus = "predicted"
	PredictionEvaluated PredictionStatus = "evaluated"
)

// TrajectoryPoint is one period of a predicted post-moment trajectory.
// Period counts appearances after the moment, starting at zero.
type TrajectoryPoint struct {
	Period   int     `json:"period"`
	Expected float64 `json:"expected"`
	Lower    float64 `json:"lower"`
	Upper    float64 `json:"upper"`
}

// EvalMetrics are the per-record deviation metrics appended when a prediction
// is settled against observed outcomes.
type EvalMetrics struct {
	MeanAbsDev    float64 `json:"mean_abs_dev"`
	Bias          float64 `json:"bias"`           // mean signed error, predicted minus observed
	RealizedDelta float64 `json:"realized_delta"` // mean observed minus baseline
}

// PredictionRecord pairs a predicted trajectory with the observations that
// later settle it. A record moves predicted -> evaluated exactly once; the
// ledger enforces the transition.
type PredictionRecord struct {
	MomentID      string            `json:"moment_id"`
	PlayerID      string            `json:"player_id"`
	ModelVersion  string            `json:"model_version"`
	WeightVersion string            `json:"weight_version"`
	Score         float64           `json:"score"`    // composite the prediction was issued for
	Baseline      float64           `json:"baseline"` // trailing baseline at prediction time
	Predicted     []TrajectoryPoint `json:"predicted"`
	Observed      []float64         `json:"observed,omitempty"`
	Eval          *EvalMetrics      `json:"eval,omitempty"`
	Status        PredictionStatus  `json:"status"`
}

// Settled reports whether the record has been evaluated.
func (p PredictionRecord) Settled() bool {
	return p.Status == PredictionEvaluated
}
