// Package ledger defines the scored-moment store interface and errors.
package ledger

import (
	"context"
	"math"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/types"
)

// Ledger provides read/write access to scored results, prediction records,
// weight versions and calibration reports.
type Ledger interface {
	// AppendResult stores a scored result. Appending the same
	// (moment, player) pair twice returns ErrDuplicate.
	AppendResult(ctx context.Context, res model.MSSResult) error

	// Result returns the stored result for a moment and player.
	// Returns ErrNotFound when the pair is unknown.
	Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error)

	// ResultsForMoment returns every per-player result for a moment,
	// ordered by player ID. Returns ErrNotFound for an unknown moment.
	ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error)

	// TopShifts returns the n largest shifts ordered by score magnitude desc.
	TopShifts(ctx context.Context, n int) ([]types.RankedShift, error)

	// AppendPrediction stores a freshly issued prediction record.
	AppendPrediction(ctx context.Context, rec model.PredictionRecord) error

	// Prediction returns the stored prediction for a moment and player.
	Prediction(ctx context.Context, momentID, playerID string) (model.PredictionRecord, error)

	// PendingPredictions returns unsettled records ordered by moment then player.
	PendingPredictions(ctx context.Context) ([]model.PredictionRecord, error)

	// SettledPredictions returns evaluated records ordered by moment then
	// player. These are the training rows a refit draws on.
	SettledPredictions(ctx context.Context) ([]model.PredictionRecord, error)

	// SettlePrediction attaches observed values and deviation metrics to a
	// pending record. A record settles exactly once; settling again returns
	// ErrAlreadySettled.
	SettlePrediction(ctx context.Context, momentID, playerID string, observed []float64, eval model.EvalMetrics) error

	// PutWeightSet stores an immutable weight version.
	PutWeightSet(ctx context.Context, ws model.WeightSet) error

	// WeightSet returns the weight set stored under version.
	WeightSet(ctx context.Context, version string) (model.WeightSet, error)

	// LatestWeightSet returns the most recently stored weight set.
	// Returns ErrNoWeights when none has been stored.
	LatestWeightSet(ctx context.Context) (model.WeightSet, error)

	// WeightHistory returns every stored weight set, oldest first.
	WeightHistory(ctx context.Context) ([]model.WeightSet, error)

	// PutReport stores a calibration report.
	PutReport(ctx context.Context, rep model.CalibrationReport) error

	// LatestReport returns the most recently stored calibration report.
	// Returns ErrNoReport when none has been stored.
	LatestReport(ctx context.Context) (model.CalibrationReport, error)

	// ResultCount returns the number of stored results.
	ResultCount(ctx context.Context) int

	// PredictionCount returns the number of stored prediction records.
	PredictionCount(ctx context.Context) int

	// Close releases resources held by the ledger.
	Close() error
}

// assignRanks assigns dense ranks over shifts already ordered by score
// magnitude. Shifts with equal magnitude share a rank.
func assignRanks(shifts []types.RankedShift) {
	if len(shifts) == 0 {
		return
	}
	rank := 1
	shifts[0].Rank = rank
	for i := 1; i < len(shifts); i++ {
		if math.Abs(shifts[i].Score) != math.Abs(shifts[i-1].Score) {
			rank++
		}
		shifts[i].Rank = rank
	}
}
