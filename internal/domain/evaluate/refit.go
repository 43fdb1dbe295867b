package evaluate

import (
	"fmt"
	"math"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/predict"
	"github.com/highleverage/momentum/internal/domain/scoring"
)

// Composite scores live on a [-100, 100] scale; refit targets are scaled so
// the largest realized delta in the batch maps to the bound.
const refitTargetScale = 100.0

// TrainingRow pairs a scored result with its settled prediction record.
// Record.Observed must be populated.
type TrainingRow struct {
	Result model.MSSResult
	Record model.PredictionRecord
}

// RefitOutcome bundles what a refit produced. Prior weight sets, model
// versions and ledger rows are left untouched; recomputing older moments
// under the new versions is the caller's choice.
type RefitOutcome struct {
	Weights      model.WeightSet
	ModelVersion string
	Report       model.CalibrationReport
}

// Refit fits a successor weight set by least squares of the scaled realized
// delta on the score components, trains a new trajectory model version on the
// same rows, and reports calibration for the batch. Degenerate input returns
// ErrDegenerateBatch and leaves every published version in force.
func Refit(rows []TrainingRow, cur model.WeightSet, reg *predict.Registry) (RefitOutcome, error) {
	if len(rows) == 0 {
		return RefitOutcome{}, fmt.Errorf("refit: %w: no training rows", ErrDegenerateBatch)
	}

	records := make([]model.PredictionRecord, 0, len(rows))
	outcomes := make(map[Key][]float64, len(rows))
	for _, row := range rows {
		records = append(records, row.Record)
		outcomes[Key{MomentID: row.Record.MomentID, PlayerID: row.Record.PlayerID}] = row.Record.Observed
	}
	report := Evaluate(records, outcomes)

	w1, w2, err := fitWeights(rows)
	if err != nil {
		return RefitOutcome{}, err
	}

	samples := make([]predict.Sample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, predict.Sample{
			Features: predict.FromResult(row.Result),
			Observed: row.Record.Observed,
		})
	}
	m, err := reg.Fit(samples)
	if err != nil {
		return RefitOutcome{}, fmt.Errorf("refit trajectory model: %w", err)
	}

	return RefitOutcome{
		Weights: model.WeightSet{
			Version:   scoring.NextVersion(cur.Version),
			W1:        w1,
			W2:        w2,
			Origin:    model.WeightsRefit,
			CreatedAt: time.Now().UTC(),
		},
		ModelVersion: m.Version,
		Report:       report,
	}, nil
}

// fitWeights solves the 2x2 normal equations of scaled realized delta on
// (impact, narrative x multiplier). Negative solutions clamp to zero; a batch
// whose deltas vanish, or whose system is singular, is degenerate.
func fitWeights(rows []TrainingRow) (float64, float64, error) {
	var maxAbs float64
	deltas := make([]float64, len(rows))
	for i, row := range rows {
		d := mean(row.Record.Observed) - row.Record.Baseline
		deltas[i] = d
		if a := math.Abs(d); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return 0, 0, fmt.Errorf("refit weights: %w: realized deltas all zero", ErrDegenerateBatch)
	}
	scale := refitTargetScale / maxAbs

	var s11, s12, s22, b1, b2 float64
	for i, row := range rows {
		x1 := row.Result.Breakdown.Impact
		x2 := row.Result.Breakdown.Narrative * row.Result.Breakdown.Multiplier
		y := deltas[i] * scale
		s11 += x1 * x1
		s12 += x1 * x2
		s22 += x2 * x2
		b1 += x1 * y
		b2 += x2 * y
	}
	det := s11*s22 - s12*s12
	if math.Abs(det) < 1e-12 {
		// Fall back to the single informative component when one column is
		// flat, as with an all no-sentiment batch.
		switch {
		case s11 > 0 && s22 == 0:
			w1 := b1 / s11
			if w1 < 0 {
				w1 = 0
			}
			if w1 == 0 {
				return 0, 0, fmt.Errorf("refit weights: %w: no signal in components", ErrDegenerateBatch)
			}
			return w1, 0, nil
		case s22 > 0 && s11 == 0:
			w2 := b2 / s22
			if w2 < 0 {
				w2 = 0
			}
			if w2 == 0 {
				return 0, 0, fmt.Errorf("refit weights: %w: no signal in components", ErrDegenerateBatch)
			}
			return 0, w2, nil
		default:
			return 0, 0, fmt.Errorf("refit weights: %w: singular component matrix", ErrDegenerateBatch)
		}
	}

	w1 := (b1*s22 - b2*s12) / det
	w2 := (b2*s11 - b1*s12) / det
	if w1 < 0 {
		w1 = 0
	}
	if w2 < 0 {
		w2 = 0
	}
	if w1 == 0 && w2 == 0 {
		return 0, 0, fmt.Errorf("refit weights: %w: fitted weights vanished", ErrDegenerateBatch)
	}
	return w1, w2, nil
}
