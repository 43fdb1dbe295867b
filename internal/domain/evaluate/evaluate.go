// Package evaluate checks the engine against reality: per-record deviation
// between predicted and observed trajectories, batch-level correlation
// between composite scores and realized performance changes, and recalibrated
// weight and model versions. Degenerate batches are flagged in the report,
// never thrown; only a refit refuses them.
package evaluate

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Key identifies one prediction's outcome stream.
type Key struct {
	MomentID string
	PlayerID string
}

// OutcomeSource supplies observed post-moment performance values, one per
// period, for a settled or settling prediction.
type OutcomeSource interface {
	ObservedTrajectory(ctx context.Context, momentID, playerID string, horizon int) ([]float64, error)
}

// Evaluate settles prediction records against observed outcomes and
// summarizes calibration. Records without outcomes are counted as skipped.
// The per-record rows come back sorted by moment id then player id.
func Evaluate(records []model.PredictionRecord, outcomes map[Key][]float64) model.CalibrationReport {
	report := model.CalibrationReport{
		RunID:       uuid.New().String(),
		GeneratedAt: time.Now().UTC(),
		Batch:       len(records),
	}
	if len(records) == 0 {
		report.Flags = append(report.Flags, model.FlagEmptyBatch)
		return report
	}

	var scores, deltas []float64
	var madSum float64
	for _, rec := range records {
		obs := outcomes[Key{MomentID: rec.MomentID, PlayerID: rec.PlayerID}]
		if len(obs) == 0 || len(rec.Predicted) == 0 {
			report.Skipped++
			continue
		}
		metrics := SettleMetrics(rec, obs)
		report.Evaluated++
		madSum += metrics.MeanAbsDev
		scores = append(scores, rec.Score)
		deltas = append(deltas, metrics.RealizedDelta)
		report.Records = append(report.Records, model.RecordEval{
			MomentID:      rec.MomentID,
			PlayerID:      rec.PlayerID,
			Score:         rec.Score,
			RealizedDelta: metrics.RealizedDelta,
			MeanAbsDev:    metrics.MeanAbsDev,
		})
	}

	sort.Slice(report.Records, func(i, j int) bool {
		a, b := report.Records[i], report.Records[j]
		if a.MomentID != b.MomentID {
			return a.MomentID < b.MomentID
		}
		return a.PlayerID < b.PlayerID
	})

	if report.Evaluated > 0 {
		report.MeanAbsDev = madSum / float64(report.Evaluated)
	}

	corr, defined := pearson(scores, deltas)
	report.Correlation = corr
	report.CorrelationDefined = defined
	if !defined && report.Evaluated >= 2 {
		if variance(scores) == 0 {
			report.Flags = append(report.Flags, model.FlagZeroScoreVariance)
		}
		if variance(deltas) == 0 {
			report.Flags = append(report.Flags, model.FlagZeroDeltaVariance)
		}
	}
	return report
}

// SettleMetrics computes the deviation metrics for one record against its
// observed trajectory.
func SettleMetrics(rec model.PredictionRecord, obs []float64) model.EvalMetrics {
	n := len(rec.Predicted)
	if len(obs) < n {
		n = len(obs)
	}
	var absSum, biasSum float64
	for t := 0; t < n; t++ {
		diff := rec.Predicted[t].Expected - obs[t]
		absSum += math.Abs(diff)
		biasSum += diff
	}
	m := model.EvalMetrics{RealizedDelta: mean(obs) - rec.Baseline}
	if n > 0 {
		m.MeanAbsDev = absSum / float64(n)
		m.Bias = biasSum / float64(n)
	}
	return m
}

// pearson returns the correlation of the paired series, and whether it is
// defined: at least two pairs, with variance on both sides.
func pearson(xs, ys []float64) (float64, bool) {
	if len(xs) < 2 || len(xs) != len(ys) {
		return 0, false
	}
	mx, my := mean(xs), mean(ys)
	var cov, vx, vy float64
	for i := range xs {
		dx := xs[i] - mx
		dy := ys[i] - my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	return cov / math.Sqrt(vx*vy), true
}

func variance(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var sum float64
	for _, v := range vals {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(vals))
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
