package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

// floatEqual compares two float64 values with a small tolerance for floating-point precision
func floatEqual(a, b float64) bool {
	const tolerance = 1e-10
	return math.Abs(a-b) < tolerance
}

func result(momentID, playerID string, score float64) model.MSSResult {
	return model.MSSResult{
		MomentID:      momentID,
		PlayerID:      playerID,
		Role:          model.RoleBatter,
		WeightVersion: "v0",
		Score:         score,
		Baseline:      0.25,
		Breakdown: model.Breakdown{
			Impact: score / 60.0,
			W1:     60,
			W2:     40,
			Raw:    score,
		},
	}
}

func prediction(momentID, playerID string, score float64) model.PredictionRecord {
	return model.PredictionRecord{
		MomentID:      momentID,
		PlayerID:      playerID,
		ModelVersion:  "m1",
		WeightVersion: "v0",
		Score:         score,
		Baseline:      0.25,
		Predicted: []model.TrajectoryPoint{
			{Period: 0, Expected: 0.31, Lower: 0.21, Upper: 0.41},
			{Period: 1, Expected: 0.28, Lower: 0.18, Upper: 0.38},
		},
		Status: model.PredictionPending,
	}
}

func TestMemoryLedger_BasicOperations(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	// Empty ledger
	if count := l.ResultCount(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}

	// Append first result
	if err := l.AppendResult(ctx, result("m-1", "bat-1", 41.1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count := l.ResultCount(ctx); count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}

	// Read it back
	res, err := l.Result(ctx, "m-1", "bat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floatEqual(res.Score, 41.1) {
		t.Errorf("expected score 41.1, got %f", res.Score)
	}
	if res.WeightVersion != "v0" {
		t.Errorf("expected weight version v0, got %s", res.WeightVersion)
	}

	// Top shifts sees it
	shifts, err := l.TopShifts(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 1 {
		t.Fatalf("expected 1 shift, got %d", len(shifts))
	}
	if shifts[0].MomentID != "m-1" || shifts[0].Rank != 1 {
		t.Errorf("unexpected top shift: %+v", shifts[0])
	}
}

func TestMemoryLedger_DuplicateResult(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	if err := l.AppendResult(ctx, result("m-1", "bat-1", 41.1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := l.AppendResult(ctx, result("m-1", "bat-1", 12.0))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	// First write wins
	res, err := l.Result(ctx, "m-1", "bat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floatEqual(res.Score, 41.1) {
		t.Errorf("expected original score 41.1, got %f", res.Score)
	}
}

func TestMemoryLedger_ResultNotFound(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	if _, err := l.Result(ctx, "m-x", "bat-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := l.ResultsForMoment(ctx, "m-x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryLedger_ResultsForMoment(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	// Append out of player order
	for _, playerID := range []string{"pit-9", "bat-1", "fld-4"} {
		if err := l.AppendResult(ctx, result("m-1", playerID, 10.0)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := l.AppendResult(ctx, result("m-2", "bat-1", 5.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := l.ResultsForMoment(ctx, "m-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	// Ordered by player ID
	expectedOrder := []string{"bat-1", "fld-4", "pit-9"}
	for i, playerID := range expectedOrder {
		if results[i].PlayerID != playerID {
			t.Errorf("position %d: expected %s, got %s", i, playerID, results[i].PlayerID)
		}
	}
}

func TestMemoryLedger_ShiftOrdering(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	// Negative scores rank by magnitude
	inputs := []struct {
		momentID string
		playerID string
		score    float64
	}{
		{"m-1", "bat-1", 41.1},
		{"m-2", "pit-2", -87.4},
		{"m-3", "bat-3", 12.6},
		{"m-4", "bat-4", 55.0},
		{"m-5", "pit-5", -3.2},
	}
	for _, in := range inputs {
		if err := l.AppendResult(ctx, result(in.momentID, in.playerID, in.score)); err != nil {
			t.Fatalf("unexpected error appending %s: %v", in.momentID, err)
		}
	}

	shifts, err := l.TopShifts(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 5 {
		t.Fatalf("expected 5 shifts, got %d", len(shifts))
	}

	// Verify descending magnitude
	for i := 0; i < len(shifts)-1; i++ {
		if math.Abs(shifts[i].Score) < math.Abs(shifts[i+1].Score) {
			t.Errorf("shifts not in descending magnitude: %f < %f", shifts[i].Score, shifts[i+1].Score)
		}
	}

	// Verify specific ordering and ranks
	expectedOrder := []string{"m-2", "m-4", "m-1", "m-3", "m-5"}
	for i, momentID := range expectedOrder {
		if shifts[i].MomentID != momentID {
			t.Errorf("position %d: expected %s, got %s", i, momentID, shifts[i].MomentID)
		}
		if shifts[i].Rank != i+1 {
			t.Errorf("position %d: expected rank %d, got %d", i, i+1, shifts[i].Rank)
		}
	}

	// The pitcher's negative swing keeps its sign in the ranking
	if !floatEqual(shifts[0].Score, -87.4) {
		t.Errorf("expected top score -87.4, got %f", shifts[0].Score)
	}
}

func TestMemoryLedger_ShiftTieBreaking(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	// Same magnitude, opposite signs, inserted out of key order
	if err := l.AppendResult(ctx, result("m-2", "pit-1", -50.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AppendResult(ctx, result("m-1", "bat-1", 50.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AppendResult(ctx, result("m-3", "bat-2", 20.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	shifts, err := l.TopShifts(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 3 {
		t.Fatalf("expected 3 shifts, got %d", len(shifts))
	}

	// Equal magnitudes order by moment ID and share a rank
	if shifts[0].MomentID != "m-1" || shifts[1].MomentID != "m-2" {
		t.Errorf("expected m-1 then m-2, got %s then %s", shifts[0].MomentID, shifts[1].MomentID)
	}
	if shifts[0].Rank != 1 || shifts[1].Rank != 1 {
		t.Errorf("expected shared rank 1, got %d and %d", shifts[0].Rank, shifts[1].Rank)
	}
	if shifts[2].Rank != 2 {
		t.Errorf("expected rank 2 after tie, got %d", shifts[2].Rank)
	}
}

func TestMemoryLedger_ShiftLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	for i := 0; i < 10; i++ {
		res := result(fmt.Sprintf("m-%02d", i), "bat-1", float64(10+i))
		if err := l.AppendResult(ctx, res); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	shifts, err := l.TopShifts(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 3 {
		t.Errorf("expected 3 shifts, got %d", len(shifts))
	}
	if !floatEqual(shifts[0].Score, 19.0) {
		t.Errorf("expected top score 19.0, got %f", shifts[0].Score)
	}

	// Invalid limits
	if _, err := l.TopShifts(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	if _, err := l.TopShifts(ctx, -5); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
}

func TestMemoryLedger_PredictionLifecycle(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	// Append and read back
	if err := l.AppendPrediction(ctx, prediction("m-1", "bat-1", 41.1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.AppendPrediction(ctx, prediction("m-1", "bat-1", 41.1)); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	rec, err := l.Prediction(ctx, "m-1", "bat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Settled() {
		t.Error("fresh prediction should not be settled")
	}
	if len(rec.Predicted) != 2 {
		t.Errorf("expected 2 trajectory points, got %d", len(rec.Predicted))
	}

	// Second pending record, out of key order
	if err := l.AppendPrediction(ctx, prediction("m-0", "pit-1", -20.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, err := l.PendingPredictions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending records, got %d", len(pending))
	}
	if pending[0].MomentID != "m-0" || pending[1].MomentID != "m-1" {
		t.Errorf("pending records not ordered: %s, %s", pending[0].MomentID, pending[1].MomentID)
	}

	// Settle one
	observed := []float64{0.30, 0.27}
	eval := model.EvalMetrics{MeanAbsDev: 0.01, Bias: 0.01, RealizedDelta: 0.035}
	if err := l.SettlePrediction(ctx, "m-1", "bat-1", observed, eval); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec, err = l.Prediction(ctx, "m-1", "bat-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Settled() {
		t.Error("settled prediction should report settled")
	}
	if len(rec.Observed) != 2 || !floatEqual(rec.Observed[1], 0.27) {
		t.Errorf("unexpected observed values: %v", rec.Observed)
	}
	if rec.Eval == nil || !floatEqual(rec.Eval.RealizedDelta, 0.035) {
		t.Errorf("unexpected eval metrics: %+v", rec.Eval)
	}

	// Settling twice fails, as does settling the unknown
	if err := l.SettlePrediction(ctx, "m-1", "bat-1", observed, eval); !errors.Is(err, ErrAlreadySettled) {
		t.Errorf("expected ErrAlreadySettled, got %v", err)
	}
	if err := l.SettlePrediction(ctx, "m-9", "bat-9", observed, eval); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Settled records leave the pending set
	pending, err = l.PendingPredictions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].MomentID != "m-0" {
		t.Errorf("expected only m-0 pending, got %+v", pending)
	}

	if count := l.PredictionCount(ctx); count != 2 {
		t.Errorf("expected prediction count 2, got %d", count)
	}
}

func TestMemoryLedger_SettledPredictions(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	settled, err := l.SettledPredictions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settled) != 0 {
		t.Errorf("expected no settled records, got %d", len(settled))
	}

	for _, rec := range []model.PredictionRecord{
		prediction("m-2", "bat-1", 31.0),
		prediction("m-0", "pit-1", -18.0),
		prediction("m-0", "bat-2", 12.5),
	} {
		if err := l.AppendPrediction(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	observed := []float64{0.31, 0.29}
	eval := model.EvalMetrics{MeanAbsDev: 0.02, Bias: -0.01, RealizedDelta: 0.04}
	if err := l.SettlePrediction(ctx, "m-2", "bat-1", observed, eval); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.SettlePrediction(ctx, "m-0", "pit-1", observed, eval); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	settled, err = l.SettledPredictions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(settled) != 2 {
		t.Fatalf("expected 2 settled records, got %d", len(settled))
	}
	if settled[0].MomentID != "m-0" || settled[0].PlayerID != "pit-1" {
		t.Errorf("unexpected first settled record: %s/%s", settled[0].MomentID, settled[0].PlayerID)
	}
	if settled[1].MomentID != "m-2" || settled[1].PlayerID != "bat-1" {
		t.Errorf("unexpected second settled record: %s/%s", settled[1].MomentID, settled[1].PlayerID)
	}
	for _, rec := range settled {
		if !rec.Settled() {
			t.Errorf("record %s/%s should report settled", rec.MomentID, rec.PlayerID)
		}
		if len(rec.Observed) != 2 {
			t.Errorf("record %s/%s missing observations: %v", rec.MomentID, rec.PlayerID, rec.Observed)
		}
		if rec.Eval == nil || !floatEqual(rec.Eval.MeanAbsDev, 0.02) {
			t.Errorf("record %s/%s missing eval metrics: %+v", rec.MomentID, rec.PlayerID, rec.Eval)
		}
	}

	// The pending record stays out of the settled set
	pending, err := l.PendingPredictions(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pending) != 1 || pending[0].PlayerID != "bat-2" {
		t.Errorf("expected only bat-2 pending, got %+v", pending)
	}
}

func TestMemoryLedger_Weights(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	if _, err := l.LatestWeightSet(ctx); !errors.Is(err, ErrNoWeights) {
		t.Errorf("expected ErrNoWeights, got %v", err)
	}

	seed := model.WeightSet{Version: "v0", W1: 60, W2: 40, Origin: model.WeightsSeed, CreatedAt: time.Now().UTC()}
	if err := l.PutWeightSet(ctx, seed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.PutWeightSet(ctx, seed); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	refit := model.WeightSet{Version: "v1", W1: 71.5, W2: 28.5, Origin: model.WeightsRefit, CreatedAt: time.Now().UTC()}
	if err := l.PutWeightSet(ctx, refit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, err := l.LatestWeightSet(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.Version != "v1" {
		t.Errorf("expected latest v1, got %s", latest.Version)
	}

	ws, err := l.WeightSet(ctx, "v0")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !floatEqual(ws.W1, 60) || ws.Origin != model.WeightsSeed {
		t.Errorf("unexpected weight set: %+v", ws)
	}

	if _, err := l.WeightSet(ctx, "v9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	history, err := l.WeightHistory(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 || history[0].Version != "v0" || history[1].Version != "v1" {
		t.Errorf("unexpected history: %+v", history)
	}
}

func TestMemoryLedger_Reports(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	if _, err := l.LatestReport(ctx); !errors.Is(err, ErrNoReport) {
		t.Errorf("expected ErrNoReport, got %v", err)
	}

	first := model.CalibrationReport{RunID: "run-1", GeneratedAt: time.Now().UTC(), Batch: 4, Evaluated: 4}
	second := model.CalibrationReport{RunID: "run-2", GeneratedAt: time.Now().UTC(), Batch: 6, Evaluated: 5, Skipped: 1}
	if err := l.PutReport(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := l.PutReport(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	latest, err := l.LatestReport(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest.RunID != "run-2" || latest.Skipped != 1 {
		t.Errorf("unexpected latest report: %+v", latest)
	}
}

func TestMemoryLedger_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx)
	defer l.Close()

	numGoroutines := 10
	numAppends := 100

	var wg sync.WaitGroup
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numAppends; j++ {
				momentID := fmt.Sprintf("m-%d-%d", id, j)
				score := float64(j%200) - 100.0
				if err := l.AppendResult(ctx, result(momentID, "bat-1", score)); err != nil {
					t.Errorf("unexpected error appending %s: %v", momentID, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if count := l.ResultCount(ctx); count != numGoroutines*numAppends {
		t.Errorf("expected count %d, got %d", numGoroutines*numAppends, count)
	}

	shifts, err := l.TopShifts(ctx, 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(shifts) != 50 {
		t.Errorf("expected 50 shifts, got %d", len(shifts))
	}
	for i := 0; i < len(shifts)-1; i++ {
		if math.Abs(shifts[i].Score) < math.Abs(shifts[i+1].Score) {
			t.Errorf("shifts not in descending magnitude at %d", i)
		}
	}
}

func TestMemoryLedger_Close(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger(ctx, WithMetricsUpdateInterval(10*time.Millisecond))

	if err := l.AppendResult(ctx, result("m-1", "bat-1", 30.0)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Let the metrics updater tick at least once
	time.Sleep(30 * time.Millisecond)

	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Close is idempotent
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error on second close: %v", err)
	}
}
