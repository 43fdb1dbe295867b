package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/highleverage/momentum/internal/adapters/ledger"
	"github.com/highleverage/momentum/internal/domain/evaluate"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/predict"
	"github.com/highleverage/momentum/pkg/logger"
	"github.com/highleverage/momentum/pkg/metrics"
)

// Predict issues a trajectory prediction for one scored result under the
// given model version; an empty version means the latest. The record is
// appended to the ledger in the pending state. Before the first refit no
// model exists and every call returns an UntrainedModelError.
func (s *Service) Predict(ctx context.Context, res model.MSSResult, modelVersion string) (model.PredictionRecord, error) {
	if err := s.ensureStarted(); err != nil {
		return model.PredictionRecord{}, err
	}

	m, err := s.registry.Model(modelVersion)
	if err != nil {
		return model.PredictionRecord{}, err
	}

	rec := model.PredictionRecord{
		MomentID:      res.MomentID,
		PlayerID:      res.PlayerID,
		ModelVersion:  m.Version,
		WeightVersion: res.WeightVersion,
		Score:         res.Score,
		Baseline:      res.Baseline,
		Predicted:     m.Predict(predict.FromResult(res), res.Baseline),
		Status:        model.PredictionPending,
	}
	if err := s.ledger.AppendPrediction(ctx, rec); err != nil {
		return model.PredictionRecord{}, fmt.Errorf("record prediction for %s/%s: %w",
			rec.MomentID, rec.PlayerID, err)
	}
	metrics.RecordPredictionMade()
	return rec, nil
}

// Evaluate settles the given prediction records against observed outcomes,
// stores the calibration report and returns it. Records the ledger never
// issued, or already settled, still contribute to the report; missing
// outcomes count as skipped. Degenerate batches come back flagged, never as
// errors.
func (s *Service) Evaluate(ctx context.Context, records []model.PredictionRecord, outcomes map[evaluate.Key][]float64) (model.CalibrationReport, error) {
	if err := s.ensureStarted(); err != nil {
		return model.CalibrationReport{}, err
	}

	settled := 0
	for _, rec := range records {
		if rec.Settled() {
			continue
		}
		obs := outcomes[evaluate.Key{MomentID: rec.MomentID, PlayerID: rec.PlayerID}]
		if len(obs) == 0 {
			continue
		}
		err := s.ledger.SettlePrediction(ctx, rec.MomentID, rec.PlayerID, obs, evaluate.SettleMetrics(rec, obs))
		switch {
		case err == nil:
			settled++
			metrics.RecordPredictionSettled()
		case errors.Is(err, ledger.ErrNotFound), errors.Is(err, ledger.ErrAlreadySettled):
			// Nothing to persist; the record still counts toward the report.
		default:
			return model.CalibrationReport{}, fmt.Errorf("settle prediction %s/%s: %w",
				rec.MomentID, rec.PlayerID, err)
		}
	}

	report := evaluate.Evaluate(records, outcomes)
	if err := s.ledger.PutReport(ctx, report); err != nil {
		return model.CalibrationReport{}, fmt.Errorf("store calibration report: %w", err)
	}
	metrics.RecordCalibrationRun()

	s.logger.Info(ctx, "calibration run complete",
		logger.String("runID", report.RunID),
		logger.Int("batch", report.Batch),
		logger.Int("evaluated", report.Evaluated),
		logger.Int("skipped", report.Skipped),
		logger.Int("settled", settled),
	)
	return report, nil
}

// EvaluatePending settles every pending prediction whose outcome the injected
// source can already supply, then reports calibration over the batch.
// Predictions the source cannot observe yet stay pending.
func (s *Service) EvaluatePending(ctx context.Context) (model.CalibrationReport, error) {
	if err := s.ensureStarted(); err != nil {
		return model.CalibrationReport{}, err
	}
	if s.outcomes == nil {
		return model.CalibrationReport{}, ErrNoOutcomeSource
	}

	records, err := s.ledger.PendingPredictions(ctx)
	if err != nil {
		return model.CalibrationReport{}, fmt.Errorf("load pending predictions: %w", err)
	}

	outcomes := make(map[evaluate.Key][]float64, len(records))
	for _, rec := range records {
		obs, err := s.outcomes.ObservedTrajectory(ctx, rec.MomentID, rec.PlayerID, len(rec.Predicted))
		if err != nil {
			metrics.RecordErrorByComponent("calibrate", "outcome_source_error")
			s.logger.Warn(ctx, "outcome fetch failed, prediction stays pending",
				logger.String("momentID", rec.MomentID),
				logger.String("playerID", rec.PlayerID),
				logger.Error(err),
			)
			continue
		}
		if len(obs) > 0 {
			outcomes[evaluate.Key{MomentID: rec.MomentID, PlayerID: rec.PlayerID}] = obs
		}
	}

	return s.Evaluate(ctx, records, outcomes)
}

// Refit fits a successor weight set and a new trajectory model version from
// the given records and outcomes. Each record is paired with its stored
// result; records without observed outcomes, or whose result the ledger does
// not hold, are dropped from the training batch. Degenerate batches return
// ErrDegenerateBatch and leave every published version in force.
func (s *Service) Refit(ctx context.Context, records []model.PredictionRecord, outcomes map[evaluate.Key][]float64) (evaluate.RefitOutcome, error) {
	if err := s.ensureStarted(); err != nil {
		return evaluate.RefitOutcome{}, err
	}

	rows := make([]evaluate.TrainingRow, 0, len(records))
	for _, rec := range records {
		obs := rec.Observed
		if len(obs) == 0 {
			obs = outcomes[evaluate.Key{MomentID: rec.MomentID, PlayerID: rec.PlayerID}]
		}
		if len(obs) == 0 {
			continue
		}
		res, err := s.ledger.Result(ctx, rec.MomentID, rec.PlayerID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return evaluate.RefitOutcome{}, fmt.Errorf("load result for %s/%s: %w",
				rec.MomentID, rec.PlayerID, err)
		}
		rec.Observed = obs
		rows = append(rows, evaluate.TrainingRow{Result: res, Record: rec})
	}

	return s.refit(ctx, rows)
}

// RefitSettled recalibrates over every settled prediction in the ledger.
// When an outcome source is available, pending predictions are settled first
// so the freshest outcomes join the batch.
func (s *Service) RefitSettled(ctx context.Context) (evaluate.RefitOutcome, error) {
	if err := s.ensureStarted(); err != nil {
		return evaluate.RefitOutcome{}, err
	}

	if s.outcomes != nil {
		if _, err := s.EvaluatePending(ctx); err != nil {
			return evaluate.RefitOutcome{}, fmt.Errorf("settle pending predictions: %w", err)
		}
	}

	records, err := s.ledger.SettledPredictions(ctx)
	if err != nil {
		return evaluate.RefitOutcome{}, fmt.Errorf("load settled predictions: %w", err)
	}

	rows := make([]evaluate.TrainingRow, 0, len(records))
	for _, rec := range records {
		res, err := s.ledger.Result(ctx, rec.MomentID, rec.PlayerID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				continue
			}
			return evaluate.RefitOutcome{}, fmt.Errorf("load result for %s/%s: %w",
				rec.MomentID, rec.PlayerID, err)
		}
		rows = append(rows, evaluate.TrainingRow{Result: res, Record: rec})
	}

	return s.refit(ctx, rows)
}

// refit runs the calibrator over training rows and publishes what it minted:
// the weight set becomes the new current version, the report the latest.
func (s *Service) refit(ctx context.Context, rows []evaluate.TrainingRow) (evaluate.RefitOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := evaluate.Refit(rows, s.weights, s.registry)
	if err != nil {
		return evaluate.RefitOutcome{}, err
	}

	if err := s.ledger.PutWeightSet(ctx, out.Weights); err != nil {
		return evaluate.RefitOutcome{}, fmt.Errorf("store weight set: %w", err)
	}
	if err := s.ledger.PutReport(ctx, out.Report); err != nil {
		return evaluate.RefitOutcome{}, fmt.Errorf("store calibration report: %w", err)
	}
	s.weights = out.Weights
	metrics.RecordWeightRefit()

	s.logger.Info(ctx, "weights refitted",
		logger.String("weightVersion", out.Weights.Version),
		logger.String("modelVersion", out.ModelVersion),
		logger.Float64("w1", out.Weights.W1),
		logger.Float64("w2", out.Weights.W2),
		logger.Int("trainingRows", len(rows)),
	)
	return out, nil
}
