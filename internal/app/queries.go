package service

import (
	"context"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/types"
)

// Result returns the stored score for one moment and player.
func (s *Service) Result(ctx context.Context, momentID, playerID string) (model.MSSResult, error) {
	if err := s.ensureStarted(); err != nil {
		return model.MSSResult{}, err
	}
	return s.ledger.Result(ctx, momentID, playerID)
}

// ResultsForMoment returns every per-player score for a moment, ordered by
// player id.
func (s *Service) ResultsForMoment(ctx context.Context, momentID string) ([]model.MSSResult, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.ledger.ResultsForMoment(ctx, momentID)
}

// TopShifts returns the n largest scored shifts by composite magnitude.
func (s *Service) TopShifts(ctx context.Context, n int) ([]types.RankedShift, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.ledger.TopShifts(ctx, n)
}

// Prediction returns the stored prediction record for one moment and player.
func (s *Service) Prediction(ctx context.Context, momentID, playerID string) (model.PredictionRecord, error) {
	if err := s.ensureStarted(); err != nil {
		return model.PredictionRecord{}, err
	}
	return s.ledger.Prediction(ctx, momentID, playerID)
}

// WeightSet returns the weight set stored under version, or the one currently
// in force for an empty version.
func (s *Service) WeightSet(ctx context.Context, version string) (model.WeightSet, error) {
	if err := s.ensureStarted(); err != nil {
		return model.WeightSet{}, err
	}
	if version == "" {
		return s.ledger.LatestWeightSet(ctx)
	}
	return s.ledger.WeightSet(ctx, version)
}

// WeightHistory returns every published weight set, oldest first.
func (s *Service) WeightHistory(ctx context.Context) ([]model.WeightSet, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}
	return s.ledger.WeightHistory(ctx)
}

// LatestReport returns the most recent calibration report.
func (s *Service) LatestReport(ctx context.Context) (model.CalibrationReport, error) {
	if err := s.ensureStarted(); err != nil {
		return model.CalibrationReport{}, err
	}
	return s.ledger.LatestReport(ctx)
}
