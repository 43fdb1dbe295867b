package service

import (
	"context"
	"fmt"

	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/moment"
	"github.com/highleverage/momentum/internal/domain/scoring"
)

// pipeline adapts the service's scoring stages to the worker pool contract.
type pipeline struct {
	svc *Service
}

func (p *pipeline) Score(ctx context.Context, t model.ScoreRequest) ([]model.MSSResult, error) {
	return p.svc.runPipeline(ctx, t)
}

// BuildMoment validates a raw event into a canonical moment without scoring
// it. Rejections come back as a *moment.MalformedError listing every
// offending field.
func (s *Service) BuildMoment(ctx context.Context, raw model.RawEvent) (model.Moment, error) {
	return moment.Build(raw)
}

// Score runs the full pipeline for one request synchronously and records the
// per-player results. The asynchronous path through Submit produces the same
// rows; Score is for callers that need them immediately.
func (s *Service) Score(ctx context.Context, req model.ScoreRequest) ([]model.MSSResult, error) {
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}

	results, err := s.runPipeline(ctx, req)
	if err != nil {
		return nil, err
	}
	for i := range results {
		if err := s.ledger.AppendResult(ctx, results[i]); err != nil {
			return nil, fmt.Errorf("record result for %s/%s: %w",
				results[i].MomentID, results[i].PlayerID, err)
		}
	}
	return results, nil
}

// runPipeline executes the scoring stages for one task: build, enrich,
// per-player impact, sentiment aggregation and composition under the weight
// set in force. Every row is computed before anything is returned, so a
// failed moment never yields partial results.
func (s *Service) runPipeline(ctx context.Context, t model.ScoreRequest) ([]model.MSSResult, error) {
	m, err := moment.Build(t.Raw)
	if err != nil {
		return nil, fmt.Errorf("build moment: %w", err)
	}

	contexts, err := s.enricher.Enrich(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("enrich moment %s: %w", m.ID, err)
	}

	ws := s.currentWeights()
	results := make([]model.MSSResult, 0, len(contexts))
	for _, pc := range contexts {
		sig := s.aggregator.Aggregate(observationsFor(t.Observations, m.ID, pc.PlayerID))
		impact := scoring.Impact(m.SignedDeltaWP(pc.Team), m.Phase, s.phase)
		results = append(results, s.composer.Compose(scoring.ComposeInput{
			MomentID:  m.ID,
			PlayerID:  pc.PlayerID,
			Impact:    impact,
			Sentiment: sig,
			Context:   pc,
		}, ws))
	}
	return results, nil
}

// observationsFor filters a request's observations down to one player.
// Observations without a player id are moment-wide and count for everyone;
// an observation tagged for a different moment never counts.
func observationsFor(obs []model.SentimentObservation, momentID, playerID string) []model.SentimentObservation {
	out := make([]model.SentimentObservation, 0, len(obs))
	for _, o := range obs {
		if o.MomentID != "" && o.MomentID != momentID {
			continue
		}
		if o.PlayerID != "" && o.PlayerID != playerID {
			continue
		}
		out = append(out, o)
	}
	return out
}
