// Package enrich attaches player context to moments: career stage, trailing
// performance baseline, recent form and which side of the win-probability
// swing each participant stood on. History comes from an injected source; the
// engine never computes raw statistics itself.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Default enrichment configuration constants. The trailing window and
// minimum history have no defaults here: both are explicit constructor
// parameters validated by the configuration layer.
const (
	defaultFormWindow        = 5
	defaultRookieMaxSeasons  = 1.0
	defaultVeteranMinSeasons = 10.0
)

// GapPolicy decides what happens when a trailing window cannot be filled.
type GapPolicy string

const (
	// GapFail rejects the player with an InsufficientHistoryError.
	GapFail GapPolicy = "fail"
	// GapFlag proceeds with a low-confidence context instead of failing.
	GapFlag GapPolicy = "flag"
)

// HistorySource supplies trailing performance and service time for players.
// Implementations own the role-specific production metric; higher values
// always mean better play. Logs come back most recent first, all appearances
// strictly before the given time.
type HistorySource interface {
	PerformanceLog(ctx context.Context, playerID string, before time.Time, limit int) ([]model.Appearance, error)
	CareerSpan(ctx context.Context, playerID string) (model.CareerSpan, error)
}

// Option applies a configuration option to the Enricher.
type Option func(*Enricher)

// WithFormWindow sets how many recent appearances make up the form average.
func WithFormWindow(n int) Option {
	return func(e *Enricher) {
		if n > 0 {
			e.formWindow = n
		}
	}
}

// WithStageThresholds sets the season counts that bound the rookie and
// veteran buckets.
func WithStageThresholds(rookieMax, veteranMin float64) Option {
	return func(e *Enricher) {
		if rookieMax > 0 && veteranMin > rookieMax {
			e.rookieMax = rookieMax
			e.veteranMin = veteranMin
		}
	}
}

// WithGapPolicy sets the thin-history policy.
func WithGapPolicy(p GapPolicy) Option {
	return func(e *Enricher) {
		if p == GapFail || p == GapFlag {
			e.policy = p
		}
	}
}

// Enricher builds PlayerContext values from a history source.
type Enricher struct {
	src        HistorySource
	window     int
	minHistory int
	formWindow int
	rookieMax  float64
	veteranMin float64
	policy     GapPolicy
}

// New creates an Enricher over the given source. window is the trailing
// appearance count the baseline averages over; minHistory is the smallest
// log the policy accepts. Both must be positive, minHistory at most window.
func New(src HistorySource, window, minHistory int, opts ...Option) *Enricher {
	e := &Enricher{
		src:        src,
		window:     window,
		minHistory: minHistory,
		formWindow: defaultFormWindow,
		rookieMax:  defaultRookieMaxSeasons,
		veteranMin: defaultVeteranMinSeasons,
		policy:     GapFail,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enrich produces one PlayerContext per participant of the moment, in
// participant order.
func (e *Enricher) Enrich(ctx context.Context, m model.Moment) ([]model.PlayerContext, error) {
	out := make([]model.PlayerContext, 0, len(m.Participants))
	for _, p := range m.Participants {
		pc, err := e.Player(ctx, m, p)
		if err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, nil
}

// Player builds the context for a single participant.
func (e *Enricher) Player(ctx context.Context, m model.Moment, p model.Participant) (model.PlayerContext, error) {
	log, err := e.src.PerformanceLog(ctx, p.PlayerID, m.Timestamp, e.window)
	if err != nil {
		return model.PlayerContext{}, fmt.Errorf("performance log for %s: %w", p.PlayerID, err)
	}
	span, err := e.src.CareerSpan(ctx, p.PlayerID)
	if err != nil {
		return model.PlayerContext{}, fmt.Errorf("career span for %s: %w", p.PlayerID, err)
	}

	pc := model.PlayerContext{
		PlayerID: p.PlayerID,
		Role:     p.Role,
		Team:     p.Team,
		Side:     sideOf(m, p.Team),
		Stage:    e.stage(span.Seasons),
		Window:   len(log),
	}

	if len(log) < e.minHistory {
		if e.policy == GapFail {
			return model.PlayerContext{}, &InsufficientHistoryError{
				PlayerID: p.PlayerID,
				Got:      len(log),
				Want:     e.minHistory,
			}
		}
		// Thin history: average what exists, report no slump signal.
		pc.LowConfidence = true
		if len(log) > 0 {
			v := mean(values(log))
			pc.Baseline = v
			pc.RecentForm = v
		}
		return pc, nil
	}

	vals := values(log)
	pc.Baseline = mean(vals)
	fw := e.formWindow
	if fw > len(vals) {
		fw = len(vals)
	}
	pc.RecentForm = mean(vals[:fw]) // log is most recent first
	pc.BelowBaseline = pc.RecentForm < pc.Baseline
	return pc, nil
}

func (e *Enricher) stage(seasons float64) model.CareerStage {
	switch {
	case seasons < e.rookieMax:
		return model.StageRookie
	case seasons > e.veteranMin:
		return model.StageVeteran
	default:
		return model.StagePrime
	}
}

// sideOf classifies a team as beneficiary or adverse from the signed swing.
// A dead-even swing counts as beneficiary; the zero impact carries through.
func sideOf(m model.Moment, team model.TeamSide) model.Side {
	if m.SignedDeltaWP(team) < 0 {
		return model.SideAdverse
	}
	return model.SideBeneficiary
}

func values(log []model.Appearance) []float64 {
	vals := make([]float64, len(log))
	for i, a := range log {
		vals[i] = a.Value
	}
	return vals
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
