// Package scoring computes the momentum shift score: the win-probability
// impact component, the aggregated narrative component and the weighted
// composite with its full breakdown.
package scoring

import (
	"github.com/highleverage/momentum/internal/domain/model"
)

// Default composer configuration constants.
const (
	defaultRookieFactor  = 1.25
	defaultPrimeFactor   = 1.0
	defaultVeteranFactor = 1.0
	defaultSlumpFactor   = 1.15
	defaultMultiplierCap = 1.5
	scoreBound           = 100
)

// ComposerOption applies a configuration option to the Composer.
type ComposerOption func(*Composer)

// WithStageFactor sets the multiplier factor for a career stage.
func WithStageFactor(stage model.CareerStage, f float64) ComposerOption {
	return func(c *Composer) {
		if f > 0 {
			c.stage[stage] = f
		}
	}
}

// WithSlumpFactor sets the extra factor applied below the trailing baseline.
func WithSlumpFactor(f float64) ComposerOption {
	return func(c *Composer) {
		if f > 0 {
			c.slump = f
		}
	}
}

// WithMultiplierCap bounds the context multiplier to [1/cap, cap].
func WithMultiplierCap(cap float64) ComposerOption {
	return func(c *Composer) {
		if cap >= 1 {
			c.cap = cap
		}
	}
}

// Composer combines component scores into the final composite.
type Composer struct {
	stage map[model.CareerStage]float64
	slump float64
	cap   float64
}

// NewComposer creates a Composer with default context multiplier factors.
func NewComposer(opts ...ComposerOption) *Composer {
	c := &Composer{
		stage: map[model.CareerStage]float64{
			model.StageRookie:  defaultRookieFactor,
			model.StagePrime:   defaultPrimeFactor,
			model.StageVeteran: defaultVeteranFactor,
		},
		slump: defaultSlumpFactor,
		cap:   defaultMultiplierCap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Multiplier computes the context multiplier for a player: the career-stage
// factor, amplified when the player sits below their trailing baseline,
// bounded to [1/cap, cap]. Low-confidence contexts stay neutral at 1.
func (c *Composer) Multiplier(pc model.PlayerContext) float64 {
	if pc.LowConfidence {
		return 1
	}
	f := c.stage[pc.Stage]
	if f == 0 {
		f = 1
	}
	if pc.BelowBaseline {
		f *= c.slump
	}
	if f > c.cap {
		f = c.cap
	}
	if low := 1 / c.cap; f < low {
		f = low
	}
	return f
}

// ComposeInput bundles the per-player terms of one moment.
type ComposeInput struct {
	MomentID  string
	PlayerID  string
	Impact    float64
	Sentiment Signal
	Context   model.PlayerContext
}

// Compose combines the components under the given weight set. The raw
// composite is W1*Impact + W2*Narrative*Multiplier evaluated in exactly that
// order and clamped to [-100, 100]; the breakdown keeps every term so the
// raw value reconstructs bit for bit. Identical inputs under the same weight
// version yield byte-identical results.
func (c *Composer) Compose(in ComposeInput, ws model.WeightSet) model.MSSResult {
	mult := c.Multiplier(in.Context)
	raw := ws.W1*in.Impact + ws.W2*in.Sentiment.Value*mult

	score := raw
	if score > scoreBound {
		score = scoreBound
	}
	if score < -scoreBound {
		score = -scoreBound
	}

	var flags []string
	if in.Context.LowConfidence {
		flags = append(flags, model.FlagLowConfidenceContext)
	}
	if in.Sentiment.NoData {
		flags = append(flags, model.FlagNoSentimentData)
	}

	return model.MSSResult{
		MomentID:      in.MomentID,
		PlayerID:      in.PlayerID,
		Role:          in.Context.Role,
		WeightVersion: ws.Version,
		Score:         score,
		Baseline:      in.Context.Baseline,
		Breakdown: model.Breakdown{
			Impact:     in.Impact,
			Narrative:  in.Sentiment.Value,
			Multiplier: mult,
			W1:         ws.W1,
			W2:         ws.W2,
			Raw:        raw,
		},
		Flags: flags,
	}
}
