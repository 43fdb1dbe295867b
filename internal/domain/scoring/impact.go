package scoring

import "github.com/highleverage/momentum/internal/domain/model"

// PhaseWeights maps season phase to its amplification factor. The postseason
// factor must exceed the regular-season factor; the configuration layer
// validates that before anything scores.
type PhaseWeights struct {
	Regular    float64
	Postseason float64
}

// Weight returns the factor for a phase, falling back to the regular-season
// factor for anything unrecognized.
func (w PhaseWeights) Weight(p model.SeasonPhase) float64 {
	if p == model.Postseason {
		return w.Postseason
	}
	return w.Regular
}

// Impact computes the win-probability impact component: the swing as seen
// from the player's side, amplified by the season phase. Deterministic, no
// failure modes.
func Impact(signedDelta float64, phase model.SeasonPhase, w PhaseWeights) float64 {
	return signedDelta * w.Weight(phase)
}
