package model

// Flags attached to an MSSResult. Flags appear in this order when set.
const (
	FlagLowConfidenceContext = "low-confidence-context"
	FlagNoSentimentData      = "no-sentiment-data"
)

// Breakdown preserves every term that produced a composite score. Raw always
// equals W1*Impact + W2*Narrative*Multiplier evaluated in that exact order, so
// callers can reconstruct it bit for bit.
type Breakdown struct {
	Impact     float64 `json:"impact"`     // phase-weighted win-probability swing
	Narrative  float64 `json:"narrative"`  // aggregated sentiment signal
	Multiplier float64 `json:"multiplier"` // context multiplier applied to narrative
	W1         float64 `json:"w1"`
	W2         float64 `json:"w2"`
	Raw        float64 `json:"raw"` // unclamped composite
}

// MSSResult is the momentum shift score for one (moment, player) pair under
// one weight version. Results carry no timestamps: identical inputs under the
// same weight version produce byte-identical results.
type MSSResult struct {
	MomentID      string    `json:"moment_id"`
	PlayerID      string    `json:"player_id"`
	Role          Role      `json:"role"`
	WeightVersion string    `json:"weight_version"`
	Score         float64   `json:"score"`    // clamped to [-100, 100]
	Baseline      float64   `json:"baseline"` // trailing baseline the context carried
	Breakdown     Breakdown `json:"breakdown"`
	Flags         []string  `json:"flags,omitempty"`
}

// HasFlag reports whether the result carries the given flag.
func (r MSSResult) HasFlag(flag string) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}
