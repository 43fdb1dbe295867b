package scoring

import (
	"math"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Default sentiment aggregation constants.
const (
	defaultHalfLife     = 24 * time.Hour
	defaultMediaWeight  = 1.0
	defaultFanWeight    = 0.8
	defaultSocialWeight = 0.6
)

// Signal is the aggregated narrative component for one (moment, player).
type Signal struct {
	Value        float64 // volume, source and recency weighted mean polarity, within [-1, 1]
	Observations int     // observations received, weighted or not
	NoData       bool    // no observation carried any weight
}

// AggregatorOption applies a configuration option to the Aggregator.
type AggregatorOption func(*Aggregator)

// WithHalfLife sets the recency half-life: an observation this far from the
// moment counts at half weight.
func WithHalfLife(d time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if d > 0 {
			a.halfLife = d
		}
	}
}

// WithSourceWeight sets the credibility weight for one source type.
func WithSourceWeight(src model.SourceType, w float64) AggregatorOption {
	return func(a *Aggregator) {
		if w > 0 {
			a.source[src] = w
		}
	}
}

// WithSourceWeightsFromConfig sets source weights from a configuration map.
func WithSourceWeightsFromConfig(weights map[string]float64) AggregatorOption {
	return func(a *Aggregator) {
		for src, w := range weights {
			if w > 0 {
				a.source[model.SourceType(src)] = w
			}
		}
	}
}

// Aggregator folds sentiment observations into a single narrative signal.
// It only aggregates: observations are produced elsewhere.
type Aggregator struct {
	halfLife time.Duration
	source   map[model.SourceType]float64
}

// NewAggregator creates an Aggregator with default source weights and half-life.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		halfLife: defaultHalfLife,
		source: map[model.SourceType]float64{
			model.SourceMedia:  defaultMediaWeight,
			model.SourceFan:    defaultFanWeight,
			model.SourceSocial: defaultSocialWeight,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate computes the weighted mean polarity of the observations. Each
// weight is volume x source credibility x recency decay; recency decays
// exponentially with the configured half-life. An empty batch, or one whose
// weights all vanish, yields a zero signal with NoData set. A single weighted
// observation yields exactly its polarity.
func (a *Aggregator) Aggregate(obs []model.SentimentObservation) Signal {
	var num, den float64
	for _, o := range obs {
		w := a.weightOf(o)
		if w <= 0 {
			continue
		}
		num += clampPolarity(o.Polarity) * w
		den += w
	}
	if den == 0 {
		return Signal{Observations: len(obs), NoData: true}
	}
	return Signal{Value: num / den, Observations: len(obs)}
}

// weightOf combines volume, source credibility and recency. Observations from
// before the moment decay as if simultaneous with it; unknown sources carry
// no weight.
func (a *Aggregator) weightOf(o model.SentimentObservation) float64 {
	vol := o.Volume
	if vol < 0 {
		vol = 0
	}
	src := a.source[o.Source]
	elapsed := o.Offset
	if elapsed < 0 {
		elapsed = 0
	}
	decay := math.Exp2(-elapsed.Hours() / a.halfLife.Hours())
	return vol * src * decay
}

func clampPolarity(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	if p > 1 {
		return 1
	}
	if p < -1 {
		return -1
	}
	return p
}
