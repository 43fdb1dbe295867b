package model

import "time"

// WeightOrigin records how a weight set came to exist.
type WeightOrigin string

const (
	WeightsSeed  WeightOrigin = "seed"  // loaded from configuration
	WeightsRefit WeightOrigin = "refit" // produced by the calibrator
)

// WeightSet is one immutable version of the composer weights. A refit mints a
// new version; published versions are never edited in place.
type WeightSet struct {
	Version   string       `json:"version"`
	W1        float64      `json:"w1"` // impact weight
	W2        float64      `json:"w2"` // narrative weight
	Origin    WeightOrigin `json:"origin"`
	CreatedAt time.Time    `json:"created_at"`
}
