package model

import "time"

// SourceType classifies where a sentiment observation came from.
type SourceType string

const (
	SourceMedia  SourceType = "media"
	SourceFan    SourceType = "fan"
	SourceSocial SourceType = "social"
)

// SentimentObservation is one externally supplied narrative reading tied to a
// moment and a player. The engine aggregates observations; it never produces
// them.
type SentimentObservation struct {
	MomentID string
	PlayerID string
	Source   SourceType
	Polarity float64       // [-1, 1]
	Volume   float64       // non-negative reach weight
	Offset   time.Duration // elapsed time between the moment and the observation
}
