package model

import "time"

// CareerStage buckets a player's service time.
type CareerStage string

const (
	StageRookie  CareerStage = "rookie"
	StagePrime   CareerStage = "prime"
	StageVeteran CareerStage = "veteran"
)

// Appearance is one game appearance reduced to a single production value by
// the history store. Higher is better for every role; the store owns the
// role-specific metric choice.
type Appearance struct {
	Date  time.Time
	Value float64
}

// CareerSpan summarizes how long a player has been in the league.
type CareerSpan struct {
	Seasons     float64 // completed seasons, fractional mid-season
	Appearances int
}

// PlayerContext is the enriched, per-player view of a moment.
type PlayerContext struct {
	PlayerID      string
	Role          Role
	Team          TeamSide
	Side          Side
	Stage         CareerStage
	Baseline      float64 // mean production over the trailing window
	RecentForm    float64 // mean production over the shorter form window
	BelowBaseline bool
	Window        int  // appearances the baseline was computed over
	LowConfidence bool // history was thin and policy allowed proceeding
}
