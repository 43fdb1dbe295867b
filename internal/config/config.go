// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() builds a Config with defaults; Load layers file and env on top.
// - External errors must be wrapped via this package's error helpers.
// - Defaults mirror the domain packages so a config-free pipeline and a
//   default-loaded one score identically.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory moment queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// TrailingWindow and MinHistory bound the baseline computation: the
	// trailing baseline averages up to TrailingWindow recent appearances
	// and needs at least MinHistory of them.
	TrailingWindow int `koanf:"trailing_window"`
	MinHistory     int `koanf:"min_history"`

	// FormWindow sets how many recent appearances make up the form average.
	FormWindow int `koanf:"form_window"`

	// RookieMaxSeasons and VeteranMinSeasons bound the career-stage buckets.
	RookieMaxSeasons  float64 `koanf:"rookie_max_seasons"`
	VeteranMinSeasons float64 `koanf:"veteran_min_seasons"`

	// GapPolicy decides how thin player history is handled: "fail" rejects
	// the moment, "flag" scores it with a low-confidence flag.
	GapPolicy string `koanf:"gap_policy"`

	// PhaseWeightRegular and PhaseWeightPostseason amplify win-probability
	// swings by season phase. Postseason must exceed regular.
	PhaseWeightRegular    float64 `koanf:"phase_weight_regular"`
	PhaseWeightPostseason float64 `koanf:"phase_weight_postseason"`

	// SentimentHalfLifeHours controls the recency decay of sentiment
	// observations.
	SentimentHalfLifeHours float64 `koanf:"sentiment_half_life_hours"`

	// SourceWeights maps sentiment source types to credibility weights.
	SourceWeights map[string]float64 `koanf:"source_weights"`

	// WeightW1 and WeightW2 seed the composer weights for the impact and
	// narrative components.
	WeightW1 float64 `koanf:"weight_w1"`
	WeightW2 float64 `koanf:"weight_w2"`

	// Stage multipliers and the slump boost applied by the score composer.
	RookieMultiplier  float64 `koanf:"rookie_multiplier"`
	PrimeMultiplier   float64 `koanf:"prime_multiplier"`
	VeteranMultiplier float64 `koanf:"veteran_multiplier"`
	SlumpMultiplier   float64 `koanf:"slump_multiplier"`

	// MultiplierCap bounds the combined context multiplier.
	MultiplierCap float64 `koanf:"multiplier_cap"`

	// PredictionHorizon sets how many periods the outcome predictor
	// projects; HorizonDecay shrinks the projection period over period.
	PredictionHorizon int     `koanf:"prediction_horizon"`
	HorizonDecay      float64 `koanf:"horizon_decay"`

	// Ridge is the regularization strength used when refitting weights.
	Ridge float64 `koanf:"ridge"`

	// ConfidenceZ sets the z-score for trajectory confidence intervals.
	ConfidenceZ float64 `koanf:"confidence_z"`

	// MaxShiftLimit caps GET /shifts?limit.
	MaxShiftLimit int `koanf:"max_shift_limit"`

	// PostgresDSN selects the Postgres ledger when set; empty keeps the
	// in-memory ledger.
	PostgresDSN string `koanf:"postgres_dsn"`

	// StatFeedPath points at the player stat feed file backing context
	// enrichment and outcome settlement. The server cannot score without one.
	StatFeedPath string `koanf:"statfeed"`
}

// New creates a Config populated with defaults. Load layers optional file
// and environment overrides on top.
func New() *Config {
	c := &Config{
		LogLevel:               "info",
		Addr:                   ":9080",
		EventQueueSize:         100_000,
		WorkerCount:            runtime.NumCPU() * 20,
		DedupeSize:             500_000,
		TrailingWindow:         25,
		MinHistory:             5,
		FormWindow:             5,
		RookieMaxSeasons:       1,
		VeteranMinSeasons:      10,
		GapPolicy:              "fail",
		PhaseWeightRegular:     1.0,
		PhaseWeightPostseason:  1.5,
		SentimentHalfLifeHours: 24,
		SourceWeights: map[string]float64{
			"media":  1.0,
			"fan":    0.8,
			"social": 0.6,
		},
		WeightW1:          60,
		WeightW2:          40,
		RookieMultiplier:  1.25,
		PrimeMultiplier:   1.0,
		VeteranMultiplier: 1.0,
		SlumpMultiplier:   1.15,
		MultiplierCap:     1.5,
		PredictionHorizon: 10,
		HorizonDecay:      0.85,
		Ridge:             1e-3,
		ConfidenceZ:       1.96,
		MaxShiftLimit:     100,
	}
	return c
}
