package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MSS_CONFIG is set
//  3. env (prefix MSS_)
func Load(ctx context.Context) (*Config, error) {
	// Start with defaults
	base := New()

	k := koanf.New(".")

	// Load from file if provided
	if path := os.Getenv("MSS_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// Environment variables: MSS_ADDR, MSS_QUEUE_SIZE, ...
	// Map env keys like MSS_QUEUE_SIZE -> queue_size (flat keys)
	// Preserve underscores to match koanf tags on the struct.
	envProvider := env.Provider("MSS_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "mss_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	// Unmarshal into a copy
	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate enforces the constraints the scoring pipeline relies on. Sizes it
// does not mention are self-healing: queue, worker and dedupe constructors
// fall back to their own defaults on non-positive values.
func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.GapPolicy != "fail" && c.GapPolicy != "flag":
		return fmt.Errorf("%w: gap_policy must be fail or flag, got %q", ErrInvalidConfig, c.GapPolicy)
	case c.TrailingWindow < 1 || c.MinHistory < 1:
		return fmt.Errorf("%w: trailing_window and min_history must be positive", ErrInvalidConfig)
	case c.MinHistory > c.TrailingWindow:
		return fmt.Errorf("%w: min_history must not exceed trailing_window", ErrInvalidConfig)
	case c.FormWindow < 1:
		return fmt.Errorf("%w: form_window must be positive", ErrInvalidConfig)
	case c.RookieMaxSeasons <= 0 || c.VeteranMinSeasons <= c.RookieMaxSeasons:
		return fmt.Errorf("%w: stage thresholds must satisfy 0 < rookie_max_seasons < veteran_min_seasons", ErrInvalidConfig)
	case c.PhaseWeightRegular <= 0:
		return fmt.Errorf("%w: phase_weight_regular must be positive", ErrInvalidConfig)
	case c.PhaseWeightPostseason <= c.PhaseWeightRegular:
		return fmt.Errorf("%w: phase_weight_postseason must exceed phase_weight_regular", ErrInvalidConfig)
	case c.SentimentHalfLifeHours <= 0:
		return fmt.Errorf("%w: sentiment_half_life_hours must be positive", ErrInvalidConfig)
	case c.WeightW1 < 0 || c.WeightW2 < 0:
		return fmt.Errorf("%w: weight_w1 and weight_w2 must be non-negative", ErrInvalidConfig)
	case c.WeightW1 == 0 && c.WeightW2 == 0:
		return fmt.Errorf("%w: weight_w1 and weight_w2 must not both be zero", ErrInvalidConfig)
	case c.MultiplierCap < 1:
		return fmt.Errorf("%w: multiplier_cap must be at least 1", ErrInvalidConfig)
	case c.PredictionHorizon < 1:
		return fmt.Errorf("%w: prediction_horizon must be at least 1", ErrInvalidConfig)
	case c.HorizonDecay <= 0 || c.HorizonDecay > 1:
		return fmt.Errorf("%w: horizon_decay must be in (0, 1]", ErrInvalidConfig)
	case c.ConfidenceZ <= 0:
		return fmt.Errorf("%w: confidence_z must be positive", ErrInvalidConfig)
	case c.MaxShiftLimit < 1:
		return fmt.Errorf("%w: max_shift_limit must be at least 1", ErrInvalidConfig)
	}
	return nil
}
