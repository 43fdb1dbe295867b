package predict

import (
	"errors"
	"fmt"
)

// Sentinel kinds for predictor errors.
var (
	ErrUntrained      = errors.New("model not trained")
	ErrNoTrainingData = errors.New("no training data")
)

// UntrainedModelError reports a prediction attempted against a version the
// registry does not hold. Predictions never silently fall back to zeros.
type UntrainedModelError struct {
	Version string
}

func (e *UntrainedModelError) Error() string {
	if e.Version == "" {
		return "no trained model available"
	}
	return fmt.Sprintf("model version %q not trained", e.Version)
}

func (e *UntrainedModelError) Unwrap() error {
	return ErrUntrained
}
