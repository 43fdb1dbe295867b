package evaluate

import "errors"

// Sentinel kinds for calibration errors.
var (
	// ErrDegenerateBatch rejects a refit whose training rows cannot pin down
	// new weights: empty input, vanished deltas or a singular system. The
	// previous weight set stays in force. Recoverable with a richer batch.
	ErrDegenerateBatch = errors.New("degenerate calibration batch")
)
