package replay

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DrainPollInterval    = 100 * time.Millisecond
	DrainTimeout         = 2 * time.Minute
	DrainStableChecks    = 3
	MinEngineQueue       = 256
	ProgressInterval     = 1 * time.Second
	PercentageMultiplier = 100
)
