package ledger

import "time"

// Option applies a configuration option to the MemoryLedger.
type Option func(*MemoryLedger)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(l *MemoryLedger) {
		if interval > 0 {
			l.metricsUpdateInterval = interval
		}
	}
}
