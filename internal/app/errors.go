package service

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNotStarted is returned when an operation needs components that only
	// Start builds.
	ErrNotStarted = errors.New("service not started")

	// ErrNoHistorySource is returned by Start when no history source was
	// injected. Context enrichment cannot run without one.
	ErrNoHistorySource = errors.New("no history source configured")

	// ErrNoOutcomeSource is returned when settling pending predictions is
	// requested but no outcome source was injected.
	ErrNoOutcomeSource = errors.New("no outcome source configured")
)
