package enrich

import (
	"errors"
	"fmt"
)

// ErrInsufficientHistory matches any thin-history error via errors.Is.
var ErrInsufficientHistory = errors.New("insufficient history")

// InsufficientHistoryError reports a player whose trailing window could not
// be filled. Recoverable: callers may skip the moment or retry once more
// appearances exist.
type InsufficientHistoryError struct {
	PlayerID string
	Got      int
	Want     int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s: %d of %d appearances", e.PlayerID, e.Got, e.Want)
}

func (e *InsufficientHistoryError) Unwrap() error {
	return ErrInsufficientHistory
}
