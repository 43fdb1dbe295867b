package statfeed

import "errors"

// ErrLoadFeed wraps failures to read or parse a stat feed file.
var ErrLoadFeed = errors.New("load stat feed")
