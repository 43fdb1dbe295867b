package moment

import (
	"errors"
	"fmt"
	"strings"
)

// Validation kinds carried by MalformedError.
const (
	KindMissingField      = "missing-field"
	KindOutOfRange        = "out-of-range"
	KindInconsistentState = "inconsistent-state"
)

// ErrMalformed matches any malformed-moment error via errors.Is.
var ErrMalformed = errors.New("malformed moment")

// MalformedError reports a raw event the builder refused. Fields names every
// offending field of the reported kind, in check order.
type MalformedError struct {
	Kind   string
	Fields []string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed moment (%s): %s: %s", e.Kind, e.Reason, strings.Join(e.Fields, ", "))
}

func (e *MalformedError) Unwrap() error {
	return ErrMalformed
}

// AsMalformed unwraps err into a MalformedError when possible.
func AsMalformed(err error) (*MalformedError, bool) {
	var m *MalformedError
	if errors.As(err, &m) {
		return m, true
	}
	return nil, false
}
