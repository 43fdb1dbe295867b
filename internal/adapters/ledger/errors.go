package ledger

import "errors"

// Sentinel kinds for ledger errors.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("record already exists")
	ErrAlreadySettled = errors.New("prediction already settled")
	ErrInvalidLimit   = errors.New("invalid shift limit")
	ErrNoWeights      = errors.New("no weight set stored")
	ErrNoReport       = errors.New("no calibration report stored")
)
