package dedupe

import "errors"

// Sentinel kinds for admission errors. Neither kind is ever stored.
var (
	// ErrValidation marks a candidate with a malformed field.
	ErrValidation = errors.New("invalid event")
	// ErrReference marks a candidate naming an unknown worker or workstation.
	ErrReference = errors.New("unknown reference")
)
