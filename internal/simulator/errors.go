package simulator

import "errors"

// Sentinel error kinds for this package.
var (
	ErrUnexpectedStatus = errors.New("unexpected status")
	ErrVerification     = errors.New("verification failed")
	ErrInvalidConfig    = errors.New("invalid simulator config")
)
