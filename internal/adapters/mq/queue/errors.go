package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
	// ErrMalformed marks a transport payload that is not an event document.
	ErrMalformed = errors.New("malformed payload")
)
