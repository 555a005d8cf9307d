package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicate     = errors.New("duplicate event key")
	ErrInvalidScope  = errors.New("invalid fingerprint scope")
	ErrStoreClosed   = errors.New("store closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)
