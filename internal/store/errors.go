package store

import "errors"

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned by conditional updates when the row no longer
	// has the expected status.
	ErrStaleState = errors.New("stale state")
)
