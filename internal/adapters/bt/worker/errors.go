package worker

import "errors"

// Sentinel kinds for estimation worker errors.
var (
	ErrStopped = errors.New("worker stopped")
)
