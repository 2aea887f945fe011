package service

import "errors"

// Sentinel kinds for service lifecycle errors.
var (
	// ErrNotStarted indicates the service was used before Start.
	ErrNotStarted = errors.New("service not started")
)
