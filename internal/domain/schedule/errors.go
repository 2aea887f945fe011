package schedule

import "errors"

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrNotEnoughItems = errors.New("not enough items to schedule")
)
