package model

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrInvalidComparison  = errors.New("invalid comparison")
	ErrInvalidStudyConfig = errors.New("invalid study config")
)
