package model

import "fmt"

// Mode selects how items are presented to raters.
type Mode string

// Presentation modes.
const (
	ModePair Mode = "pair" // two items, one winner
	ModeQuad Mode = "quad" // four items, winner beats the other three
)

// Valid reports whether the mode is a known presentation mode.
func (m Mode) Valid() bool {
	return m == ModePair || m == ModeQuad
}

// Study policy defaults.
const (
	DefaultKFactor      = 32.0
	DefaultMinExposures = 5
	// DefaultTotalMultiplier derives the minimum total comparison count
	// (multiplier times item count) when MinTotalComparisons is nil.
	DefaultTotalMultiplier = 10
)

// StudyConfig carries the per-study rating and scheduling policy.
type StudyConfig struct {
	KFactor              float64
	AdaptiveKFactor      bool
	MinExposuresPerItem  int
	MinTotalComparisons  *int // nil derives DefaultTotalMultiplier x item count
	ComparisonMode       Mode
	AllowContinuedVoting bool
}

// DefaultStudyConfig returns the policy used when the host supplies none.
func DefaultStudyConfig() StudyConfig {
	return StudyConfig{
		KFactor:             DefaultKFactor,
		MinExposuresPerItem: DefaultMinExposures,
		ComparisonMode:      ModePair,
	}
}

// Validate checks the config is usable for rating and scheduling.
func (c StudyConfig) Validate() error {
	switch {
	case c.KFactor <= 0:
		return fmt.Errorf("%w: k-factor must be positive, got %v", ErrInvalidStudyConfig, c.KFactor)
	case c.MinExposuresPerItem < 0:
		return fmt.Errorf("%w: min exposures per item must not be negative, got %d", ErrInvalidStudyConfig, c.MinExposuresPerItem)
	case c.MinTotalComparisons != nil && *c.MinTotalComparisons < 0:
		return fmt.Errorf("%w: min total comparisons must not be negative, got %d", ErrInvalidStudyConfig, *c.MinTotalComparisons)
	case !c.ComparisonMode.Valid():
		return fmt.Errorf("%w: unknown comparison mode %q", ErrInvalidStudyConfig, c.ComparisonMode)
	}
	return nil
}
