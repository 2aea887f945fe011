// Package config defines engine configuration and its loading hooks.
//
// Values are layered: hard defaults, then an optional YAML file, then
// environment overrides. See Load for the precedence rules.
package config

import (
	"fmt"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
)

// Defaults applied by New before any file or environment overrides.
const (
	defaultLogLevel               = "info"
	defaultEstimatorTolerance     = 1e-8
	defaultEstimatorMaxIterations = 1000
	defaultEstimateEveryVotes     = 10
	defaultTriadItemLimit         = 100
	defaultConfirmationMargin     = 1.5
	defaultQueueSize              = 16
	defaultWorkerCount            = 1
	defaultDedupeSize             = 50_000
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// KFactor is the Elo K applied to each decided comparison.
	KFactor float64 `koanf:"k_factor"`

	// AdaptiveKFactor boosts K while either side has few games.
	AdaptiveKFactor bool `koanf:"adaptive_k_factor"`

	// MinExposuresPerItem is the per-item appearance floor for publishability.
	MinExposuresPerItem int `koanf:"min_exposures_per_item"`

	// MinTotalComparisons is the study-wide comparison floor.
	// Zero derives the floor from the item count.
	MinTotalComparisons int `koanf:"min_total_comparisons"`

	// ComparisonMode selects unit shape: pair or quad.
	ComparisonMode string `koanf:"comparison_mode"`

	// AllowContinuedVoting keeps sessions open past the completion target.
	AllowContinuedVoting bool `koanf:"allow_continued_voting"`

	// EstimatorTolerance is the Bradley-Terry convergence threshold.
	EstimatorTolerance float64 `koanf:"estimator_tolerance"`

	// EstimatorMaxIterations caps the Bradley-Terry fitting loop.
	EstimatorMaxIterations int `koanf:"estimator_max_iterations"`

	// EstimateEveryVotes sets the refresh cadence: a Bradley-Terry
	// refresh is requested after every N accepted votes.
	EstimateEveryVotes int `koanf:"estimate_every_votes"`

	// TriadItemLimit bounds the circular-triad census; larger studies
	// report the census as skipped.
	TriadItemLimit int `koanf:"triad_item_limit"`

	// ConfirmationMargin scales the publishability floors for the
	// confirmation verdict.
	ConfirmationMargin float64 `koanf:"confirmation_margin"`

	// QueueSize bounds the in-memory estimation refresh queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of estimation workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the vote deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:               defaultLogLevel,
		KFactor:                model.DefaultKFactor,
		AdaptiveKFactor:        false,
		MinExposuresPerItem:    model.DefaultMinExposures,
		MinTotalComparisons:    0,
		ComparisonMode:         string(model.ModePair),
		AllowContinuedVoting:   false,
		EstimatorTolerance:     defaultEstimatorTolerance,
		EstimatorMaxIterations: defaultEstimatorMaxIterations,
		EstimateEveryVotes:     defaultEstimateEveryVotes,
		TriadItemLimit:         defaultTriadItemLimit,
		ConfirmationMargin:     defaultConfirmationMargin,
		QueueSize:              defaultQueueSize,
		WorkerCount:            defaultWorkerCount,
		DedupeSize:             defaultDedupeSize,
	}
}

// StudyConfig converts the loaded values into the domain policy struct.
// A zero MinTotalComparisons maps to nil so the domain derives the floor.
func (c *Config) StudyConfig() model.StudyConfig {
	sc := model.StudyConfig{
		KFactor:              c.KFactor,
		AdaptiveKFactor:      c.AdaptiveKFactor,
		MinExposuresPerItem:  c.MinExposuresPerItem,
		ComparisonMode:       model.Mode(c.ComparisonMode),
		AllowContinuedVoting: c.AllowContinuedVoting,
	}
	if c.MinTotalComparisons > 0 {
		n := c.MinTotalComparisons
		sc.MinTotalComparisons = &n
	}
	return sc
}

// Validate checks that the configuration can drive the engine.
func (c *Config) Validate() error {
	if err := c.StudyConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch {
	case c.EstimatorTolerance <= 0:
		return fmt.Errorf("%w: estimator tolerance must be positive, got %v", ErrInvalidConfig, c.EstimatorTolerance)
	case c.EstimatorMaxIterations < 1:
		return fmt.Errorf("%w: estimator max iterations must be at least 1, got %d", ErrInvalidConfig, c.EstimatorMaxIterations)
	case c.EstimateEveryVotes < 1:
		return fmt.Errorf("%w: estimate cadence must be at least 1 vote, got %d", ErrInvalidConfig, c.EstimateEveryVotes)
	case c.TriadItemLimit < 1:
		return fmt.Errorf("%w: triad item limit must be at least 1, got %d", ErrInvalidConfig, c.TriadItemLimit)
	case c.ConfirmationMargin < 1:
		return fmt.Errorf("%w: confirmation margin must not relax the floors, got %v", ErrInvalidConfig, c.ConfirmationMargin)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue size must be at least 1, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount < 1:
		return fmt.Errorf("%w: worker count must be at least 1, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize < 1:
		return fmt.Errorf("%w: dedupe size must be at least 1, got %d", ErrInvalidConfig, c.DedupeSize)
	}
	return nil
}
