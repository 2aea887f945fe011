// Package worker defines the workers that refresh Bradley-Terry abilities
// from the comparison log.
package worker

import (
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithTolerance sets the estimator convergence tolerance.
func WithTolerance(tolerance float64) Option {
	return func(w *InMemoryWorker) {
		if tolerance > 0 {
			w.tolerance = tolerance
		}
	}
}

// WithMaxIterations caps the estimator sweep count.
func WithMaxIterations(maxIterations int) Option {
	return func(w *InMemoryWorker) {
		if maxIterations > 0 {
			w.maxIterations = maxIterations
		}
	}
}
