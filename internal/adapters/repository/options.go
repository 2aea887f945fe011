// Package repository defines the ranked item store interface and errors.
package repository

import "time"

// Option applies a configuration option to the TreapStore.
type Option func(*TreapStore)

// WithMetricsUpdateInterval sets the interval for background metrics updates.
func WithMetricsUpdateInterval(interval time.Duration) Option {
	return func(s *TreapStore) {
		if interval > 0 {
			s.metricsUpdateInterval = interval
		}
	}
}

// WithPrioritySeed seeds the treap priority generator, keeping index
// shapes reproducible across runs.
func WithPrioritySeed(seed int64) Option {
	return func(s *TreapStore) {
		s.prioritySeed = seed
	}
}
