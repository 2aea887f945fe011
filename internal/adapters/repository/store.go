// Package repository defines the ranked item store interface and errors.
package repository

import (
	"context"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	"github.com/scAIentist/sciblind-sub001/internal/domain/types"
)

// ApplyFunc computes the rating movement for a decided comparison from the
// pre-vote item snapshots. The store invokes it inside its write lock so
// the whole read-modify-write is atomic.
type ApplyFunc func(winner, loser model.Item) model.RatingUpdate

// Store provides read/write access to study state: item aggregates, the
// append-only comparison log, and the ranked index.
type Store interface {
	// AddItem registers a new item.
	// Returns ErrDuplicateItem if the id is already tracked.
	AddItem(ctx context.Context, item model.Item) error

	// Item returns one item aggregate.
	// Returns ErrItemNotFound if the item is unknown.
	Item(ctx context.Context, id string) (model.Item, error)

	// Items returns copies of all item aggregates in current rank order.
	Items(ctx context.Context) []model.Item

	// RecordComparison applies one comparison atomically: both item
	// aggregates move together and the comparison is appended to the log.
	RecordComparison(ctx context.Context, cmp model.Comparison, apply ApplyFunc) (model.RatingUpdate, error)

	// RecordComparisons applies a batch under one lock, all or nothing.
	// Later comparisons in the batch see the aggregates already moved by
	// earlier ones.
	RecordComparisons(ctx context.Context, cmps []model.Comparison, apply ApplyFunc) ([]model.RatingUpdate, error)

	// Comparisons returns a copy of the comparison log in arrival order.
	Comparisons(ctx context.Context) []model.Comparison

	// SessionComparisons returns the comparisons recorded for one session.
	SessionComparisons(ctx context.Context, sessionID string) []model.Comparison

	// SetAbilities stores Bradley-Terry abilities and standard errors.
	// Unknown ids are skipped; returns how many abilities were applied.
	SetAbilities(ctx context.Context, abilities, standardErrors map[string]float64) int

	// Entries returns the full leaderboard in rank order.
	Entries(ctx context.Context) []types.Entry

	// TopN returns the top-N entries ordered best first.
	// Returns ErrInvalidLimit when n < 1.
	TopN(ctx context.Context, n int) ([]types.Entry, error)

	// Rank returns the leaderboard entry for one item.
	// Returns ErrItemNotFound if the item is unknown.
	Rank(ctx context.Context, itemID string) (types.Entry, error)

	// Count returns the number of items tracked.
	Count(ctx context.Context) int

	// ComparisonCount returns the number of recorded comparisons.
	ComparisonCount(ctx context.Context) int

	// SessionCount returns the number of distinct sessions seen.
	SessionCount(ctx context.Context) int

	// Close releases background resources.
	Close() error
}
