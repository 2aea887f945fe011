// Package repository defines the ranked item store interface and errors.
package repository

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
	"github.com/scAIentist/sciblind-sub001/internal/domain/rating"
	"github.com/scAIentist/sciblind-sub001/internal/domain/types"
	"github.com/scAIentist/sciblind-sub001/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: rating DESC, then artist rank ASC with ranked items ahead of
// unranked, then comparison count DESC, then win rate DESC, then item ID
// ASC (deterministic). The BST comparator treats "less" as ranks earlier,
// so in-order traversal yields the leaderboard from best to worst.
//
// Each node keys on the item snapshot taken at insert time. Every write
// that touches a ranking field deletes the node through its old snapshot
// and reinserts the new one, so the index never drifts from the byID map.

// Store tuning constants.
const (
	defaultMetricsUpdateInterval = 5 * time.Second

	// defaultPrioritySeed keeps treap shapes reproducible across runs.
	defaultPrioritySeed = 42
)

// nodeLess reports whether a ranks strictly ahead of b in the index.
// Ties in the ranking chain fall back to item id so the order is total.
func nodeLess(a, b model.Item) bool {
	if c := rating.CompareItems(a, b); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// treap node
type node struct {
	item  model.Item // ranking key snapshot
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, it model.Item, prio uint64) *node {
	if n == nil {
		return &node{item: it, prio: prio, size: 1}
	}
	if nodeLess(it, n.item) {
		n.left = insert(n.left, it, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, it, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, it model.Item) *node {
	if n == nil {
		return nil
	}
	switch {
	case nodeLess(it, n.item):
		n.left = deleteNode(n.left, it)
	case nodeLess(n.item, it):
		n.right = deleteNode(n.right, it)
	default:
		// Same position in the total order means same item. Merge the
		// children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, it)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, it)
		}
	}
	fix(n)
	return n
}

// collectTopN appends up to limit current items in rank order. Nodes key
// on insert-time snapshots; the byID map supplies the live aggregates.
func collectTopN(n *node, limit int, byID map[string]model.Item, out *[]model.Item) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, byID, out)
	if len(*out) < limit {
		if it, ok := byID[n.item.ID]; ok {
			*out = append(*out, it)
		}
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, byID, out)
	}
}

// collectAll appends all current items in rank order.
func collectAll(n *node, byID map[string]model.Item, out *[]model.Item) {
	if n == nil {
		return
	}
	collectAll(n.left, byID, out)
	if it, ok := byID[n.item.ID]; ok {
		*out = append(*out, it)
	}
	collectAll(n.right, byID, out)
}

// TreapStore is the in-memory Store backing a running study.
type TreapStore struct {
	mu          sync.RWMutex
	root        *node
	byID        map[string]model.Item
	seByID      map[string]float64 // Elo-scale standard errors from the estimator
	comparisons []model.Comparison
	bySession   map[string][]int // session id -> indexes into comparisons

	rng                   *rand.Rand // treap priorities, guarded by mu
	prioritySeed          int64
	metricsUpdateInterval time.Duration

	// Background metrics management
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store with configuration options.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[string]model.Item),
		seByID:                make(map[string]float64),
		bySession:             make(map[string][]int),
		prioritySeed:          defaultPrioritySeed,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
	}

	for _, opt := range opts {
		opt(s)
	}

	s.rng = rand.New(rand.NewSource(s.prioritySeed)) //nolint:gosec // treap balance, not crypto

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)

	return s
}

// Close gracefully shuts down the background metrics goroutine.
func (s *TreapStore) Close() error {
	select {
	case <-s.stopChan:
		// Channel already closed
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

// AddItem registers a new item in the store and the ranked index.
func (s *TreapStore) AddItem(ctx context.Context, it model.Item) error {
	if it.ID == "" {
		metrics.RecordErrorByComponent("store", "invalid_item")
		return fmt.Errorf("%w: empty item id", ErrInvalidItem)
	}

	s.mu.Lock()
	if _, ok := s.byID[it.ID]; ok {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("store", "duplicate_item")
		return fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
	}
	s.byID[it.ID] = it
	s.root = insert(s.root, it, s.rng.Uint64())
	count := len(s.byID)
	s.mu.Unlock()

	// Update metrics outside lock
	metrics.UpdateStoreItemsTotal(count)
	metrics.UpdateTotalItems(count)
	return nil
}

// Item returns one item aggregate by id.
func (s *TreapStore) Item(ctx context.Context, id string) (model.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.byID[id]
	if !ok {
		metrics.RecordErrorByComponent("store", "not_found")
		return model.Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return it, nil
}

// Items returns copies of all item aggregates in current rank order.
func (s *TreapStore) Items(ctx context.Context) []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Item, 0, len(s.byID))
	collectAll(s.root, s.byID, &out)
	return out
}

// RecordComparison implements Store.RecordComparison with O(log n)
// expected index maintenance.
func (s *TreapStore) RecordComparison(ctx context.Context, cmp model.Comparison, apply ApplyFunc) (model.RatingUpdate, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordStoreUpdateLatency(float64(latency))
	}()

	if err := cmp.Validate(); err != nil {
		metrics.RecordErrorByComponent("store", "invalid_comparison")
		return model.RatingUpdate{}, err
	}

	s.mu.Lock()
	upd, err := s.applyLocked(cmp, apply)
	total := len(s.comparisons)
	s.mu.Unlock()
	if err != nil {
		return model.RatingUpdate{}, err
	}

	// Update metrics outside lock
	metrics.RecordRatingUpdate()
	metrics.UpdateStoreComparisonsTotal(total)
	return upd, nil
}

// RecordComparisons implements Store.RecordComparisons. The batch is
// pre-validated so either every comparison lands or none does.
func (s *TreapStore) RecordComparisons(ctx context.Context, cmps []model.Comparison, apply ApplyFunc) ([]model.RatingUpdate, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordStoreUpdateLatency(float64(latency))
	}()

	s.mu.Lock()
	for _, cmp := range cmps {
		if err := cmp.Validate(); err != nil {
			s.mu.Unlock()
			metrics.RecordErrorByComponent("store", "invalid_comparison")
			return nil, err
		}
		if _, ok := s.byID[cmp.WinnerID]; !ok {
			s.mu.Unlock()
			metrics.RecordErrorByComponent("store", "not_found")
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, cmp.WinnerID)
		}
		if _, ok := s.byID[cmp.LoserID()]; !ok {
			s.mu.Unlock()
			metrics.RecordErrorByComponent("store", "not_found")
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, cmp.LoserID())
		}
	}

	updates := make([]model.RatingUpdate, 0, len(cmps))
	for _, cmp := range cmps {
		upd, err := s.applyLocked(cmp, apply)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		updates = append(updates, upd)
	}
	total := len(s.comparisons)
	s.mu.Unlock()

	// Update metrics outside lock
	for range updates {
		metrics.RecordRatingUpdate()
	}
	metrics.UpdateStoreComparisonsTotal(total)
	return updates, nil
}

// applyLocked moves both item aggregates for one comparison and appends
// it to the log. Must be called with s.mu held for writing.
func (s *TreapStore) applyLocked(cmp model.Comparison, apply ApplyFunc) (model.RatingUpdate, error) {
	winner, ok := s.byID[cmp.WinnerID]
	if !ok {
		metrics.RecordErrorByComponent("store", "not_found")
		return model.RatingUpdate{}, fmt.Errorf("%w: %s", ErrItemNotFound, cmp.WinnerID)
	}
	loser, ok := s.byID[cmp.LoserID()]
	if !ok {
		metrics.RecordErrorByComponent("store", "not_found")
		return model.RatingUpdate{}, fmt.Errorf("%w: %s", ErrItemNotFound, cmp.LoserID())
	}

	upd := apply(winner, loser)

	newWinner := winner
	newWinner.Rating = upd.WinnerRating
	newWinner.GamesPlayed++
	newWinner.ComparisonCount++
	newWinner.WinCount++

	newLoser := loser
	newLoser.Rating = upd.LoserRating
	newLoser.GamesPlayed++
	newLoser.ComparisonCount++
	newLoser.LossCount++

	// Position counters follow the recorded display sides. A comparison
	// without sides (synthetic results) defaults to A-left, B-right.
	leftID := cmp.LeftItemID
	if leftID == "" {
		leftID = cmp.ItemAID
	}
	if newWinner.ID == leftID {
		newWinner.LeftCount++
		newLoser.RightCount++
	} else {
		newWinner.RightCount++
		newLoser.LeftCount++
	}

	s.replaceLocked(winner, newWinner)
	s.replaceLocked(loser, newLoser)

	s.comparisons = append(s.comparisons, cmp)
	if cmp.SessionID != "" {
		s.bySession[cmp.SessionID] = append(s.bySession[cmp.SessionID], len(s.comparisons)-1)
	}
	return upd, nil
}

// replaceLocked swaps an item's index node for its updated snapshot.
func (s *TreapStore) replaceLocked(old, updated model.Item) {
	s.root = deleteNode(s.root, old)
	s.root = insert(s.root, updated, s.rng.Uint64())
	s.byID[updated.ID] = updated
}

// SetAbilities stores estimator output. Ability is not part of the
// ranking key so the index needs no maintenance. Non-finite standard
// errors are dropped rather than exposed to JSON encoders.
func (s *TreapStore) SetAbilities(ctx context.Context, abilities, standardErrors map[string]float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for id, ability := range abilities {
		it, ok := s.byID[id]
		if !ok {
			continue
		}
		it.BTAbility = ability
		s.byID[id] = it
		applied++
	}
	for id, se := range standardErrors {
		if _, ok := s.byID[id]; !ok {
			continue
		}
		if math.IsNaN(se) || math.IsInf(se, 0) {
			continue
		}
		s.seByID[id] = se
	}
	return applied
}

// Entries returns the full leaderboard in rank order.
func (s *TreapStore) Entries(ctx context.Context) []types.Entry {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordStoreQueryLatency(float64(latency))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Item, 0, len(s.byID))
	collectAll(s.root, s.byID, &items)
	return s.entriesLocked(items)
}

// TopN returns the top N entries ordered best first.
func (s *TreapStore) TopN(ctx context.Context, n int) ([]types.Entry, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordStoreQueryLatency(float64(latency))
	}()

	if n < 1 {
		metrics.RecordErrorByComponent("store", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := n
	if limit > len(s.byID) {
		limit = len(s.byID)
	}
	items := make([]model.Item, 0, limit)
	collectTopN(s.root, n, s.byID, &items)
	return s.entriesLocked(items), nil
}

// Rank returns the current leaderboard entry for one item.
func (s *TreapStore) Rank(ctx context.Context, itemID string) (types.Entry, error) {
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordStoreQueryLatency(float64(latency))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.byID[itemID]; !ok {
		metrics.RecordErrorByComponent("store", "not_found")
		return types.Entry{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}

	items := make([]model.Item, 0, len(s.byID))
	collectAll(s.root, s.byID, &items)
	for _, e := range s.entriesLocked(items) {
		if e.ItemID == itemID {
			return e, nil
		}
	}
	return types.Entry{}, fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
}

// entriesLocked builds leaderboard rows from rank-ordered items. Items
// whose whole ranking chain ties share a rank and the next distinct item
// takes the following one. Must be called with s.mu held.
func (s *TreapStore) entriesLocked(items []model.Item) []types.Entry {
	entries := make([]types.Entry, len(items))
	rank := 0
	for i, it := range items {
		if i == 0 || rating.CompareItems(items[i-1], it) != 0 {
			rank++
		}
		e := types.Entry{
			Rank:        rank,
			ItemID:      it.ID,
			Rating:      it.Rating,
			Confidence:  string(rating.ConfidenceLevel(it.ComparisonCount)),
			Comparisons: it.ComparisonCount,
			WinRate:     it.WinRate(),
			BTAbility:   it.BTAbility,
		}
		if se, ok := s.seByID[it.ID]; ok && it.ComparisonCount > 0 {
			e.StandardError = &se
		}
		entries[i] = e
	}
	return entries
}

// Comparisons returns a copy of the comparison log in arrival order.
func (s *TreapStore) Comparisons(ctx context.Context) []model.Comparison {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Comparison, len(s.comparisons))
	copy(out, s.comparisons)
	return out
}

// SessionComparisons returns the comparisons recorded for one session in
// arrival order.
func (s *TreapStore) SessionComparisons(ctx context.Context, sessionID string) []model.Comparison {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idxs := s.bySession[sessionID]
	out := make([]model.Comparison, 0, len(idxs))
	for _, idx := range idxs {
		out = append(out, s.comparisons[idx])
	}
	return out
}

// Count returns the total number of items.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// ComparisonCount returns the total number of recorded comparisons.
func (s *TreapStore) ComparisonCount(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.comparisons)
}

// SessionCount returns the number of distinct sessions seen so far.
func (s *TreapStore) SessionCount(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bySession)
}

// startMetricsUpdater starts a background goroutine that refreshes store
// gauges at the configured interval.
func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

// updateMetrics refreshes all store-related gauges.
func (s *TreapStore) updateMetrics() {
	s.mu.RLock()
	itemCount := len(s.byID)
	comparisonCount := len(s.comparisons)
	s.mu.RUnlock()

	metrics.UpdateStoreItemsTotal(itemCount)
	metrics.UpdateStoreComparisonsTotal(comparisonCount)
	metrics.UpdateTotalItems(itemCount)
}
