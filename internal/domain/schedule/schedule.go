// Package schedule picks which items face each other next. Selection state
// is always derived from the session comparisons passed in; the scheduler
// itself only owns a random source, so phase and coverage can never drift
// from the recorded facts.
package schedule

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
)

// Scheduling constants.
const (
	// TournamentUnits is how many winner-drawn units follow the base
	// target before a session can complete.
	TournamentUnits = 4

	// PairsPerQuad is the number of synthetic pairwise results one quad
	// vote expands into: the winner beats each of the other three.
	PairsPerQuad = 3

	// recommendedCap bounds the base target for small studies.
	recommendedCap = 75

	quadSize          = 4
	defaultRandomSeed = 42
)

// Phase of a rating session.
type Phase string

// Session phases in order of progression.
const (
	PhaseCoverage   Phase = "coverage"
	PhaseTournament Phase = "tournament"
	PhaseComplete   Phase = "complete"
)

// PairSelection is a pair-mode pick. Sides are fixed by the balancing rule
// and must be displayed as given.
type PairSelection struct {
	LeftItemID  string
	RightItemID string
}

// QuadSelection is a quad-mode pick in randomized display order.
type QuadSelection struct {
	ItemIDs []string
}

// Unit is one scheduling decision. Done marks a completed session; a unit
// that is neither done nor carrying a selection means the selection space
// is exhausted.
type Unit struct {
	Phase Phase
	Done  bool
	Pair  *PairSelection
	Quad  *QuadSelection
}

// Progress summarizes a category's completion within a session.
type Progress struct {
	Completed  int  `json:"completed"`
	Target     int  `json:"target"`
	Percentage int  `json:"percentage"`
	IsComplete bool `json:"is_complete"`
}

// Option applies a configuration option to the Scheduler.
type Option func(*Scheduler)

// WithSeed sets the random seed used for tie-breaking and display order.
func WithSeed(seed int64) Option {
	return func(s *Scheduler) {
		s.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // scheduling jitter, not crypto
	}
}

// Scheduler selects pairs and quads for rating sessions.
type Scheduler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewScheduler creates a scheduler with configuration options. The default
// seed is fixed so tests reproduce.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		rng: rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible testing
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Next derives the session phase and returns the matching selection. A
// completed session yields Done with no selection; an exhausted selection
// space yields neither Done nor a selection.
func (s *Scheduler) Next(items []model.Item, session []model.Comparison, cfg model.StudyConfig) (Unit, error) {
	phase := PhaseFor(items, session, cfg)
	unit := Unit{Phase: phase}
	if phase == PhaseComplete {
		unit.Done = true
		return unit, nil
	}

	if cfg.ComparisonMode == model.ModeQuad {
		var sel *QuadSelection
		var err error
		if phase == PhaseTournament {
			sel, err = s.NextQuadWinnersOnly(items, session)
		} else {
			sel, err = s.NextQuad(items, session)
		}
		if err != nil {
			return Unit{}, err
		}
		unit.Quad = sel
		return unit, nil
	}

	var sel *PairSelection
	var err error
	if phase == PhaseTournament {
		sel, err = s.NextTournamentPair(items, session)
	} else {
		sel, err = s.NextPair(items, session)
	}
	if err != nil {
		return Unit{}, err
	}
	unit.Pair = sel
	return unit, nil
}

// NextPair picks the unused pair whose items have the fewest session
// appearances, breaking ties randomly. The item with the smaller global
// left count takes the left side. A nil selection with a nil error means
// every pair has been used this session.
func (s *Scheduler) NextPair(items []model.Item, session []model.Comparison) (*PairSelection, error) {
	if len(items) < 2 {
		return nil, fmt.Errorf("%w: pair mode needs 2, have %d", ErrNotEnoughItems, len(items))
	}

	used := usedPairKeys(session)
	app := sessionAppearances(session)

	type pair struct{ a, b int }
	var best []pair
	bestScore := math.MaxInt
	for i := 0; i < len(items); i++ {
		for j := i + 1; j < len(items); j++ {
			if _, ok := used[model.PairKey(items[i].ID, items[j].ID)]; ok {
				continue
			}
			score := app[items[i].ID] + app[items[j].ID]
			if score > bestScore {
				continue
			}
			if score < bestScore {
				bestScore = score
				best = best[:0]
			}
			best = append(best, pair{i, j})
		}
	}
	if len(best) == 0 {
		return nil, nil
	}

	pick := best[s.intn(len(best))]
	left, right := s.orient(items[pick.a], items[pick.b])
	return &PairSelection{LeftItemID: left.ID, RightItemID: right.ID}, nil
}

// NextTournamentPair draws a pair from the session winners, falling back
// to ordinary coverage selection when the winner pool is too small or
// already played out.
func (s *Scheduler) NextTournamentPair(items []model.Item, session []model.Comparison) (*PairSelection, error) {
	pool := winnerPool(items, session)
	if len(pool) >= 2 {
		if sel, err := s.NextPair(pool, session); err == nil && sel != nil {
			return sel, nil
		}
	}
	return s.NextPair(items, session)
}

// NextQuad picks four distinct items no two of which have met this
// session, preferring items with the fewest session appearances. Display
// positions are randomized. A nil selection with a nil error means no
// fresh quad remains.
func (s *Scheduler) NextQuad(items []model.Item, session []model.Comparison) (*QuadSelection, error) {
	if len(items) < quadSize {
		return nil, fmt.Errorf("%w: quad mode needs %d, have %d", ErrNotEnoughItems, quadSize, len(items))
	}

	used := usedPairKeys(session)
	app := sessionAppearances(session)

	order := make([]model.Item, len(items))
	copy(order, items)
	s.shuffleItems(order)
	sort.SliceStable(order, func(i, j int) bool {
		return app[order[i].ID] < app[order[j].ID]
	})

	chosen := make([]int, 0, quadSize)
	var pick func(start int) *QuadSelection
	pick = func(start int) *QuadSelection {
		if len(chosen) == quadSize {
			ids := make([]string, quadSize)
			for i, idx := range chosen {
				ids[i] = order[idx].ID
			}
			s.shuffleIDs(ids)
			return &QuadSelection{ItemIDs: ids}
		}
		for idx := start; idx < len(order); idx++ {
			conflict := false
			for _, c := range chosen {
				if _, ok := used[model.PairKey(order[idx].ID, order[c].ID)]; ok {
					conflict = true
					break
				}
			}
			if conflict {
				continue
			}
			chosen = append(chosen, idx)
			if sel := pick(idx + 1); sel != nil {
				return sel
			}
			chosen = chosen[:len(chosen)-1]
		}
		return nil
	}
	return pick(0), nil
}

// NextQuadWinnersOnly restricts the quad pool to session winners, falling
// back to ordinary selection when fewer than four winners exist or the
// winner pool is played out.
func (s *Scheduler) NextQuadWinnersOnly(items []model.Item, session []model.Comparison) (*QuadSelection, error) {
	pool := winnerPool(items, session)
	if len(pool) >= quadSize {
		if sel, err := s.NextQuad(pool, session); err == nil && sel != nil {
			return sel, nil
		}
	}
	return s.NextQuad(items, session)
}

// SessionWinnerIDs returns the distinct winners of a session in first-win
// order.
func SessionWinnerIDs(session []model.Comparison) []string {
	seen := make(map[string]struct{}, len(session))
	out := make([]string, 0, len(session))
	for _, c := range session {
		if c.WinnerID == "" {
			continue
		}
		if _, ok := seen[c.WinnerID]; ok {
			continue
		}
		seen[c.WinnerID] = struct{}{}
		out = append(out, c.WinnerID)
	}
	return out
}

// HasFullCoverage reports whether every item appears in at least one
// comparison. Vacuously true with no items.
func HasFullCoverage(items []model.Item, comparisons []model.Comparison) bool {
	appeared := make(map[string]struct{}, len(comparisons)*2)
	for _, c := range comparisons {
		appeared[c.ItemAID] = struct{}{}
		appeared[c.ItemBID] = struct{}{}
	}
	for _, it := range items {
		if _, ok := appeared[it.ID]; !ok {
			return false
		}
	}
	return true
}

// RecommendedComparisons sizes a session's base pair target from the item
// count and the per-item exposure goal: half the total exposure need,
// never below the item count (which also covers the ceil(n/2) floor) and
// never above max(75, itemCount). Monotonic in both arguments.
func RecommendedComparisons(itemCount, minExposuresPerItem int) int {
	if itemCount <= 0 {
		return 0
	}
	target := (itemCount*minExposuresPerItem + 1) / 2
	if target < itemCount {
		target = itemCount
	}
	upper := recommendedCap
	if itemCount > upper {
		upper = itemCount
	}
	if target > upper {
		target = upper
	}
	return target
}

// RecommendedQuadUnits converts the pair target into quad units. Each quad
// yields PairsPerQuad pairwise results, and at least ceil(n/4) quads are
// needed to show every item once.
func RecommendedQuadUnits(itemCount, minExposuresPerItem int) int {
	if itemCount <= 0 {
		return 0
	}
	units := (RecommendedComparisons(itemCount, minExposuresPerItem) + PairsPerQuad - 1) / PairsPerQuad
	if floor := (itemCount + quadSize - 1) / quadSize; units < floor {
		units = floor
	}
	return units
}

// BaseTarget is the session's base unit target for the configured mode.
func BaseTarget(itemCount int, cfg model.StudyConfig) int {
	if cfg.ComparisonMode == model.ModeQuad {
		return RecommendedQuadUnits(itemCount, cfg.MinExposuresPerItem)
	}
	return RecommendedComparisons(itemCount, cfg.MinExposuresPerItem)
}

// UnitsCompleted counts scheduling units recorded in a session: one per
// comparison in pair mode, one per PairsPerQuad comparisons in quad mode.
func UnitsCompleted(session []model.Comparison, mode model.Mode) int {
	if mode == model.ModeQuad {
		return len(session) / PairsPerQuad
	}
	return len(session)
}

// PhaseFor derives the session phase from observed state alone. The
// tournament opens once the base target is met with full coverage;
// completion needs TournamentUnits more, and full coverage again when the
// study allows continued voting.
func PhaseFor(items []model.Item, session []model.Comparison, cfg model.StudyConfig) Phase {
	if IsSessionComplete(items, session, cfg) {
		return PhaseComplete
	}
	units := UnitsCompleted(session, cfg.ComparisonMode)
	if units >= BaseTarget(len(items), cfg) && HasFullCoverage(items, session) {
		return PhaseTournament
	}
	return PhaseCoverage
}

// IsSessionComplete reports whether a session met its completion criteria.
func IsSessionComplete(items []model.Item, session []model.Comparison, cfg model.StudyConfig) bool {
	units := UnitsCompleted(session, cfg.ComparisonMode)
	if units < BaseTarget(len(items), cfg)+TournamentUnits {
		return false
	}
	if cfg.AllowContinuedVoting && !HasFullCoverage(items, session) {
		return false
	}
	return true
}

// CategoryProgress reports a category's session progress against a target.
// A non-positive target counts as already complete.
func CategoryProgress(session []model.Comparison, categoryID string, target int) Progress {
	completed := 0
	for _, c := range session {
		if c.CategoryID == categoryID {
			completed++
		}
	}
	p := Progress{Completed: completed, Target: target}
	if target <= 0 {
		p.Percentage = 100
		p.IsComplete = true
		return p
	}
	p.Percentage = int(math.Round(100 * float64(completed) / float64(target)))
	p.IsComplete = completed >= target
	return p
}

// orient places the item with the smaller global left count on the left,
// flipping a coin on ties.
func (s *Scheduler) orient(a, b model.Item) (model.Item, model.Item) {
	switch {
	case a.LeftCount < b.LeftCount:
		return a, b
	case b.LeftCount < a.LeftCount:
		return b, a
	case s.intn(2) == 0:
		return a, b
	default:
		return b, a
	}
}

func (s *Scheduler) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func (s *Scheduler) shuffleIDs(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(ids), func(i, j int) {
		ids[i], ids[j] = ids[j], ids[i]
	})
}

func (s *Scheduler) shuffleItems(items []model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
}

func winnerPool(items []model.Item, session []model.Comparison) []model.Item {
	winners := make(map[string]struct{})
	for _, id := range SessionWinnerIDs(session) {
		winners[id] = struct{}{}
	}
	pool := make([]model.Item, 0, len(winners))
	for _, it := range items {
		if _, ok := winners[it.ID]; ok {
			pool = append(pool, it)
		}
	}
	return pool
}

func sessionAppearances(session []model.Comparison) map[string]int {
	app := make(map[string]int, len(session)*2)
	for _, c := range session {
		app[c.ItemAID]++
		app[c.ItemBID]++
	}
	return app
}

func usedPairKeys(session []model.Comparison) map[string]struct{} {
	used := make(map[string]struct{}, len(session))
	for _, c := range session {
		used[c.PairKey()] = struct{}{}
	}
	return used
}
