package simulation

import (
	"context"
	"math/rand"
	"sort"

	"github.com/google/uuid"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
)

// rankedItems is how many of the strongest items receive an external
// artist rank.
const rankedItems = 10

// Latent strength tiers on the Bradley-Terry odds scale: the chance that
// a beats b is a.Strength/(a.Strength+b.Strength).
const (
	averageMin    = 3.0
	averageRange  = 4.0
	strongMin     = 7.0
	strongRange   = 2.0
	weakMin       = 0.1
	weakRange     = 2.9
	eliteMin      = 9.0
	eliteRange    = 1.0
	floorMin      = 0.1
	floorRange    = 0.9
	upperMidMin   = 6.0
	upperMidRange = 2.0
	lowerMidMin   = 2.0
	lowerMidRange = 2.0
	fullMin       = 0.1
	fullRange     = 9.9
)

// Strength tier cases.
const (
	caseAverage  = 0
	caseStrong   = 1
	caseWeak     = 2
	caseElite    = 3
	caseFloor    = 4
	caseUpperMid = 5
	caseLowerMid = 6
	caseFull     = 7
	tierCount    = 8
)

// generateItems creates the study population with latent strengths drawn
// from a tiered distribution, so the simulated field has clear favorites,
// a broad middle, and a weak tail. The strongest items receive external
// artist ranks 1..10.
func generateItems(ctx context.Context, cfg *Config, rng *rand.Rand, stats *Stats) []Item {
	logger.Get().Info(ctx, "generating items with latent strengths",
		logger.Int("numItems", cfg.NumItems))

	items := make([]Item, cfg.NumItems)
	for i := range items {
		items[i] = Item{
			ID:       uuid.NewString(),
			Strength: sampleStrength(rng),
		}
	}

	assignArtistRanks(items)

	stats.ItemsRegistered = len(items)
	logger.Get().Info(ctx, "generated items", logger.Int("count", len(items)))
	return items
}

// sampleStrength draws one latent strength from the tier distribution.
func sampleStrength(rng *rand.Rand) float64 {
	switch rng.Intn(tierCount) {
	case caseAverage:
		// Average contenders (3.0 - 7.0), most common
		return averageMin + rng.Float64()*averageRange
	case caseStrong:
		// Strong contenders (7.0 - 9.0)
		return strongMin + rng.Float64()*strongRange
	case caseWeak:
		// Weak tail (0.1 - 3.0)
		return weakMin + rng.Float64()*weakRange
	case caseElite:
		// Elite outliers (9.0 - 10.0), rare
		return eliteMin + rng.Float64()*eliteRange
	case caseFloor:
		// Near-floor items (0.1 - 1.0), rare
		return floorMin + rng.Float64()*floorRange
	case caseUpperMid:
		// Upper middle (6.0 - 8.0)
		return upperMidMin + rng.Float64()*upperMidRange
	case caseLowerMid:
		// Lower middle (2.0 - 4.0)
		return lowerMidMin + rng.Float64()*lowerMidRange
	case caseFull:
		// Anywhere in range (0.1 - 10.0)
		return fullMin + rng.Float64()*fullRange
	default:
		return fullMin + rng.Float64()*fullRange
	}
}

// assignArtistRanks gives the strongest items external ranks 1..10, the
// way a curator would pre-rank the expected favorites.
func assignArtistRanks(items []Item) {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return items[order[a]].Strength > items[order[b]].Strength
	})

	limit := rankedItems
	if len(order) < limit {
		limit = len(order)
	}
	for rank := 1; rank <= limit; rank++ {
		r := rank
		items[order[rank-1]].ArtistRank = &r
	}
}
