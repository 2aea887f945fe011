// Package rating defines the pure Elo arithmetic applied after each vote.
package rating

import (
	"math"

	"github.com/scAIentist/sciblind-sub001/internal/domain/model"
)

// Default rating configuration constants.
const (
	// eloSpread is the logistic scale of the Elo curve: a 400-point gap
	// means ten-to-one win odds.
	eloSpread = 400.0
	eloBase   = 10.0

	// Confidence band boundaries on comparison counts.
	mediumConfidenceAt = 5
	highConfidenceAt   = 15

	// Artist boost parameters: rank 1 earns 200, shrinking by 20 per rank.
	artistBoostStep = 20.0
	artistBoostBias = 11
	minArtistRank   = 1
	maxArtistRank   = 10
)

// Confidence buckets an item's rating reliability by sample size.
type Confidence string

// Confidence levels in increasing order of reliability.
const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ExpectedScore returns the probability that a rating of a beats a rating
// of b under the Elo logistic model. ExpectedScore(a,b)+ExpectedScore(b,a)
// is always 1.
func ExpectedScore(a, b float64) float64 {
	return 1.0 / (1.0 + math.Pow(eloBase, (b-a)/eloSpread))
}

// AdaptiveK scales baseK up while either side is provisional. g is the
// smaller of the two game counts floored at one, and the multiplier never
// drops below one, so the effective K never drops below baseK.
func AdaptiveK(baseK float64, winnerGames, loserGames int) float64 {
	g := winnerGames
	if loserGames < g {
		g = loserGames
	}
	if g < 1 {
		g = 1
	}
	mult := baseK / float64(g)
	if mult < 1 {
		mult = 1
	}
	return baseK * mult
}

// Update computes the rating movement for one decided comparison. The
// deltas are exactly zero-sum and neither input is mutated.
func Update(winner, loser model.Item, cfg model.StudyConfig) model.RatingUpdate {
	k := cfg.KFactor
	if cfg.AdaptiveKFactor {
		k = AdaptiveK(cfg.KFactor, winner.GamesPlayed, loser.GamesPlayed)
	}
	expected := ExpectedScore(winner.Rating, loser.Rating)
	delta := k * (1 - expected)
	return model.RatingUpdate{
		WinnerID:     winner.ID,
		LoserID:      loser.ID,
		K:            k,
		Expected:     expected,
		WinnerDelta:  delta,
		LoserDelta:   -delta,
		WinnerRating: winner.Rating + delta,
		LoserRating:  loser.Rating - delta,
	}
}

// Applier binds a study config into the pure update function the store
// invokes inside its atomic read-modify-write.
func Applier(cfg model.StudyConfig) func(winner, loser model.Item) model.RatingUpdate {
	return func(winner, loser model.Item) model.RatingUpdate {
		return Update(winner, loser, cfg)
	}
}

// ArtistBoost converts an external artist rank into a display bonus:
// (11-rank)*20 inside [1,10], zero outside.
func ArtistBoost(rank int) float64 {
	if rank < minArtistRank || rank > maxArtistRank {
		return 0
	}
	return float64(artistBoostBias-rank) * artistBoostStep
}

// ArtistBoostFor applies ArtistBoost to an optional rank.
func ArtistBoostFor(rank *int) float64 {
	if rank == nil {
		return 0
	}
	return ArtistBoost(*rank)
}

// ConfidenceLevel buckets a comparison count into low, medium or high.
func ConfidenceLevel(comparisonCount int) Confidence {
	switch {
	case comparisonCount < mediumConfidenceAt:
		return ConfidenceLow
	case comparisonCount < highConfidenceAt:
		return ConfidenceMedium
	default:
		return ConfidenceHigh
	}
}

// CompareItems orders items for ranked display: rating descending, then
// artist rank ascending with ranked items ahead of unranked, then
// comparison count descending, then win rate descending. It returns a
// negative value when a ranks ahead of b, positive when b ranks ahead,
// and zero when every key ties. The result is a strict weak ordering,
// safe for sorting and for the store's ordered index.
func CompareItems(a, b model.Item) int {
	if a.Rating != b.Rating {
		if a.Rating > b.Rating {
			return -1
		}
		return 1
	}
	switch {
	case a.ArtistRank != nil && b.ArtistRank == nil:
		return -1
	case a.ArtistRank == nil && b.ArtistRank != nil:
		return 1
	case a.ArtistRank != nil && b.ArtistRank != nil && *a.ArtistRank != *b.ArtistRank:
		if *a.ArtistRank < *b.ArtistRank {
			return -1
		}
		return 1
	}
	if a.ComparisonCount != b.ComparisonCount {
		if a.ComparisonCount > b.ComparisonCount {
			return -1
		}
		return 1
	}
	if awr, bwr := a.WinRate(), b.WinRate(); awr != bwr {
		if awr > bwr {
			return -1
		}
		return 1
	}
	return 0
}

// Less reports whether a ranks strictly ahead of b under CompareItems.
func Less(a, b model.Item) bool {
	return CompareItems(a, b) < 0
}
