// Package model contains domain models passed between layers.
package model

// InitialRating is the Elo rating assigned to every item before its
// first comparison.
const InitialRating = 1500.0

// Item is the per-item rating aggregate maintained by the study store.
// Counters obey comparisonCount == winCount+lossCount == leftCount+rightCount.
type Item struct {
	ID              string
	Rating          float64 // Elo rating, starts at InitialRating
	GamesPlayed     int     // rated games, drives the adaptive K factor
	ComparisonCount int
	WinCount        int
	LossCount       int
	LeftCount       int
	RightCount      int
	ArtistRank      *int    // external rank 1..10, nil when unranked
	ArtistBoost     float64 // display bonus derived from ArtistRank
	BTAbility       float64 // log-scale Bradley-Terry ability
}

// NewItem returns an item with the initial rating and zeroed counters.
func NewItem(id string) Item {
	return Item{ID: id, Rating: InitialRating}
}

// WinRate reports wins per comparison, zero when the item has none.
func (i Item) WinRate() float64 {
	if i.ComparisonCount == 0 {
		return 0
	}
	return float64(i.WinCount) / float64(i.ComparisonCount)
}

// CountersConsistent reports whether the counter invariant holds.
func (i Item) CountersConsistent() bool {
	return i.ComparisonCount == i.WinCount+i.LossCount &&
		i.ComparisonCount == i.LeftCount+i.RightCount
}

// RatingUpdate describes the rating movement produced by one comparison.
// Deltas are exactly zero-sum: LoserDelta == -WinnerDelta.
type RatingUpdate struct {
	WinnerID     string
	LoserID      string
	K            float64 // effective K after adaptive scaling
	Expected     float64 // winner's expected score before the game
	WinnerDelta  float64
	LoserDelta   float64
	WinnerRating float64 // rating after the update
	LoserRating  float64 // rating after the update
}
