// Package types contains common types used across the application
package types

// Entry represents one row of the ranked study leaderboard.
// StandardError is the Elo-scale standard error, nil until the item has
// at least one comparison.
type Entry struct {
	Rank          int      `json:"rank"`
	ItemID        string   `json:"item_id"`
	Rating        float64  `json:"rating"`
	Confidence    string   `json:"confidence"`
	Comparisons   int      `json:"comparisons"`
	WinRate       float64  `json:"win_rate"`
	BTAbility     float64  `json:"bt_ability"`
	StandardError *float64 `json:"standard_error,omitempty"`
}

// PairUnit is a two-item presentation. Left and right positions are fixed
// by the scheduler's balancing rule and must be shown as given.
type PairUnit struct {
	LeftItemID  string `json:"left_item_id"`
	RightItemID string `json:"right_item_id"`
}

// QuadUnit is a four-item presentation in randomized display order.
type QuadUnit struct {
	ItemIDs []string `json:"item_ids"`
}

// NextUnit describes what a rater should be shown next. Done means the
// session reached its completion criteria; Exhausted means the selection
// space was used up first. Either way Pair and Quad are nil.
type NextUnit struct {
	Phase     string    `json:"phase"`
	Done      bool      `json:"done"`
	Exhausted bool      `json:"exhausted"`
	Pair      *PairUnit `json:"pair,omitempty"`
	Quad      *QuadUnit `json:"quad,omitempty"`
}

// RatingChange is one item's rating movement from a single vote.
type RatingChange struct {
	ItemID string  `json:"item_id"`
	Delta  float64 `json:"delta"`
	Rating float64 `json:"rating"`
}

// VoteResult reports the effect of a submitted vote. A duplicate vote
// appends nothing and changes no ratings.
type VoteResult struct {
	VoteID    string         `json:"vote_id"`
	Duplicate bool           `json:"duplicate"`
	Appended  int            `json:"appended"`
	Changes   []RatingChange `json:"changes,omitempty"`
}

// StudyStats is a point-in-time engine snapshot for dashboards and logs.
type StudyStats struct {
	Items          int  `json:"items"`
	Comparisons    int  `json:"comparisons"`
	Sessions       int  `json:"sessions"`
	QueueDepth     int  `json:"queue_depth"`
	EstimatorRuns  int  `json:"estimator_runs"`
	LastIterations int  `json:"last_iterations"`
	LastConverged  bool `json:"last_converged"`
	AcceptedVotes  int  `json:"accepted_votes"`
	DuplicateVotes int  `json:"duplicate_votes"`
	RejectedVotes  int  `json:"rejected_votes"`
}
