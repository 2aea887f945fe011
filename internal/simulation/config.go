package simulation

import "time"

// Config holds the simulation profile.
type Config struct {
	NumItems   int           // Items registered with the study
	Raters     int           // Sessions driven to completion
	Workers    int           // Concurrent rater goroutines
	Mode       string        // Comparison mode, "pair" or "quad"
	Seed       int64         // RNG seed; zero derives one from the clock
	TopN       int           // Leaderboard slice shown at the end
	Timeout    time.Duration // Overall simulation budget
	OutputFile string        // Results file for the final report
	LogFile    string        // Log file for simulation output
	Verbose    bool          // Enable verbose logging
}

// Item is one simulated contestant: the latent strength drives sampled
// vote outcomes on the Bradley-Terry odds scale.
type Item struct {
	ID         string  `json:"id"`
	Strength   float64 `json:"strength"`
	ArtistRank *int    `json:"artist_rank,omitempty"`
}

// Stats holds simulation counters.
type Stats struct {
	ItemsRegistered   int
	SessionsCompleted int
	SessionsExhausted int
	VotesSubmitted    int
	VotesAccepted     int
	VotesDuplicate    int
	VotesRejected     int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
