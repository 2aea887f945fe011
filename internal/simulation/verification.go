package simulation

import (
	"context"
	"fmt"
	"log"

	service "github.com/scAIentist/sciblind-sub001/internal/app"
	"github.com/scAIentist/sciblind-sub001/internal/domain/publish"
	"github.com/scAIentist/sciblind-sub001/internal/domain/types"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
)

// verifyResults checks the recovered ranking against the latent strengths
// and reports the study's closing diagnostics. It returns the Kendall tau
// rank correlation between the two orders.
func verifyResults(ctx context.Context, cfg *Config, strengths map[string]float64, rankings, leaderboard []types.Entry, verdict publish.Verdict, diag service.Diagnostics) (float64, error) {
	log.Println("🔍 Verifying results...")

	if len(rankings) == 0 {
		return 0, fmt.Errorf("no rankings to verify")
	}

	if len(leaderboard) > 0 {
		if err := verifyLeaderboardConsistency(rankings, leaderboard); err != nil {
			return 0, fmt.Errorf("leaderboard inconsistency: %w", err)
		}
		log.Println("✅ Leaderboard consistency verified")
	}

	tau := kendallTau(rankings, strengths)
	log.Printf("📈 Kendall tau vs latent order: %.3f", tau)

	displayTopEntries(cfg, rankings, strengths)
	displayVerdict(verdict, diag)

	if cfg.Verbose {
		displayRatingSpread(rankings)
	}

	logger.Get().Info(ctx, "result verification completed",
		logger.Float64("kendallTau", tau),
		logger.String("verdict", string(verdict.Status)))
	return tau, nil
}

// verifyLeaderboardConsistency checks that the leaderboard slice is a
// prefix of the full ranking and properly ordered.
func verifyLeaderboardConsistency(rankings, leaderboard []types.Entry) error {
	if leaderboard[0].ItemID != rankings[0].ItemID {
		return fmt.Errorf("top leaderboard entry (%s) does not match top ranked item (%s)",
			leaderboard[0].ItemID, rankings[0].ItemID)
	}

	for i := range leaderboard {
		if i >= len(rankings) {
			return fmt.Errorf("leaderboard has %d entries but only %d items are ranked",
				len(leaderboard), len(rankings))
		}
		if leaderboard[i].ItemID != rankings[i].ItemID {
			return fmt.Errorf("leaderboard entry %d (%s) disagrees with ranking (%s)",
				i, leaderboard[i].ItemID, rankings[i].ItemID)
		}
		if leaderboard[i].Rank != i+1 {
			return fmt.Errorf("leaderboard entry %d carries rank %d", i, leaderboard[i].Rank)
		}
	}
	return nil
}

// kendallTau computes the tau-a rank correlation between the recovered
// order (the rankings slice, best first) and the latent strengths. Pairs
// with equal strength are skipped.
func kendallTau(rankings []types.Entry, strengths map[string]float64) float64 {
	concordant, discordant := 0, 0
	for i := 0; i < len(rankings); i++ {
		for j := i + 1; j < len(rankings); j++ {
			si, sj := strengths[rankings[i].ItemID], strengths[rankings[j].ItemID]
			switch {
			case si > sj:
				concordant++
			case si < sj:
				discordant++
			}
		}
	}

	total := concordant + discordant
	if total == 0 {
		return 0
	}
	return float64(concordant-discordant) / float64(total)
}

// displayTopEntries shows the head of the recovered ranking with each
// item's latent strength alongside.
func displayTopEntries(cfg *Config, rankings []types.Entry, strengths map[string]float64) {
	topN := cfg.TopN
	if topN <= 0 || topN > len(rankings) {
		topN = len(rankings)
	}

	log.Printf("🏆 Top %d recovered ranking:", topN)
	for i := 0; i < topN; i++ {
		entry := rankings[i]
		se := "∞"
		if entry.StandardError != nil {
			se = fmt.Sprintf("%.1f", *entry.StandardError)
		}
		log.Printf("   %d. %s - rating: %.1f (±%s), BT: %.3f, latent: %.2f, %s confidence",
			entry.Rank, entry.ItemID, entry.Rating, se,
			entry.BTAbility, strengths[entry.ItemID], entry.Confidence)
	}
}

// displayVerdict shows the publishability gate outcome and the graph
// diagnostics.
func displayVerdict(verdict publish.Verdict, diag service.Diagnostics) {
	log.Printf("📋 Publishability: %s (counted comparisons: %d)",
		verdict.Status, verdict.CountedComparisons)
	for _, cond := range verdict.Conditions {
		mark := "✅"
		if !cond.Met {
			mark = "❌"
		}
		log.Printf("   %s %s: %d required, %d observed", mark, cond.Name, cond.Required, cond.Observed)
	}

	conn := diag.Connectivity
	log.Printf("🕸  Graph: connected=%v, components=%d, isolated=%d",
		conn.Connected, conn.ComponentCount, len(conn.IsolatedItems))

	triads := diag.Triads
	switch {
	case triads.CircularTriadCount < 0:
		log.Println("🔁 Triad census skipped (too many items)")
	case triads.TransitivityIndex == nil:
		log.Println("🔁 Triad census: no complete triads yet")
	default:
		log.Printf("🔁 Triad census: %d circular of %d, transitivity %.3f",
			triads.CircularTriadCount, triads.TotalTriads, *triads.TransitivityIndex)
	}
}

// displayRatingSpread prints summary statistics over the final ratings.
func displayRatingSpread(rankings []types.Entry) {
	sum := 0.0
	for _, entry := range rankings {
		sum += entry.Rating
	}
	avg := sum / float64(len(rankings))
	maxRating := rankings[0].Rating
	minRating := rankings[len(rankings)-1].Rating

	log.Printf(`📊 Rating statistics:
   Average: %.1f
   Maximum: %.1f
   Minimum: %.1f
`, avg, maxRating, minRating)
}
