package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/scAIentist/sciblind-sub001/internal/app"
	"github.com/scAIentist/sciblind-sub001/internal/domain/types"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
)

const (
	directoryPermission = 0750

	// sessionUnitCap bounds a single session loop; every real session
	// finishes or exhausts far earlier.
	sessionUnitCap = 10_000

	// raterSeedStride spaces per-rater random sources apart.
	raterSeedStride = 1_000_003

	reportInterval = time.Second

	// Simulated rater deliberation bounds in milliseconds.
	responseTimeBaseMs  = 750
	responseTimeRangeMs = 4_000

	percentageMultiplier = 100
)

// progress tracks shared vote counters across rater workers.
type progress struct {
	submitted  atomic.Int64
	accepted   atomic.Int64
	duplicate  atomic.Int64
	rejected   atomic.Int64
	completed  atomic.Int64
	exhausted  atomic.Int64
	lastReport atomic.Int64 // unix nanos of the last progress line
	total      int          // sessions expected
	verbose    bool
}

// maybeReport prints a progress line at most once per interval.
func (p *progress) maybeReport() {
	last := p.lastReport.Load()
	now := time.Now().UnixNano()
	if now-last < int64(reportInterval) || !p.lastReport.CompareAndSwap(last, now) {
		return
	}

	done := p.completed.Load() + p.exhausted.Load()
	if p.verbose {
		log.Printf("📊 Progress: %d/%d sessions (votes: %d, duplicate: %d, rejected: %d)",
			done, p.total, p.accepted.Load(), p.duplicate.Load(), p.rejected.Load())
	} else {
		fmt.Printf("\r🗳️  Sessions: %d/%d (votes: %d)", done, p.total, p.accepted.Load())
	}
}

// report is the final study report written to the output file.
type report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Seed        int64           `json:"seed"`
	Mode        string          `json:"mode"`
	KendallTau  float64         `json:"kendall_tau"`
	Items       []Item          `json:"items"`
	Rankings    []types.Entry   `json:"rankings"`
	Verdict     json.RawMessage `json:"verdict"`
}

// Run executes a complete simulated study against a started service:
// register items, drive rater sessions, refresh estimates, then verify
// and report the outcome.
func Run(ctx context.Context, cfg *Config, svc *service.Service) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting study simulation",
		logger.Int("items", cfg.NumItems),
		logger.Int("raters", cfg.Raters),
		logger.Int("workers", cfg.Workers),
		logger.String("mode", cfg.Mode),
		logger.Any("seed", cfg.Seed),
		logger.String("timeout", cfg.Timeout.String()),
		logger.Int("topN", cfg.TopN),
		logger.Any("verbose", cfg.Verbose))

	// Step 1: Generate the population and register it
	rng := rand.New(rand.NewSource(cfg.Seed)) //nolint:gosec // reproducible simulation
	items := generateItems(ctx, cfg, rng, stats)

	specs := make([]service.ItemSpec, len(items))
	for i, it := range items {
		specs[i] = service.ItemSpec{ID: it.ID, ArtistRank: it.ArtistRank}
	}
	if _, err := svc.AddItems(ctx, specs); err != nil {
		return fmt.Errorf("item registration failed: %w", err)
	}

	strengths := make(map[string]float64, len(items))
	for _, it := range items {
		strengths[it.ID] = it.Strength
	}

	// Step 2: Drive rater sessions concurrently
	if err := driveRaters(ctx, cfg, svc, strengths, stats); err != nil {
		return fmt.Errorf("session driving failed: %w", err)
	}

	// Step 3: Force a final estimator pass so the report reads fresh fits
	log.Println("🧮 Refreshing ability estimates...")
	if err := svc.RefreshEstimates(ctx); err != nil {
		return fmt.Errorf("estimate refresh failed: %w", err)
	}

	// Step 4: Read the outcome
	rankings, err := svc.Rankings(ctx)
	if err != nil {
		return fmt.Errorf("ranking retrieval failed: %w", err)
	}
	leaderboard, err := svc.TopN(ctx, cfg.TopN)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	verdict, err := svc.Publishability(ctx)
	if err != nil {
		return fmt.Errorf("publishability evaluation failed: %w", err)
	}
	diag, err := svc.Diagnostics(ctx)
	if err != nil {
		return fmt.Errorf("diagnostics failed: %w", err)
	}

	// Step 5: Verify the recovered order against the latent one
	tau, err := verifyResults(ctx, cfg, strengths, rankings, leaderboard, verdict, diag)
	if err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 6: Save the report
	if err := saveReport(ctx, cfg, items, rankings, verdict, tau); err != nil {
		logger.Get().Warn(ctx, "failed to save report", logger.Error(err))
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats, svc.Stats(ctx))

	logger.Get().Info(ctx, "simulation completed successfully")
	return nil
}

// driveRaters works through the configured sessions with a pool of rater
// goroutines. Each session has its own random source, so outcomes are
// reproducible for a given seed regardless of scheduling.
func driveRaters(ctx context.Context, cfg *Config, svc *service.Service, strengths map[string]float64, stats *Stats) error {
	log.Printf("🗳️  Driving %d rating sessions with %d workers...", cfg.Raters, cfg.Workers)

	p := &progress{total: cfg.Raters, verbose: cfg.Verbose}
	sessionChan := make(chan int, cfg.Workers)
	var wg sync.WaitGroup

	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range sessionChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				sessionID := fmt.Sprintf("rater-%03d", idx+1)
				raterRng := rand.New(rand.NewSource(cfg.Seed + int64(idx+1)*raterSeedStride)) //nolint:gosec // reproducible simulation
				done, err := driveSession(ctx, svc, strengths, sessionID, raterRng, p)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.Printf("⚠️  Session %s failed: %v", sessionID, err)
					continue
				}
				if done {
					p.completed.Add(1)
				} else {
					p.exhausted.Add(1)
				}
			}
		}()
	}

	// Feed session indices to the workers
	go func() {
		defer close(sessionChan)
		for i := 0; i < cfg.Raters; i++ {
			select {
			case <-ctx.Done():
				return
			case sessionChan <- i:
			}
		}
	}()

	wg.Wait()

	if !cfg.Verbose {
		fmt.Println() // New line after the progress indicator
	}

	stats.SessionsCompleted = int(p.completed.Load())
	stats.SessionsExhausted = int(p.exhausted.Load())
	stats.VotesSubmitted = int(p.submitted.Load())
	stats.VotesAccepted = int(p.accepted.Load())
	stats.VotesDuplicate = int(p.duplicate.Load())
	stats.VotesRejected = int(p.rejected.Load())

	log.Printf(`✅ Session driving completed:
   Completed: %d
   Exhausted: %d
   Votes: %d
`, stats.SessionsCompleted, stats.SessionsExhausted, stats.VotesAccepted)

	if ctx.Err() != nil {
		return fmt.Errorf("context cancelled during session driving: %w", ctx.Err())
	}
	return nil
}

// driveSession plays one rater's session until the scheduler declares it
// complete, reporting true, or the selection space runs out, reporting
// false. Winners are sampled from the latent strengths.
func driveSession(ctx context.Context, svc *service.Service, strengths map[string]float64, sessionID string, rng *rand.Rand, p *progress) (bool, error) {
	for unit := 1; unit <= sessionUnitCap; unit++ {
		next, err := svc.NextUnit(ctx, sessionID)
		if err != nil {
			return false, fmt.Errorf("next unit: %w", err)
		}
		if next.Done {
			return true, nil
		}

		voteID := fmt.Sprintf("%s-v%04d", sessionID, unit)
		responseMs := responseTimeBaseMs + rng.Intn(responseTimeRangeMs)

		var res types.VoteResult
		switch {
		case next.Pair != nil:
			left, right := next.Pair.LeftItemID, next.Pair.RightItemID
			winner, loser := left, right
			if !samplePairWinner(rng, strengths[left], strengths[right]) {
				winner, loser = right, left
			}
			res, err = svc.SubmitVote(ctx, service.Vote{
				VoteID:         voteID,
				WinnerID:       winner,
				LoserID:        loser,
				LeftItemID:     left,
				RightItemID:    right,
				SessionID:      sessionID,
				ResponseTimeMs: responseMs,
			})
		case next.Quad != nil:
			res, err = svc.SubmitQuadVote(ctx, service.QuadVote{
				VoteID:         voteID,
				WinnerID:       sampleQuadWinner(rng, next.Quad.ItemIDs, strengths),
				ItemIDs:        next.Quad.ItemIDs,
				SessionID:      sessionID,
				ResponseTimeMs: responseMs,
			})
		default:
			return false, nil // selection space exhausted
		}

		p.submitted.Add(1)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return false, err
			}
			p.rejected.Add(1)
		case res.Duplicate:
			p.duplicate.Add(1)
		default:
			p.accepted.Add(1)
		}
		p.maybeReport()
	}
	return false, fmt.Errorf("session %s exceeded %d units", sessionID, sessionUnitCap)
}

// samplePairWinner reports whether the left item wins a sampled pairwise
// matchup. Unknown or zeroed strengths fall back to a coin flip.
func samplePairWinner(rng *rand.Rand, left, right float64) bool {
	total := left + right
	if total <= 0 {
		return rng.Intn(2) == 0
	}
	return rng.Float64()*total < left
}

// sampleQuadWinner picks the winner of a quadruplet display with chances
// proportional to latent strength.
func sampleQuadWinner(rng *rand.Rand, ids []string, strengths map[string]float64) string {
	total := 0.0
	for _, id := range ids {
		total += strengths[id]
	}
	if total <= 0 {
		return ids[rng.Intn(len(ids))]
	}

	r := rng.Float64() * total
	for _, id := range ids {
		r -= strengths[id]
		if r < 0 {
			return id
		}
	}
	return ids[len(ids)-1]
}

// saveReport writes the final study report as JSON.
func saveReport(ctx context.Context, cfg *Config, items []Item, rankings []types.Entry, verdict any, tau float64) error {
	filename := cfg.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "study_report_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	verdictJSON, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict: %w", err)
	}

	data, err := json.MarshalIndent(report{
		GeneratedAt: time.Now().UTC(),
		Seed:        cfg.Seed,
		Mode:        cfg.Mode,
		KendallTau:  tau,
		Items:       items,
		Rankings:    rankings,
		Verdict:     verdictJSON,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(filename, data, logFilePermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	logger.Get().Info(ctx, "report saved", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the closing statistics.
func displayFinalStats(ctx context.Context, stats *Stats, engine types.StudyStats) {
	var votesPerSecond float64
	if stats.Duration > 0 {
		votesPerSecond = float64(stats.VotesAccepted) / stats.Duration.Seconds()
	}
	var completionRate float64
	if total := stats.SessionsCompleted + stats.SessionsExhausted; total > 0 {
		completionRate = float64(stats.SessionsCompleted) / float64(total) * percentageMultiplier
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("itemsRegistered", stats.ItemsRegistered),
		logger.Int("sessionsCompleted", stats.SessionsCompleted),
		logger.Int("sessionsExhausted", stats.SessionsExhausted),
		logger.Int("votesSubmitted", stats.VotesSubmitted),
		logger.Int("votesAccepted", stats.VotesAccepted),
		logger.Int("votesDuplicate", stats.VotesDuplicate),
		logger.Int("votesRejected", stats.VotesRejected),
		logger.Int("comparisonsRecorded", engine.Comparisons),
		logger.Int("estimatorRuns", engine.EstimatorRuns),
		logger.Bool("lastFitConverged", engine.LastConverged),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("completionRate", completionRate),
		logger.Float64("votesPerSecond", votesPerSecond))
}
