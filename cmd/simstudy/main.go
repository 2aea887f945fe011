package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	app "github.com/scAIentist/sciblind-sub001/internal/app"
	"github.com/scAIentist/sciblind-sub001/internal/config"
	"github.com/scAIentist/sciblind-sub001/internal/simulation"
	"github.com/scAIentist/sciblind-sub001/pkg/logger"
)

// Default simulation profile.
const (
	defaultNumItems = 20
	defaultRaters   = 25
	defaultTopN     = 10
	defaultTimeout  = 5 * time.Minute
)

func main() {
	var (
		numItems   = flag.Int("items", defaultNumItems, "Number of items in the study population")
		raters     = flag.Int("raters", defaultRaters, "Number of rater sessions to drive")
		workers    = flag.Int("workers", runtime.NumCPU(), "Number of concurrent rater goroutines")
		mode       = flag.String("mode", "", "Comparison mode, pair or quad (default from config)")
		seed       = flag.Int64("seed", 0, "Random seed; 0 derives one from the clock")
		topN       = flag.Int("top", defaultTopN, "Number of top entries to fetch from the leaderboard")
		timeout    = flag.Duration("timeout", defaultTimeout, "Overall simulation budget")
		outputFile = flag.String("output", "", "Output file for the study report (default: study_report_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for simulation output (default: study_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulation.ShowHelp()
		return
	}

	// The engine's own gauges replace the default runtime collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Setup logging
	if err := simulation.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		if err := logger.Sync(); err != nil {
			logger.Error(err)
		}
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM, bounded by the budget.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	// Engine policy comes from the environment (defaults -> optional
	// file -> env); the simulation flags only shape the workload.
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		return
	}
	if *mode != "" {
		cfg.ComparisonMode = *mode
		if err := cfg.Validate(); err != nil {
			os.Stderr.WriteString("Invalid mode: " + err.Error() + "\n")
			return
		}
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	// Create and start the engine with the loaded policy; a fixed
	// scheduler seed keeps runs reproducible.
	svc := app.New(
		app.WithLogger(loggerInstance),
		app.WithStudyConfig(cfg.StudyConfig()),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithEstimateEveryVotes(cfg.EstimateEveryVotes),
		app.WithEstimatorTolerance(cfg.EstimatorTolerance),
		app.WithEstimatorMaxIterations(cfg.EstimatorMaxIterations),
		app.WithTriadItemLimit(cfg.TriadItemLimit),
		app.WithConfirmationMargin(cfg.ConfirmationMargin),
		app.WithSchedulerSeed(*seed),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("Failed to start engine: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Create the simulation profile
	simCfg := &simulation.Config{
		NumItems:   *numItems,
		Raters:     *raters,
		Workers:    *workers,
		Mode:       cfg.ComparisonMode,
		Seed:       *seed,
		TopN:       *topN,
		Timeout:    *timeout,
		OutputFile: *outputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the study
	if err := simulation.Run(ctx, simCfg, svc); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}
