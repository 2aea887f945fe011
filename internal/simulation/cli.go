package simulation

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/scAIentist/sciblind-sub001/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "study_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the study simulator.
func ShowHelp() {
	os.Stdout.WriteString(`SciBlind Study Simulator
========================

Drives a full blind-comparison study against the in-process engine:
registers a population with known latent strengths, plays rater
sessions through the scheduler, and checks the recovered ranking
against the latent order.

Usage:
  go run cmd/simstudy/main.go [options]

Options:
  -items int
        Number of items in the study population (default 20)
  -raters int
        Number of rater sessions to drive (default 25)
  -workers int
        Number of concurrent rater goroutines (default CPU cores)
  -mode string
        Comparison mode, "pair" or "quad" (default "pair")
  -seed int
        Random seed; 0 derives one from the clock
  -top int
        Number of top entries to fetch from the leaderboard (default 10)
  -timeout duration
        Overall simulation budget (default 5m)
  -output string
        Output file for the study report (default: study_report_TIMESTAMP.json)
  -log string
        Log file for simulation output (default: study_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate with default settings
  go run cmd/simstudy/main.go

  # A bigger study in quad mode
  go run cmd/simstudy/main.go -items 50 -raters 100 -mode quad

  # Reproducible run with a fixed seed
  go run cmd/simstudy/main.go -seed 42 -verbose

Engine policy (K-factor, exposure floors, estimator cadence) is read
from the environment with the SCIBLIND_ prefix, e.g. SCIBLIND_K_FACTOR.
`)
}
