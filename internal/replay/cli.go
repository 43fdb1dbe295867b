package replay

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/highleverage/momentum/pkg/logger"
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
		logFile = "replay_log_" + timestamp + ".log"
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

// ShowHelp prints usage information for the replay tool.
func ShowHelp() {
	os.Stdout.WriteString(`Momentum Replay Tool
====================

Synthesizes a season of pivotal moments, runs them through the full
scoring pipeline, then fits, predicts, settles, and refits the models.

Usage:
  go run cmd/replay/main.go [options]

Options:
  -moments int
        Number of pivotal moments to generate (default 2000)
  -batters int
        Batters on the synthetic roster (default 150)
  -pitchers int
        Pitchers on the synthetic roster (default 100)
  -seed int
        Seed for the season generator (default 1)
  -top int
        Number of top shifts to fetch (default 20)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -output string
        Output file for generated moments (default: replay_moments_TIMESTAMP.json)
  -feed string
        Stat feed file; written when generating, read with -input
        (default: replay_feed_TIMESTAMP.json)
  -input string
        Previously saved moments to replay instead of generating
  -log string
        Log file for replay output (default: replay_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Replay with default settings
  go run cmd/replay/main.go

  # A bigger season with more workers
  go run cmd/replay/main.go -moments 20000 -workers 16

  # Reproduce a run exactly
  go run cmd/replay/main.go -seed 42 -output run42_moments.json -feed run42_feed.json

  # Replay a saved season
  go run cmd/replay/main.go -input run42_moments.json -feed run42_feed.json
`)
}
