package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/highleverage/momentum/internal/replay"
)

// Default configuration constants.
const (
	defaultMoments       = 2000
	defaultBatters       = 150
	defaultPitchers      = 100
	defaultSeed          = 1
	defaultTopN          = 20
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultReplayTimeout = 10 * time.Minute
)

func main() {
	var (
		moments    = flag.Int("moments", defaultMoments, "Number of pivotal moments to generate")
		batters    = flag.Int("batters", defaultBatters, "Batters on the synthetic roster")
		pitchers   = flag.Int("pitchers", defaultPitchers, "Pitchers on the synthetic roster")
		seed       = flag.Int64("seed", defaultSeed, "Seed for the season generator")
		topN       = flag.Int("top", defaultTopN, "Number of top shifts to fetch")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		outputFile = flag.String("output", "", "Output file for generated moments (default: replay_moments_TIMESTAMP.json)")
		feedFile   = flag.String("feed", "", "Stat feed file; written when generating, read with -input (default: replay_feed_TIMESTAMP.json)")
		inputFile  = flag.String("input", "", "Previously saved moments to replay instead of generating")
		logFile    = flag.String("log", "", "Log file for replay output (default: replay_log_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		replay.ShowHelp()
		return
	}

	// Setup logging
	if err := replay.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultReplayTimeout)
	defer cancel()

	// Create replay configuration
	config := &replay.Config{
		Moments:    *moments,
		Batters:    *batters,
		Pitchers:   *pitchers,
		Seed:       *seed,
		TopN:       *topN,
		Workers:    *workers,
		OutputFile: *outputFile,
		FeedFile:   *feedFile,
		InputFile:  *inputFile,
		LogFile:    *logFile,
		Verbose:    *verbose,
	}

	// Run the replay
	if err := replay.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Replay failed: " + err.Error() + "\n")
		return
	}
}
