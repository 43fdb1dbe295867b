package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/highleverage/momentum/internal/adapters/statfeed"
	service "github.com/highleverage/momentum/internal/app"
	"github.com/highleverage/momentum/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	feedFilePermission  = 0600
)

// Run executes the complete replay: a synthetic season is generated or
// loaded, scored by an in-process engine, calibrated against its held-out
// outcomes, and verified.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{
		StartTime: time.Now(),
	}

	if config.Moments < 1 || config.Batters < 1 || config.Pitchers < 1 {
		return fmt.Errorf("moments, batters, and pitchers must all be positive")
	}
	if config.Workers < 1 {
		config.Workers = 1
	}

	logger.Get().Info(ctx, "starting momentum replay",
		logger.Int("moments", config.Moments),
		logger.Int("batters", config.Batters),
		logger.Int("pitchers", config.Pitchers),
		logger.Any("seed", config.Seed),
		logger.Int("workers", config.Workers),
		logger.Int("topN", config.TopN),
		logger.String("logFile", config.LogFile),
		logger.Any("verbose", config.Verbose))

	// Step 1: Generate a season, or load one saved by an earlier run
	var (
		feed      statfeed.Feed
		store     *statfeed.Store
		events    []Event
		generated bool
		err       error
	)
	if config.InputFile != "" {
		store, events, err = loadSeason(config, stats)
		if err != nil {
			return fmt.Errorf("season load failed: %w", err)
		}
	} else {
		feed, events, err = generateSeason(ctx, config, stats)
		if err != nil {
			return fmt.Errorf("season generation failed: %w", err)
		}
		store = statfeed.NewStore(feed)
		generated = true
	}

	// Step 2: Build and start the engine
	svc, err := buildEngine(ctx, config, store, len(events))
	if err != nil {
		return fmt.Errorf("engine start failed: %w", err)
	}
	defer svc.Stop()

	// Step 3: Submit moments concurrently
	if err := submitMoments(ctx, config, svc, events, stats); err != nil {
		return fmt.Errorf("moment submission failed: %w", err)
	}

	// Step 4: Wait for scoring to finish
	if err := drainEngine(ctx, svc); err != nil {
		return fmt.Errorf("engine drain failed: %w", err)
	}

	// Step 5: Retrieve per-player results concurrently
	results, err := collectResults(ctx, config, svc, events, stats)
	if err != nil {
		return fmt.Errorf("result retrieval failed: %w", err)
	}

	// Step 6: Get the shift leaderboard
	shifts, err := topShifts(ctx, config, svc, stats)
	if err != nil {
		return fmt.Errorf("leaderboard retrieval failed: %w", err)
	}

	// Step 7: Calibrate against the held-out outcomes
	if err := calibrate(ctx, config, svc, store, results, stats); err != nil {
		return fmt.Errorf("calibration failed: %w", err)
	}

	// Step 8: Verify results
	if err := verifySeason(ctx, config, svc, results, shifts, stats); err != nil {
		return fmt.Errorf("result verification failed: %w", err)
	}

	// Step 9: Save the season so it can be replayed
	if generated {
		if err := saveMomentsToFile(ctx, config, events); err != nil {
			logger.Get().Warn(ctx, "failed to save moments to file", logger.Error(err))
		}
		if err := saveFeedToFile(ctx, config, feed); err != nil {
			logger.Get().Warn(ctx, "failed to save stat feed to file", logger.Error(err))
		}
	}

	// Final statistics
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	displayFinalStats(stats)

	logger.Get().Info(ctx, "replay completed successfully")
	return nil
}

// loadSeason reads a previously saved season: the moments array plus the stat
// feed that backed it. Replaying both reproduces a run exactly, scored under
// whatever engine configuration is in force now.
func loadSeason(config *Config, stats *Stats) (*statfeed.Store, []Event, error) {
	if config.FeedFile == "" {
		return nil, nil, fmt.Errorf("replaying a moments file requires the matching stat feed (-feed)")
	}

	log.Printf("📂 Loading moments from %s and stat feed from %s...", config.InputFile, config.FeedFile)

	data, err := os.ReadFile(config.InputFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read moments file: %w", err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, nil, fmt.Errorf("failed to parse moments file: %w", err)
	}

	store, err := statfeed.Load(config.FeedFile)
	if err != nil {
		return nil, nil, err
	}

	stats.MomentsGenerated = len(events)
	log.Printf("✅ Loaded %d moments and a %d-player stat feed", len(events), store.Players())

	return store, events, nil
}

// buildEngine assembles and starts an in-process engine over the stat feed
// store. The store backs both context enrichment and outcome settlement, so
// the whole pipeline runs with no external service.
func buildEngine(ctx context.Context, config *Config, store *statfeed.Store, eventCount int) (*service.Service, error) {
	if !config.Verbose {
		// Keep engine chatter out of the replay output.
		logger.SetLevelString("warn")
	}

	// The queue holds the whole season so submission never hits backpressure.
	queueSize := eventCount
	if queueSize < MinEngineQueue {
		queueSize = MinEngineQueue
	}

	svc := service.New(
		service.WithWorkerCount(config.Workers),
		service.WithQueueSize(queueSize),
		service.WithHistorySource(store),
		service.WithOutcomeSource(store),
		service.WithLogger(logger.Get()),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, err
	}

	log.Printf("🚀 Engine started: %d workers, queue %d, %d players in feed",
		config.Workers, queueSize, store.Players())
	return svc, nil
}

// drainEngine waits until the queue is empty and the result count stops
// moving. An empty queue alone is not enough: the last dequeued moments may
// still be in flight inside workers, and rejected moments never produce a
// result, so the expected count cannot be compared against directly.
func drainEngine(ctx context.Context, svc *service.Service) error {
	log.Println("⏳ Waiting for the engine to drain...")

	deadline := time.Now().Add(DrainTimeout)
	lastResults := -1
	stable := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(DrainPollInterval):
		}

		engineStats := svc.GetStats()
		queueLength := statInt(engineStats, "queueLength")
		results := statInt(engineStats, "results")

		if queueLength == 0 && results == lastResults {
			stable++
			if stable >= DrainStableChecks {
				log.Printf("✅ Engine drained: %d player scores in the ledger", results)
				return nil
			}
		} else {
			stable = 0
		}
		lastResults = results

		if time.Now().After(deadline) {
			return fmt.Errorf("engine still busy after %s (queue %d, results %d)",
				DrainTimeout, queueLength, results)
		}
	}
}

// statInt reads an integer stat, tolerating a missing key.
func statInt(stats map[string]interface{}, key string) int {
	if v, ok := stats[key].(int); ok {
		return v
	}
	return 0
}

// saveMomentsToFile saves the generated moments to a JSON file.
func saveMomentsToFile(ctx context.Context, config *Config, events []Event) error {
	if len(events) == 0 {
		return fmt.Errorf("no moments to save")
	}

	// Determine output filename
	filename := config.OutputFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "replay_moments_" + timestamp + ".json"
	}

	// Ensure the directory exists
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// Write moments to file
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if err := file.Close(); err != nil {
			logger.Get().Error(context.Background(), "failed to close file", logger.Error(err))
		}
	}()

	// Write JSON array
	if _, err := file.WriteString("[\n"); err != nil {
		return fmt.Errorf("failed to write opening bracket: %w", err)
	}

	for i, event := range events {
		jsonData, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal moment %d: %w", i, err)
		}

		if _, err := file.Write(jsonData); err != nil {
			return fmt.Errorf("failed to write moment %d: %w", i, err)
		}

		// Add comma except for last moment
		if i < len(events)-1 {
			if _, err := file.WriteString(","); err != nil {
				return fmt.Errorf("failed to write comma: %w", err)
			}
		}
		_, _ = file.WriteString("\n")
	}

	if _, err := file.WriteString("]\n"); err != nil {
		return fmt.Errorf("failed to write closing bracket: %w", err)
	}

	logger.Get().Info(ctx, "moments saved to file", logger.String("filename", filename))
	return nil
}

// saveFeedToFile writes the stat feed beside the moments so a later run can
// replay the same season with -input and -feed.
func saveFeedToFile(ctx context.Context, config *Config, feed statfeed.Feed) error {
	filename := config.FeedFile
	if filename == "" {
		timestamp := time.Now().Format("20060102_150405")
		filename = "replay_feed_" + timestamp + ".json"
	}

	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(feed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal stat feed: %w", err)
	}
	if err := os.WriteFile(filename, data, feedFilePermission); err != nil {
		return fmt.Errorf("failed to write stat feed: %w", err)
	}

	logger.Get().Info(ctx, "stat feed saved to file", logger.String("filename", filename))
	return nil
}

// displayFinalStats prints the final replay statistics.
func displayFinalStats(stats *Stats) {
	var successRate, momentsPerSecond float64

	if stats.MomentsSubmitted > 0 {
		successRate = float64(stats.MomentsAccepted) / float64(stats.MomentsSubmitted) * PercentageMultiplier
	}

	if stats.Duration > 0 {
		momentsPerSecond = float64(stats.MomentsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "final statistics",
		logger.Int("momentsGenerated", stats.MomentsGenerated),
		logger.Int("momentsSubmitted", stats.MomentsSubmitted),
		logger.Int("momentsAccepted", stats.MomentsAccepted),
		logger.Int("momentsFailed", stats.MomentsFailed),
		logger.Int("resultsRetrieved", stats.ResultsRetrieved),
		logger.Int("shiftsRetrieved", stats.ShiftsRetrieved),
		logger.Int("predictionsIssued", stats.PredictionsIssued),
		logger.Int("predictionsSettled", stats.PredictionsSettled),
		logger.String("weightVersion", stats.WeightVersion),
		logger.String("modelVersion", stats.ModelVersion),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("successRate", successRate),
		logger.Float64("momentsPerSecond", momentsPerSecond))
}
