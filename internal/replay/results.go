package replay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/highleverage/momentum/internal/app"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/types"
)

// collectResults retrieves the per-player scores of every submitted moment
// concurrently. Moments the engine rejected, for example on the gap policy,
// have no results and are counted as failed retrievals.
func collectResults(ctx context.Context, config *Config, svc *service.Service, events []Event, stats *Stats) ([]model.MSSResult, error) {
	log.Printf("🏆 Retrieving results for %d moments with %d workers...", len(events), config.Workers)

	momentIDs := make([]string, len(events))
	for i, event := range events {
		momentIDs[i] = event.EventID
	}

	// Results storage, one slot per moment so workers never contend.
	perMoment := make([][]model.MSSResult, len(momentIDs))
	var (
		retrieved int64
		failed    int64
	)

	// Progress reporting
	lastReport := time.Now().UnixNano()

	// Create worker pool
	momentChan := make(chan int, config.Workers*WorkerChannelMultiplier) // Send indices instead of IDs
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for index := range momentChan {
				select {
				case <-ctx.Done():
					return
				default:
					momentID := momentIDs[index]
					results, err := svc.ResultsForMoment(ctx, momentID)

					if err != nil {
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Printf("⚠️  No results for moment %s: %v", momentID, err)
						}
					} else {
						perMoment[index] = results
						atomic.AddInt64(&retrieved, 1)
					}

					// Progress reporting
					now := time.Now().UnixNano()
					prev := atomic.LoadInt64(&lastReport)
					if now-prev >= int64(ProgressInterval) && atomic.CompareAndSwapInt64(&lastReport, prev, now) {
						ret := atomic.LoadInt64(&retrieved)
						fail := atomic.LoadInt64(&failed)
						total := ret + fail

						if config.Verbose {
							log.Printf("📊 Result progress: %d/%d retrieved (success: %d, failed: %d)",
								total, len(momentIDs), ret, fail)
						} else {
							fmt.Printf("\r🏆 Results: %d/%d retrieved (success: %d, failed: %d)",
								total, len(momentIDs), ret, fail)
						}
					}
				}
			}
		}()
	}

	// Send moment indices to workers
	go func() {
		defer close(momentChan)
		for i := range momentIDs {
			select {
			case <-ctx.Done():
				return
			case momentChan <- i:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Flatten to one list of per-player scores
	flat := make([]model.MSSResult, 0, len(momentIDs))
	for _, results := range perMoment {
		flat = append(flat, results...)
	}

	// Update stats
	stats.ResultsRetrieved = len(flat)

	log.Printf(`✅ Result retrieval completed:
   Moments with results: %d
   Moments without: %d
   Player scores: %d
`, int(atomic.LoadInt64(&retrieved)), int(atomic.LoadInt64(&failed)), len(flat))

	return flat, nil
}

// topShifts retrieves the ranked leaderboard of the largest shifts.
func topShifts(ctx context.Context, config *Config, svc *service.Service, stats *Stats) ([]types.RankedShift, error) {
	log.Printf("🥇 Getting top %d shifts...", config.TopN)

	shifts, err := svc.TopShifts(ctx, config.TopN)
	if err != nil {
		return nil, fmt.Errorf("top shifts query failed: %w", err)
	}

	stats.ShiftsRetrieved = len(shifts)
	log.Printf("✅ Retrieved %d ranked shifts", len(shifts))

	return shifts, nil
}
