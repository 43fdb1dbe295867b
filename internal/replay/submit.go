package replay

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/highleverage/momentum/internal/app"
)

// submitMoments feeds the generated moments into the engine intake using a
// worker pool. Acceptance only means the moment entered the queue; scoring is
// asynchronous and drainEngine waits for it.
func submitMoments(ctx context.Context, config *Config, svc *service.Service, events []Event, stats *Stats) error {
	log.Printf("📤 Submitting %d moments with %d workers...", len(events), config.Workers)

	// Counters for statistics
	var (
		accepted  int64
		failed    int64
		submitted int64
	)

	// Progress reporting. The slot holds the last report time in unix nanos;
	// workers claim a report by compare-and-swap so only one of them prints.
	lastReport := time.Now().UnixNano()

	// Create worker pool
	eventChan := make(chan Event, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for event := range eventChan {
				select {
				case <-ctx.Done():
					return
				default:
					ok := svc.Submit(ctx, event.scoreRequest())

					// Update counters
					atomic.AddInt64(&submitted, 1)
					if ok {
						atomic.AddInt64(&accepted, 1)
					} else {
						atomic.AddInt64(&failed, 1)
					}

					// Progress reporting
					now := time.Now().UnixNano()
					prev := atomic.LoadInt64(&lastReport)
					if now-prev >= int64(ProgressInterval) && atomic.CompareAndSwapInt64(&lastReport, prev, now) {
						total := atomic.LoadInt64(&submitted)
						acc := atomic.LoadInt64(&accepted)
						fail := atomic.LoadInt64(&failed)

						if config.Verbose {
							log.Printf("📊 Progress: %d/%d submitted (accepted: %d, failed: %d)",
								total, len(events), acc, fail)
						} else {
							fmt.Printf("\r📤 Submitted: %d/%d (accepted: %d, failed: %d)",
								total, len(events), acc, fail)
						}
					}
				}
			}
		}()
	}

	// Send moments to workers
	go func() {
		defer close(eventChan)
		for _, event := range events {
			select {
			case <-ctx.Done():
				return
			case eventChan <- event:
			}
		}
	}()

	// Wait for all workers to complete
	wg.Wait()

	// Final progress report
	if !config.Verbose {
		fmt.Println() // New line after progress indicator
	}

	// Update stats
	stats.MomentsSubmitted = int(atomic.LoadInt64(&submitted))
	stats.MomentsAccepted = int(atomic.LoadInt64(&accepted))
	stats.MomentsFailed = int(atomic.LoadInt64(&failed))

	log.Printf(`✅ Moment submission completed:
   Accepted: %d
   Failed: %d
`, stats.MomentsAccepted, stats.MomentsFailed)

	return nil
}
