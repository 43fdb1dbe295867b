package replay

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	service "github.com/highleverage/momentum/internal/app"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/types"
)

// scoreBound mirrors the composer clamp; no stored score may sit outside it.
const scoreBound = 100.0

// verifySeason checks the scored season for internal consistency: composite
// score bounds, leaderboard ordering by shift magnitude, and calibration
// report sanity.
func verifySeason(ctx context.Context, config *Config, svc *service.Service, results []model.MSSResult, shifts []types.RankedShift, stats *Stats) error {
	log.Println("🔍 Verifying results...")

	if len(results) == 0 {
		return fmt.Errorf("no results to verify")
	}

	// Every composite score must respect the composer clamp.
	for _, res := range results {
		if math.Abs(res.Score) > scoreBound || math.IsNaN(res.Score) {
			return fmt.Errorf("score out of bounds for %s/%s: %.3f", res.MomentID, res.PlayerID, res.Score)
		}
	}

	// Sort results by shift magnitude (descending) to get the biggest swings
	sortedResults := make([]model.MSSResult, len(results))
	copy(sortedResults, results)
	sort.Slice(sortedResults, func(i, j int) bool {
		return math.Abs(sortedResults[i].Score) > math.Abs(sortedResults[j].Score)
	})

	// Verify leaderboard consistency if we have leaderboard data
	if len(shifts) > 0 {
		if err := verifyShiftConsistency(sortedResults, shifts); err != nil {
			log.Printf("⚠️  Leaderboard consistency warning: %v", err)
		} else {
			log.Println("✅ Leaderboard consistency verified")
		}
	}

	verifyReport(ctx, svc)

	// Display top shifts
	displayTopShifts(sortedResults, shifts, config.Verbose)

	log.Println("✅ Result verification completed")
	return nil
}

// verifyShiftConsistency checks that the leaderboard agrees with the scored
// results: magnitudes never grow down the list, ranks follow the ledger's
// dense ranking (tied magnitudes share a rank), and the top entry carries
// the largest magnitude seen anywhere.
func verifyShiftConsistency(sortedResults []model.MSSResult, shifts []types.RankedShift) error {
	if len(shifts) == 0 {
		return fmt.Errorf("empty leaderboard")
	}

	topResult := sortedResults[0]
	topShift := shifts[0]

	if math.Abs(topShift.Score) != math.Abs(topResult.Score) {
		return fmt.Errorf("top leaderboard magnitude (%.3f) does not match largest scored shift (%.3f)",
			math.Abs(topShift.Score), math.Abs(topResult.Score))
	}

	expectedRank := 1
	for i, shift := range shifts {
		if i > 0 {
			prev := math.Abs(shifts[i-1].Score)
			cur := math.Abs(shift.Score)
			if cur > prev {
				return fmt.Errorf("leaderboard not ordered by magnitude: entry %d outranks entry %d", i, i-1)
			}
			if cur != prev {
				expectedRank++
			}
		}
		if shift.Rank != expectedRank {
			return fmt.Errorf("leaderboard rank out of sequence: entry %d carries rank %d, want %d", i, shift.Rank, expectedRank)
		}
	}

	return nil
}

// verifyReport sanity-checks the latest calibration report. Findings are
// logged, never fatal: a degenerate batch is a property of the generated
// season, not a replay failure.
func verifyReport(ctx context.Context, svc *service.Service) {
	report, err := svc.LatestReport(ctx)
	if err != nil {
		log.Printf("⚠️  No calibration report to verify: %v", err)
		return
	}

	if report.Evaluated+report.Skipped != report.Batch {
		log.Printf("⚠️  Calibration report counts disagree: %d evaluated + %d skipped != %d batch",
			report.Evaluated, report.Skipped, report.Batch)
	}
	if report.MeanAbsDev < 0 || math.IsNaN(report.MeanAbsDev) {
		log.Printf("⚠️  Calibration report carries invalid mean abs deviation: %v", report.MeanAbsDev)
	}
	for _, flag := range report.Flags {
		log.Printf("⚠️  Calibration flag: %s", flag)
	}
	if report.CorrelationDefined {
		log.Printf("✅ Calibration report verified (run %s, correlation %.3f)", report.RunID, report.Correlation)
	} else {
		log.Printf("✅ Calibration report verified (run %s, correlation undefined)", report.RunID)
	}
}

// displayTopShifts shows the biggest momentum shifts from both views.
func displayTopShifts(sortedResults []model.MSSResult, shifts []types.RankedShift, verbose bool) {
	topN := 10
	if len(sortedResults) < topN {
		topN = len(sortedResults)
	}

	log.Printf("🏆 Top %d shifts from scored results:", topN)
	for i := 0; i < topN; i++ {
		res := sortedResults[i]
		log.Printf("   %d. %s (%s) - Score: %.2f", i+1, res.PlayerID, res.MomentID, res.Score)
	}

	if len(shifts) > 0 {
		leaderboardTopN := topN
		if len(shifts) < leaderboardTopN {
			leaderboardTopN = len(shifts)
		}

		log.Printf("🥇 Top %d shifts from leaderboard:", leaderboardTopN)
		for i := 0; i < leaderboardTopN; i++ {
			shift := shifts[i]
			log.Printf("   %d. %s (%s) - Score: %.2f", shift.Rank, shift.PlayerID, shift.MomentID, shift.Score)
		}
	}

	if verbose {
		// Show some statistics
		if len(sortedResults) > 0 {
			avg, max, min := scoreStats(sortedResults)

			log.Printf(`📊 Score statistics:
   Average: %.3f
   Maximum: %.3f
   Minimum: %.3f
`, avg, max, min)
		}
	}
}

// scoreStats computes the average, maximum, and minimum signed score.
func scoreStats(results []model.MSSResult) (avg, max, min float64) {
	if len(results) == 0 {
		return 0, 0, 0
	}

	sum := 0.0
	max = results[0].Score
	min = results[0].Score
	for _, res := range results {
		sum += res.Score
		if res.Score > max {
			max = res.Score
		}
		if res.Score < min {
			min = res.Score
		}
	}

	return sum / float64(len(results)), max, min
}
