package replay

import (
	"context"
	"fmt"
	"log"

	service "github.com/highleverage/momentum/internal/app"
	"github.com/highleverage/momentum/internal/domain/evaluate"
	"github.com/highleverage/momentum/internal/domain/model"
)

// calibrate closes the loop over the scored season: it bootstraps a first
// weight set and trajectory model from the held-out outcomes, issues a
// prediction for every scored result under that model, then settles the
// predictions and refits.
//
// The engine starts without a trained model, so the bootstrap feeds Refit
// bare records carrying only scores, baselines, and outcomes; that is enough
// to mint the first versions and makes Predict callable.
func calibrate(ctx context.Context, config *Config, svc *service.Service, source evaluate.OutcomeSource, results []model.MSSResult, stats *Stats) error {
	log.Printf("🧮 Bootstrapping calibration from %d scored results...", len(results))

	records := make([]model.PredictionRecord, 0, len(results))
	outcomes := make(map[evaluate.Key][]float64, len(results))
	for _, res := range results {
		obs, err := source.ObservedTrajectory(ctx, res.MomentID, res.PlayerID, holdoutPeriods)
		if err != nil || len(obs) == 0 {
			continue
		}
		records = append(records, model.PredictionRecord{
			MomentID: res.MomentID,
			PlayerID: res.PlayerID,
			Score:    res.Score,
			Baseline: res.Baseline,
		})
		outcomes[evaluate.Key{MomentID: res.MomentID, PlayerID: res.PlayerID}] = obs
	}
	if len(records) == 0 {
		return fmt.Errorf("no scored result has an observed outcome to calibrate against")
	}

	bootstrap, err := svc.Refit(ctx, records, outcomes)
	if err != nil {
		return fmt.Errorf("bootstrap refit failed: %w", err)
	}
	log.Printf("✅ Bootstrap calibration: weights %s, model %s (w1=%.3f w2=%.3f, %d training rows)",
		bootstrap.Weights.Version, bootstrap.ModelVersion,
		bootstrap.Weights.W1, bootstrap.Weights.W2, len(records))

	log.Printf("🔮 Issuing predictions for %d results...", len(results))
	issued := 0
	skipped := 0
	for _, res := range results {
		if _, err := svc.Predict(ctx, res, ""); err != nil {
			skipped++
			if config.Verbose {
				log.Printf("⚠️  Prediction failed for %s/%s: %v", res.MomentID, res.PlayerID, err)
			}
			continue
		}
		issued++
	}
	stats.PredictionsIssued = issued
	log.Printf("✅ Issued %d predictions (%d failed)", issued, skipped)

	log.Printf("📐 Settling predictions against held-out outcomes and refitting...")
	final, err := svc.RefitSettled(ctx)
	if err != nil {
		return fmt.Errorf("refit over settled predictions failed: %w", err)
	}

	stats.PredictionsSettled = final.Report.Evaluated
	stats.WeightVersion = final.Weights.Version
	stats.ModelVersion = final.ModelVersion

	log.Printf(`✅ Calibration completed:
   Weights: %s (w1=%.3f w2=%.3f)
   Model: %s
   Evaluated: %d
   Skipped: %d
   Mean abs deviation: %.4f
`, final.Weights.Version, final.Weights.W1, final.Weights.W2,
		final.ModelVersion, final.Report.Evaluated, final.Report.Skipped, final.Report.MeanAbsDev)

	return nil
}
