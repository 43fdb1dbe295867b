package predict_test

import (
	"errors"
	"math"
	"testing"

	model "github.com/highleverage/momentum/internal/domain/model"
	predict "github.com/highleverage/momentum/internal/domain/predict"
	"github.com/smartystreets/goconvey/convey"
)

// syntheticSamples builds training data where the observed deltas follow the
// decay shape exactly with effect = 2 * impact.
func syntheticSamples(horizon int, decay float64) []predict.Sample {
	samples := make([]predict.Sample, 0, 10)
	for i := 1; i <= 10; i++ {
		impact := float64(i) / 10.0
		f := predict.Features{
			Impact:     impact,
			Narrative:  0,
			Multiplier: 1,
			Baseline:   0.5,
			Role:       model.RoleBatter,
		}
		obs := make([]float64, horizon)
		for t := 0; t < horizon; t++ {
			obs[t] = f.Baseline + (2*impact)*math.Pow(decay, float64(t))
		}
		samples = append(samples, predict.Sample{Features: f, Observed: obs})
	}
	return samples
}

func TestRegistryUntrained(t *testing.T) {
	convey.Convey("Given an empty registry", t, func() {
		r := predict.NewRegistry()

		convey.Convey("When asking for the latest model", func() {
			_, err := r.Model("")

			convey.Convey("Then a typed untrained error comes back", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(errors.Is(err, predict.ErrUntrained), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When asking for a version that never existed", func() {
			_, err := r.Model("m99")

			convey.Convey("Then the error names the version", func() {
				var ue *predict.UntrainedModelError
				convey.So(errors.As(err, &ue), convey.ShouldBeTrue)
				convey.So(ue.Version, convey.ShouldEqual, "m99")
			})
		})

		convey.Convey("Then the latest version is empty", func() {
			convey.So(r.Latest(), convey.ShouldEqual, "")
		})
	})
}

func TestFitRecoversEffect(t *testing.T) {
	convey.Convey("Given samples whose deltas follow the decay shape", t, func() {
		r := predict.NewRegistry(
			predict.WithHorizon(5),
			predict.WithHorizonDecay(0.8),
		)
		m, err := r.Fit(syntheticSamples(5, 0.8))

		convey.Convey("Then fitting succeeds and registers a version", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(m.Version, convey.ShouldEqual, "m1")
			convey.So(r.Latest(), convey.ShouldEqual, "m1")
			convey.So(m.Samples, convey.ShouldEqual, 10)
		})

		convey.Convey("Then predictions track the generating process", func() {
			f := predict.Features{Impact: 0.5, Multiplier: 1, Baseline: 0.5, Role: model.RoleBatter}
			points := m.Predict(f, 0.5)

			convey.So(points, convey.ShouldHaveLength, 5)
			convey.So(points[0].Period, convey.ShouldEqual, 0)
			// effect should be close to 2 * 0.5 = 1.0
			convey.So(points[0].Expected, convey.ShouldAlmostEqual, 1.5, 0.05)
			convey.So(points[4].Expected, convey.ShouldAlmostEqual, 0.5+1.0*math.Pow(0.8, 4), 0.05)
		})

		convey.Convey("Then a positive effect fades across the horizon", func() {
			f := predict.Features{Impact: 0.8, Multiplier: 1, Baseline: 0.5, Role: model.RoleBatter}
			points := m.Predict(f, 0.5)

			for i := 0; i < len(points)-1; i++ {
				convey.So(points[i].Expected, convey.ShouldBeGreaterThan, points[i+1].Expected)
			}
		})

		convey.Convey("Then intervals are tight on noiseless data", func() {
			f := predict.Features{Impact: 0.5, Multiplier: 1, Baseline: 0.5, Role: model.RoleBatter}
			points := m.Predict(f, 0.5)

			for _, p := range points {
				convey.So(p.Upper-p.Lower, convey.ShouldBeLessThan, 0.1)
				convey.So(p.Lower, convey.ShouldBeLessThanOrEqualTo, p.Expected)
				convey.So(p.Upper, convey.ShouldBeGreaterThanOrEqualTo, p.Expected)
			}
		})
	})
}

func TestFitDegenerateInput(t *testing.T) {
	convey.Convey("Given no samples at all", t, func() {
		r := predict.NewRegistry()
		_, err := r.Fit(nil)

		convey.Convey("Then fitting refuses", func() {
			convey.So(errors.Is(err, predict.ErrNoTrainingData), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given samples with no observed periods", t, func() {
		r := predict.NewRegistry()
		samples := []predict.Sample{
			{Features: predict.Features{Impact: 0.4}},
			{Features: predict.Features{Impact: 0.6}},
		}
		_, err := r.Fit(samples)

		convey.Convey("Then fitting refuses", func() {
			convey.So(errors.Is(err, predict.ErrNoTrainingData), convey.ShouldBeTrue)
		})
	})
}

func TestRegistryImmutableVersions(t *testing.T) {
	convey.Convey("Given a registry with one fitted model", t, func() {
		r := predict.NewRegistry(predict.WithHorizon(4))
		first, err := r.Fit(syntheticSamples(4, 0.85))
		convey.So(err, convey.ShouldBeNil)

		theta := append([]float64(nil), first.Theta...)

		convey.Convey("When a refit publishes a second version", func() {
			samples := syntheticSamples(4, 0.85)
			for i := range samples {
				for t := range samples[i].Observed {
					samples[i].Observed[t] *= 1.5
				}
			}
			second, err := r.Fit(samples)
			convey.So(err, convey.ShouldBeNil)

			convey.Convey("Then the new version becomes latest", func() {
				convey.So(second.Version, convey.ShouldEqual, "m2")
				convey.So(r.Latest(), convey.ShouldEqual, "m2")
				convey.So(r.Versions(), convey.ShouldEqual, 2)
			})

			convey.Convey("Then the first version is untouched and addressable", func() {
				got, err := r.Model("m1")
				convey.So(err, convey.ShouldBeNil)
				convey.So(got.Theta, convey.ShouldResemble, theta)
			})
		})
	})
}

func TestFeaturesFromResult(t *testing.T) {
	convey.Convey("Given a composite result", t, func() {
		res := model.MSSResult{
			MomentID: "m-1",
			PlayerID: "p-1",
			Role:     model.RolePitcher,
			Baseline: 0.71,
			Breakdown: model.Breakdown{
				Impact:     -0.525,
				Narrative:  -0.2,
				Multiplier: 1.15,
			},
		}

		f := predict.FromResult(res)

		convey.Convey("Then the feature vector mirrors the breakdown", func() {
			convey.So(f.Impact, convey.ShouldEqual, -0.525)
			convey.So(f.Narrative, convey.ShouldEqual, -0.2)
			convey.So(f.Multiplier, convey.ShouldEqual, 1.15)
			convey.So(f.Baseline, convey.ShouldEqual, 0.71)
			convey.So(f.Role, convey.ShouldEqual, model.RolePitcher)
		})
	})
}
