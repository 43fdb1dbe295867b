// Package predict fits and serves the post-moment trajectory model: a linear
// effect over the score components, faded across the horizon by a decay
// profile, with per-period confidence intervals from training residuals.
// Fitted models are immutable; refits mint new versions.
package predict

import (
	"fmt"
	"math"
	"time"

	"github.com/highleverage/momentum/internal/domain/model"
)

// Default model configuration constants.
const (
	defaultHorizon      = 10
	defaultHorizonDecay = 0.85
	defaultRidge        = 1e-3
	defaultConfidenceZ  = 1.96
	featureCount        = 6 // intercept, impact, narrative, multiplier, baseline, role
)

// Features are the model inputs distilled from one scored moment.
type Features struct {
	Impact     float64
	Narrative  float64
	Multiplier float64
	Baseline   float64
	Role       model.Role
}

// FromResult extracts features from a composite result.
func FromResult(res model.MSSResult) Features {
	return Features{
		Impact:     res.Breakdown.Impact,
		Narrative:  res.Breakdown.Narrative,
		Multiplier: res.Breakdown.Multiplier,
		Baseline:   res.Baseline,
		Role:       res.Role,
	}
}

func (f Features) vector() []float64 {
	role := 0.0
	if f.Role == model.RoleBatter {
		role = 1
	}
	return []float64{1, f.Impact, f.Narrative, f.Multiplier, f.Baseline, role}
}

// Sample is one training example: the features of a scored moment plus the
// performance values observed in the periods after it.
type Sample struct {
	Features Features
	Observed []float64
}

// Model is one immutable fitted trajectory model.
type Model struct {
	Version     string    `json:"version"`
	Theta       []float64 `json:"theta"` // effect coefficients over the feature vector
	Shape       []float64 `json:"shape"` // per-period decay profile
	Sigma       []float64 `json:"sigma"` // per-period residual deviation
	Horizon     int       `json:"horizon"`
	ConfidenceZ float64   `json:"confidence_z"`
	Samples     int       `json:"samples"`
	CreatedAt   time.Time `json:"created_at"`
}

// Predict projects the expected trajectory over the model horizon: baseline
// plus the faded moment effect, bracketed by the per-period interval.
func (m *Model) Predict(f Features, baseline float64) []model.TrajectoryPoint {
	effect := dot(m.Theta, f.vector())
	out := make([]model.TrajectoryPoint, m.Horizon)
	for t := 0; t < m.Horizon; t++ {
		expected := baseline + effect*m.Shape[t]
		half := m.ConfidenceZ * m.Sigma[t]
		out[t] = model.TrajectoryPoint{
			Period:   t,
			Expected: expected,
			Lower:    expected - half,
			Upper:    expected + half,
		}
	}
	return out
}

// fit estimates the effect coefficients by ridge-regularized least squares.
// Each sample's observed deltas are first projected onto the decay shape,
// giving one effect target per sample; the normal equations then run over
// the feature vectors. Deterministic for a given sample order.
func fit(samples []Sample, horizon int, decay, ridge, z float64) (*Model, error) {
	shape := make([]float64, horizon)
	for t := range shape {
		shape[t] = math.Pow(decay, float64(t))
	}

	var xs [][]float64
	var targets []float64
	for _, s := range samples {
		target, ok := projectEffect(s, shape)
		if !ok {
			continue
		}
		xs = append(xs, s.Features.vector())
		targets = append(targets, target)
	}
	if len(xs) == 0 {
		return nil, ErrNoTrainingData
	}

	theta, err := solveNormal(xs, targets, ridge)
	if err != nil {
		return nil, fmt.Errorf("fit trajectory model: %w", err)
	}

	sigma := residualDeviation(samples, theta, shape, horizon)
	return &Model{
		Theta:       theta,
		Shape:       shape,
		Sigma:       sigma,
		Horizon:     horizon,
		ConfidenceZ: z,
		Samples:     len(xs),
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// projectEffect reduces one sample's observed deltas to a single effect
// magnitude: the least-squares projection of the deltas onto the shape.
func projectEffect(s Sample, shape []float64) (float64, bool) {
	var num, den float64
	for t, v := range s.Observed {
		if t >= len(shape) {
			break
		}
		delta := v - s.Features.Baseline
		num += delta * shape[t]
		den += shape[t] * shape[t]
	}
	if den == 0 {
		return 0, false
	}
	return num / den, true
}

// residualDeviation computes the per-period spread of observed deltas around
// the fitted effect. Periods nobody observed inherit the previous period's
// deviation.
func residualDeviation(samples []Sample, theta, shape []float64, horizon int) []float64 {
	sum := make([]float64, horizon)
	count := make([]int, horizon)
	for _, s := range samples {
		effect := dot(theta, s.Features.vector())
		for t, v := range s.Observed {
			if t >= horizon {
				break
			}
			r := (v - s.Features.Baseline) - effect*shape[t]
			sum[t] += r * r
			count[t]++
		}
	}
	sigma := make([]float64, horizon)
	for t := range sigma {
		if count[t] > 0 {
			sigma[t] = math.Sqrt(sum[t] / float64(count[t]))
		} else if t > 0 {
			sigma[t] = sigma[t-1]
		}
	}
	return sigma
}

// solveNormal solves (X'X + ridge*I) theta = X'y.
func solveNormal(xs [][]float64, ys []float64, ridge float64) ([]float64, error) {
	n := featureCount
	a := make([][]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
	}
	b := make([]float64, n)
	for k, x := range xs {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a[i][j] += x[i] * x[j]
			}
			b[i] += x[i] * ys[k]
		}
	}
	for i := 0; i < n; i++ {
		a[i][i] += ridge
	}
	theta, ok := gauss(a, b)
	if !ok {
		return nil, fmt.Errorf("singular normal equations")
	}
	return theta, nil
}

// gauss performs Gaussian elimination with partial pivoting in place.
func gauss(a [][]float64, b []float64) ([]float64, bool) {
	n := len(b)
	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, false
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for row := col + 1; row < n; row++ {
			factor := a[row][col] / a[col][col]
			for k := col; k < n; k++ {
				a[row][k] -= factor * a[col][k]
			}
			b[row] -= factor * b[col]
		}
	}
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * x[j]
		}
		x[i] = sum / a[i][i]
	}
	return x, true
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
