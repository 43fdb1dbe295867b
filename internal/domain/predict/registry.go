package predict

import (
	"strconv"
	"sync"
)

// RegistryOption applies a configuration option to the Registry.
type RegistryOption func(*Registry)

// WithHorizon sets how many post-moment periods a model projects.
func WithHorizon(h int) RegistryOption {
	return func(r *Registry) {
		if h > 0 {
			r.horizon = h
		}
	}
}

// WithHorizonDecay sets the per-period fade of the moment effect.
func WithHorizonDecay(d float64) RegistryOption {
	return func(r *Registry) {
		if d > 0 && d <= 1 {
			r.decay = d
		}
	}
}

// WithRidge sets the regularization strength of the fit.
func WithRidge(l float64) RegistryOption {
	return func(r *Registry) {
		if l >= 0 {
			r.ridge = l
		}
	}
}

// WithConfidenceZ sets the interval half-width in residual deviations.
func WithConfidenceZ(z float64) RegistryOption {
	return func(r *Registry) {
		if z > 0 {
			r.z = z
		}
	}
}

// Registry holds every fitted model version. Versions are immutable once
// published: a refit trains a fresh model and registers it as the new
// latest, leaving prior versions addressable.
type Registry struct {
	mu      sync.RWMutex
	models  map[string]*Model
	latest  string
	seq     int
	horizon int
	decay   float64
	ridge   float64
	z       float64
}

// NewRegistry creates an empty model registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		models:  make(map[string]*Model),
		horizon: defaultHorizon,
		decay:   defaultHorizonDecay,
		ridge:   defaultRidge,
		z:       defaultConfidenceZ,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fit trains a new model version on the samples and publishes it as the
// latest. Existing versions are never touched.
func (r *Registry) Fit(samples []Sample) (*Model, error) {
	m, err := fit(samples, r.horizon, r.decay, r.ridge, r.z)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	m.Version = "m" + strconv.Itoa(r.seq)
	r.models[m.Version] = m
	r.latest = m.Version
	return m, nil
}

// Model returns the requested version, or the latest for an empty version
// string. Unknown or never-fitted versions return an UntrainedModelError.
func (r *Registry) Model(version string) (*Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v := version
	if v == "" {
		v = r.latest
	}
	if v == "" {
		return nil, &UntrainedModelError{}
	}
	m, ok := r.models[v]
	if !ok {
		return nil, &UntrainedModelError{Version: version}
	}
	return m, nil
}

// Latest returns the newest fitted version id, empty when nothing has been
// fitted yet.
func (r *Registry) Latest() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Versions returns how many model versions the registry holds.
func (r *Registry) Versions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
