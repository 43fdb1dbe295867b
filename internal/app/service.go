// Package service wires the momentum pipeline into one runnable engine:
// intake with dedupe and backpressure, the queue and worker pool, the scoring
// stages, the prediction registry and the calibration loop, all over a single
// ledger. It implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/highleverage/momentum/internal/adapters/ledger"
	"github.com/highleverage/momentum/internal/adapters/mq/queue"
	"github.com/highleverage/momentum/internal/adapters/mq/worker"
	"github.com/highleverage/momentum/internal/domain/dedupe"
	"github.com/highleverage/momentum/internal/domain/enrich"
	"github.com/highleverage/momentum/internal/domain/evaluate"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/internal/domain/predict"
	"github.com/highleverage/momentum/internal/domain/scoring"
	"github.com/highleverage/momentum/pkg/logger"
	"github.com/highleverage/momentum/pkg/metrics"
)

const systemMetricsInterval = 15 * time.Second

// Service implements the engine operations behind the HTTP API and the
// replay runner: building, scoring, predicting, evaluating and refitting.
type Service struct {
	mu sync.RWMutex

	// Core components
	ledger    ledger.Ledger
	ownLedger bool // true when Start opened the ledger itself
	deduper   dedupe.Deduper
	taskQueue queue.Queue
	pool      *worker.Pool

	// Pipeline stages
	enricher   *enrich.Enricher
	aggregator *scoring.Aggregator
	composer   *scoring.Composer
	registry   *predict.Registry
	phase      scoring.PhaseWeights

	// Injected collaborators
	history  enrich.HistorySource
	outcomes evaluate.OutcomeSource

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	postgresDSN    string
	trailingWindow int
	minHistory     int
	formWindow     int
	rookieMax      float64
	veteranMin     float64
	gapPolicy      enrich.GapPolicy
	halfLife       time.Duration
	sourceWeights  map[string]float64
	seedW1         float64
	seedW2         float64
	rookieFactor   float64
	primeFactor    float64
	veteranFactor  float64
	slumpFactor    float64
	multiplierCap  float64
	horizon        int
	horizonDecay   float64
	ridge          float64
	confidenceZ    float64

	// State
	weights   model.WeightSet
	started   bool
	startedAt time.Time
	stopCh    chan struct{}

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of scoring workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the task queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHistorySource injects the player history collaborator. Start fails
// without one.
func WithHistorySource(src enrich.HistorySource) Option {
	return func(s *Service) {
		if src != nil {
			s.history = src
		}
	}
}

// WithOutcomeSource injects the observed-outcome collaborator used to settle
// pending predictions.
func WithOutcomeSource(src evaluate.OutcomeSource) Option {
	return func(s *Service) {
		if src != nil {
			s.outcomes = src
		}
	}
}

// WithLedger injects a prebuilt ledger instead of letting Start select one.
// The caller keeps ownership: Stop will not close an injected ledger.
func WithLedger(led ledger.Ledger) Option {
	return func(s *Service) {
		if led != nil {
			s.ledger = led
		}
	}
}

// WithPostgresDSN selects the PostgreSQL ledger. Empty keeps the in-memory one.
func WithPostgresDSN(dsn string) Option {
	return func(s *Service) {
		s.postgresDSN = dsn
	}
}

// WithTrailingWindow sets the trailing appearance window the baseline averages
// over and the smallest history the gap policy accepts.
func WithTrailingWindow(window, minHistory int) Option {
	return func(s *Service) {
		if window > 0 && minHistory > 0 && minHistory <= window {
			s.trailingWindow = window
			s.minHistory = minHistory
		}
	}
}

// WithFormWindow sets how many recent appearances make up the form average.
func WithFormWindow(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.formWindow = n
		}
	}
}

// WithStageThresholds sets the season counts bounding the rookie and veteran
// buckets.
func WithStageThresholds(rookieMax, veteranMin float64) Option {
	return func(s *Service) {
		if rookieMax > 0 && veteranMin > rookieMax {
			s.rookieMax = rookieMax
			s.veteranMin = veteranMin
		}
	}
}

// WithGapPolicy sets the thin-history policy.
func WithGapPolicy(p enrich.GapPolicy) Option {
	return func(s *Service) {
		if p == enrich.GapFail || p == enrich.GapFlag {
			s.gapPolicy = p
		}
	}
}

// WithPhaseWeights sets the season-phase amplification factors.
func WithPhaseWeights(regular, postseason float64) Option {
	return func(s *Service) {
		if regular > 0 && postseason > regular {
			s.phase = scoring.PhaseWeights{Regular: regular, Postseason: postseason}
		}
	}
}

// WithSentimentHalfLife sets the recency half-life of sentiment observations.
func WithSentimentHalfLife(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.halfLife = d
		}
	}
}

// WithSourceWeights sets the sentiment source credibility weights.
func WithSourceWeights(weights map[string]float64) Option {
	return func(s *Service) {
		s.sourceWeights = weights
	}
}

// WithSeedWeights sets the composer weights seeded as version v0 when the
// ledger holds no weight set yet.
func WithSeedWeights(w1, w2 float64) Option {
	return func(s *Service) {
		if w1 >= 0 && w2 >= 0 && (w1 > 0 || w2 > 0) {
			s.seedW1 = w1
			s.seedW2 = w2
		}
	}
}

// WithStageFactors sets the career-stage context multipliers.
func WithStageFactors(rookie, prime, veteran float64) Option {
	return func(s *Service) {
		if rookie > 0 && prime > 0 && veteran > 0 {
			s.rookieFactor = rookie
			s.primeFactor = prime
			s.veteranFactor = veteran
		}
	}
}

// WithSlumpFactor sets the extra multiplier applied below the trailing baseline.
func WithSlumpFactor(f float64) Option {
	return func(s *Service) {
		if f > 0 {
			s.slumpFactor = f
		}
	}
}

// WithMultiplierCap bounds the context multiplier to [1/cap, cap].
func WithMultiplierCap(cap float64) Option {
	return func(s *Service) {
		if cap >= 1 {
			s.multiplierCap = cap
		}
	}
}

// WithPredictionHorizon sets how many post-moment periods predictions cover.
func WithPredictionHorizon(h int) Option {
	return func(s *Service) {
		if h > 0 {
			s.horizon = h
		}
	}
}

// WithHorizonDecay sets the per-period fade of the predicted moment effect.
func WithHorizonDecay(d float64) Option {
	return func(s *Service) {
		if d > 0 && d <= 1 {
			s.horizonDecay = d
		}
	}
}

// WithRidge sets the regularization strength of trajectory fits.
func WithRidge(l float64) Option {
	return func(s *Service) {
		if l >= 0 {
			s.ridge = l
		}
	}
}

// WithConfidenceZ sets the prediction interval half-width in residual
// deviations.
func WithConfidenceZ(z float64) Option {
	return func(s *Service) {
		if z > 0 {
			s.confidenceZ = z
		}
	}
}

// New constructs a Service with default configuration. The defaults match
// config.New, so an engine wired from a default-loaded configuration scores
// exactly like one built bare.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:    runtime.NumCPU() * 20,
		queueSize:      100_000,
		dedupeSize:     500_000,
		trailingWindow: 25,
		minHistory:     5,
		formWindow:     5,
		rookieMax:      1,
		veteranMin:     10,
		gapPolicy:      enrich.GapFail,
		phase:          scoring.PhaseWeights{Regular: 1.0, Postseason: 1.5},
		halfLife:       24 * time.Hour,
		seedW1:         60,
		seedW2:         40,
		rookieFactor:   1.25,
		primeFactor:    1.0,
		veteranFactor:  1.0,
		slumpFactor:    1.15,
		multiplierCap:  1.5,
		horizon:        10,
		horizonDecay:   0.85,
		ridge:          1e-3,
		confidenceZ:    1.96,
		stopCh:         make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes and starts the engine components. The context bounds the
// worker pool and background collectors; canceling it stops them.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.history == nil {
		return ErrNoHistorySource
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting momentum engine...")

	if s.ledger == nil {
		if s.postgresDSN != "" {
			led, err := ledger.NewPostgresLedger(ctx, s.postgresDSN)
			if err != nil {
				return fmt.Errorf("open postgres ledger: %w", err)
			}
			s.ledger = led
			s.logger.Info(ctx, "using postgres ledger")
		} else {
			s.ledger = ledger.NewMemoryLedger(ctx)
			s.logger.Info(ctx, "using in-memory ledger")
		}
		s.ownLedger = true
	}

	s.deduper = dedupe.NewMemoryDeduper(
		dedupe.WithMaxSize(s.dedupeSize),
	)
	s.taskQueue = queue.NewInMemoryQueue(
		queue.WithCapacity(s.queueSize),
		queue.WithBufferSize(s.queueSize),
	)
	s.enricher = enrich.New(s.history, s.trailingWindow, s.minHistory,
		enrich.WithFormWindow(s.formWindow),
		enrich.WithStageThresholds(s.rookieMax, s.veteranMin),
		enrich.WithGapPolicy(s.gapPolicy),
	)
	s.aggregator = scoring.NewAggregator(
		scoring.WithHalfLife(s.halfLife),
		scoring.WithSourceWeightsFromConfig(s.sourceWeights),
	)
	s.composer = scoring.NewComposer(
		scoring.WithStageFactor(model.StageRookie, s.rookieFactor),
		scoring.WithStageFactor(model.StagePrime, s.primeFactor),
		scoring.WithStageFactor(model.StageVeteran, s.veteranFactor),
		scoring.WithSlumpFactor(s.slumpFactor),
		scoring.WithMultiplierCap(s.multiplierCap),
	)
	s.registry = predict.NewRegistry(
		predict.WithHorizon(s.horizon),
		predict.WithHorizonDecay(s.horizonDecay),
		predict.WithRidge(s.ridge),
		predict.WithConfidenceZ(s.confidenceZ),
	)

	// Restore the weight set in force, seeding v0 on a fresh ledger.
	ws, err := s.ledger.LatestWeightSet(ctx)
	switch {
	case err == nil:
		s.weights = ws
		s.logger.Info(ctx, "restored weight set",
			logger.String("weightVersion", ws.Version),
		)
	case errors.Is(err, ledger.ErrNoWeights):
		seed := scoring.SeedWeights(s.seedW1, s.seedW2)
		if err := s.ledger.PutWeightSet(ctx, seed); err != nil {
			return fmt.Errorf("seed weight set: %w", err)
		}
		s.weights = seed
		s.logger.Info(ctx, "seeded weight set",
			logger.String("weightVersion", seed.Version),
			logger.Float64("w1", seed.W1),
			logger.Float64("w2", seed.W2),
		)
	default:
		return fmt.Errorf("load weight set: %w", err)
	}

	s.pool = worker.NewPool(s.workerCount, s.taskQueue, &pipeline{svc: s}, s.ledger)
	s.pool.Start(ctx)

	// Replace a channel closed by a previous Stop so the engine can restart.
	select {
	case <-s.stopCh:
		s.stopCh = make(chan struct{})
	default:
	}
	go s.collectSystemMetrics(ctx, s.stopCh)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "momentum engine started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("weightVersion", s.weights.Version),
	)

	return nil
}

// Stop gracefully shuts down the engine. The lock is released before the
// pool drains so in-flight workers can still read the weight set.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool, taskQueue := s.pool, s.taskQueue
	startedAt := s.startedAt

	// Close only ledgers this engine opened; injected ones belong to the
	// caller. Dropping the reference lets a restart open a fresh one.
	var led ledger.Ledger
	if s.ownLedger {
		led = s.ledger
		s.ledger = nil
		s.ownLedger = false
	}

	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()

	ctx := context.Background()
	s.logger.Info(ctx, "stopping momentum engine...")

	if pool != nil {
		pool.Stop()
	}
	if taskQueue != nil {
		_ = taskQueue.Close()
	}
	if led != nil {
		_ = led.Close()
	}

	s.logger.Info(ctx, "momentum engine stopped",
		logger.Duration("uptime", time.Since(startedAt)),
	)
}

// SeenAndRecord atomically checks if a moment id was seen and records it if
// not. Returns true if the id was already seen, false if it was newly
// recorded. This is the only deduplication entry point.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	if s.deduper == nil {
		return false
	}
	seen := s.deduper.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordMomentDuplicate()
	}
	return seen
}

// Unrecord removes a moment id from the seen set, allowing it to be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if s.deduper == nil {
		return
	}
	s.deduper.Unrecord(ctx, id)
}

// Enqueue pushes one score request onto the task queue without consulting
// the deduper. Returns false on backpressure. Callers that arbitrate
// duplicates themselves (the HTTP layer, so it can acknowledge them) use
// this; everything else goes through Submit.
func (s *Service) Enqueue(ctx context.Context, req model.ScoreRequest) bool {
	if err := s.ensureStarted(); err != nil {
		return false
	}
	if ok := s.taskQueue.Enqueue(ctx, req); !ok {
		s.logger.Warn(ctx, "queue full, moment rejected",
			logger.String("eventID", strings.TrimSpace(req.Raw.EventID)),
		)
		return false
	}
	return true
}

// Submit queues one score request for asynchronous processing. Duplicates are
// acknowledged without re-queueing; a full queue reports backpressure by
// returning false and releases the dedupe claim so the moment can be retried.
func (s *Service) Submit(ctx context.Context, req model.ScoreRequest) bool {
	if err := s.ensureStarted(); err != nil {
		return false
	}

	// Events without an id cannot be deduplicated; the builder rejects them
	// in the worker.
	id := strings.TrimSpace(req.Raw.EventID)
	if id != "" && s.SeenAndRecord(ctx, id) {
		s.logger.Debug(ctx, "duplicate moment, skipping",
			logger.String("eventID", id),
		)
		return true
	}

	if !s.Enqueue(ctx, req) {
		if id != "" {
			s.deduper.Unrecord(ctx, id)
		}
		return false
	}
	return true
}

// GetStats returns engine statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}

	if s.started {
		queueLen := s.taskQueue.Len(ctx)
		results := s.ledger.ResultCount(ctx)
		predictions := s.ledger.PredictionCount(ctx)

		stats["queueLength"] = queueLen
		stats["results"] = results
		stats["predictions"] = predictions
		stats["weightVersion"] = s.weights.Version
		stats["modelVersions"] = s.registry.Versions()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateLedgerResultsTotal(results)
		metrics.UpdateLedgerPredictionsTotal(predictions)
	}

	return stats
}

// Size returns the current number of entries in the deduper.
func (s *Service) Size() int64 {
	if s.deduper == nil {
		return 0
	}
	return s.deduper.Size()
}

// ensureStarted guards operations that need components built by Start.
func (s *Service) ensureStarted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// currentWeights returns the weight set in force.
func (s *Service) currentWeights() model.WeightSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// collectSystemMetrics samples process-level gauges until the engine stops.
func (s *Service) collectSystemMetrics(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			metrics.UpdateSystemMemoryUsage(ms.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
