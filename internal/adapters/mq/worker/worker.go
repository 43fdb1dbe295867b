// Package worker runs the scoring pipeline over queued tasks: each task is
// built, enriched, aggregated and composed into per-player results, which are
// appended to the ledger. A failed task never stops the pool; errors are
// logged, counted and dropped with the task.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/highleverage/momentum/internal/adapters/mq/queue"
	"github.com/highleverage/momentum/internal/domain/model"
	"github.com/highleverage/momentum/pkg/logger"
	"github.com/highleverage/momentum/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerMultiplier = 20 // multiplier for runtime.NumCPU()
	metricsUpdateInterval   = 5 * time.Second
	workerShutdownTimeout   = 5 * time.Second
	poolShutdownTimeout     = 30 * time.Second
)

// Task abstracts what workers read off the queue.
type Task = queue.Task

// Scorer runs the scoring stages for one task and returns the per-player
// results. Failures cover the whole task: no partial results come back.
type Scorer interface {
	Score(ctx context.Context, t Task) ([]model.MSSResult, error)
}

// Recorder appends scored results to the ledger.
type Recorder interface {
	AppendResult(ctx context.Context, res model.MSSResult) error
}

// Worker processes tasks and records results using the provided interfaces.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	// It will process any remaining tasks before stopping.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker for processing score tasks.
type InMemoryWorker struct {
	queue    Queue
	scorer   Scorer
	recorder Recorder
	name     string

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Logging
	logger logger.Logger
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Task
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, scorer Scorer, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		scorer:   scorer,
		recorder: recorder,
		name:     "worker", // default name
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"), // will be updated by options
	}

	for _, opt := range opts {
		opt(w)
	}

	// Set up logger with worker name if not already set
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer func() {
		close(w.done)
	}()

	taskChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-taskChan:
			if !ok {
				// Channel closed, worker should stop
				return
			}

			// Process the task; failures stay with the task.
			if err := w.processTask(ctx, task); err != nil {
				w.logger.Error(ctx, "error processing task", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker after its in-flight task finishes. Tasks still
// queued are left for the queue owner. Safe to call more than once.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}

	// Wait for worker to finish or context to timeout
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processTask scores a single task and appends every per-player result.
func (w *InMemoryWorker) processTask(ctx context.Context, task Task) error {
	// Track overall processing latency
	start := time.Now()
	defer func() {
		latency := time.Since(start).Milliseconds()
		metrics.RecordWorkerProcessingLatency(float64(latency))
	}()

	// Track scoring latency
	scoreStart := time.Now()
	results, err := w.scorer.Score(ctx, task)
	scoreLatency := time.Since(scoreStart).Milliseconds()

	metrics.RecordScoringLatency(float64(scoreLatency))

	if err != nil {
		metrics.RecordScoringError()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "scoring_error")
		metrics.RecordErrorByType("scoring_error", "high")
		w.logger.Error(ctx, "scoring failed for moment",
			logger.String("eventID", task.Raw.EventID),
			logger.Error(err),
		)
		return fmt.Errorf("failed to score moment %s: %w", task.Raw.EventID, err)
	}

	for i := range results {
		if err := w.recorder.AppendResult(ctx, results[i]); err != nil {
			metrics.RecordLedgerError()
			metrics.RecordWorkerError()
			metrics.RecordErrorByComponent("worker", "ledger_error")
			metrics.RecordErrorByType("ledger_error", "high")
			w.logger.Error(ctx, "ledger append failed for moment",
				logger.String("eventID", task.Raw.EventID),
				logger.String("playerID", results[i].PlayerID),
				logger.Error(err),
			)
			return fmt.Errorf("ledger append failed: %w", err)
		}
		metrics.RecordLedgerAppend()
	}
	metrics.RecordMomentProcessed()

	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	scorer   Scorer
	recorder Recorder

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	// Metrics tracking
	processedCount    int64
	lastProcessedTime time.Time

	// Logging
	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, scorer Scorer, recorder Recorder) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	pool := &Pool{
		workers:           make([]*InMemoryWorker, workerCount),
		queue:             queue,
		scorer:            scorer,
		recorder:          recorder,
		shutdown:          make(chan struct{}),
		done:              make(chan struct{}),
		lastProcessedTime: time.Now(),
		logger:            logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewInMemoryWorker(
			queue,
			scorer,
			recorder,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	// Initialize worker metrics
	metrics.UpdateWorkerActiveCount(workerCount)
	metrics.UpdateWorkerIdleCount(0)
	metrics.UpdateWorkerMessagesPerSecond(0.0)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, worker := range p.workers {
		go worker.Run(ctx)
	}

	// Start metrics updater
	go p.startMetricsUpdater(ctx)
}

// startMetricsUpdater starts a background goroutine that updates worker metrics.
func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

// updateMetrics updates worker-related metrics.
func (p *Pool) updateMetrics() {
	// Calculate messages per second
	now := time.Now()
	timeDiff := now.Sub(p.lastProcessedTime).Seconds()
	if timeDiff > 0 {
		messagesPerSecond := float64(p.processedCount) / timeDiff
		metrics.UpdateWorkerMessagesPerSecond(messagesPerSecond)
	}

	// Reset counters
	p.processedCount = 0
	p.lastProcessedTime = now
}

// RecordProcessedMessage increments the processed message count.
func (p *Pool) RecordProcessedMessage() {
	p.processedCount++
}

// Stop gracefully stops all workers.
func (p *Pool) Stop() {
	// Stop the metrics updater
	close(p.shutdown)

	// Signal every worker and wait, bounded by a shared deadline
	ctx, cancel := context.WithTimeout(context.Background(), workerShutdownTimeout)
	defer cancel()
	for _, worker := range p.workers {
		_ = worker.Shutdown(ctx)
	}
}

// Shutdown drains the pool: the queue is closed first so workers finish the
// buffered tasks before stopping.
func (p *Pool) Shutdown(ctx context.Context) error {
	// First close the queue to stop new tasks
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	// Stop the metrics updater
	close(p.shutdown)

	// Workers exit on their own once the dequeue channel drains
	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, worker := range p.workers {
		select {
		case <-worker.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	return nil
}
