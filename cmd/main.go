package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/highleverage/momentum/internal/adapters/http/api"
	"github.com/highleverage/momentum/internal/adapters/http/swagger"
	"github.com/highleverage/momentum/internal/adapters/statfeed"
	service "github.com/highleverage/momentum/internal/app"
	"github.com/highleverage/momentum/internal/config"
	"github.com/highleverage/momentum/internal/domain/enrich"
	"github.com/highleverage/momentum/pkg/logger"
	"github.com/highleverage/momentum/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout            = 10 * time.Second
	writeTimeout           = 10 * time.Second
	idleTimeout            = 60 * time.Second
	readHeaderTimeout      = 5 * time.Second
	shutdownTimeout        = 30 * time.Second
	systemMetricsInterval  = 10 * time.Second
	serviceMetricsInterval = 5 * time.Second
)

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// The stat feed backs context enrichment and outcome settlement; the
	// engine refuses to start without a history source.
	if cfg.StatFeedPath == "" {
		os.Stderr.WriteString("no stat feed configured: set MSS_STATFEED (or statfeed in the config file) to the player stat feed path\n")
		return
	}
	store, err := statfeed.Load(cfg.StatFeedPath)
	if err != nil {
		os.Stderr.WriteString("failed to load stat feed: " + err.Error() + "\n")
		return
	}
	loggerInstance.Info(ctx, "stat feed loaded",
		logger.String("path", cfg.StatFeedPath),
		logger.Int("players", store.Players()))

	// Create and start the engine with configuration options
	opts := []service.Option{
		service.WithLogger(loggerInstance),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.EventQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithHistorySource(store),
		service.WithOutcomeSource(store),
		service.WithTrailingWindow(cfg.TrailingWindow, cfg.MinHistory),
		service.WithFormWindow(cfg.FormWindow),
		service.WithStageThresholds(cfg.RookieMaxSeasons, cfg.VeteranMinSeasons),
		service.WithGapPolicy(enrich.GapPolicy(cfg.GapPolicy)),
		service.WithPhaseWeights(cfg.PhaseWeightRegular, cfg.PhaseWeightPostseason),
		service.WithSentimentHalfLife(time.Duration(cfg.SentimentHalfLifeHours * float64(time.Hour))),
		service.WithSourceWeights(cfg.SourceWeights),
		service.WithSeedWeights(cfg.WeightW1, cfg.WeightW2),
		service.WithStageFactors(cfg.RookieMultiplier, cfg.PrimeMultiplier, cfg.VeteranMultiplier),
		service.WithSlumpFactor(cfg.SlumpMultiplier),
		service.WithMultiplierCap(cfg.MultiplierCap),
		service.WithPredictionHorizon(cfg.PredictionHorizon),
		service.WithHorizonDecay(cfg.HorizonDecay),
		service.WithRidge(cfg.Ridge),
		service.WithConfidenceZ(cfg.ConfidenceZ),
	}
	if cfg.PostgresDSN != "" {
		opts = append(opts, service.WithPostgresDSN(cfg.PostgresDSN))
	}
	svc := service.New(opts...)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register Swagger UI under /swagger
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc, cfg.MaxShiftLimit)
	apiServer.Register(ctx, mux, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval) // Update every 10 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval) // Update every 5 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	// Update memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	// Update goroutine count
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(svc *service.Service) {
	// Get current stats from the service
	stats := svc.GetStats()

	// GetStats already refreshes the ledger gauges; mirror the queue and
	// worker readings here as well
	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}

	if results, ok := stats["results"].(int); ok {
		metrics.UpdateLedgerResultsTotal(results)
	}

	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerActiveCount(workerCount)
	}
}
