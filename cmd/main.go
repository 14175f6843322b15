package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/learnmatch/internal/adapters/http/api"
	"github.com/okian/learnmatch/internal/adapters/http/site"
	"github.com/okian/learnmatch/internal/adapters/http/swagger"
	repository "github.com/okian/learnmatch/internal/adapters/repository"
	app "github.com/okian/learnmatch/internal/app"
	"github.com/okian/learnmatch/internal/config"
	"github.com/okian/learnmatch/pkg/logger"
	"github.com/okian/learnmatch/pkg/metrics"
)

// HTTP server timeout constants. writeTimeout must cover a weight search.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 60 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		stop()
		// The logger may not exist yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Configuration first: it selects the log format.
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logger.WithJSON(cfg.LogFormat == "json")); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Before anything records: the registry is replaced.
	metrics.Configure(metricsOptions(cfg)...)

	svc, closeStore, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc, cfg),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService translates cfg into service options. When store_path is set
// the SQLite store is opened here and closed by the returned func, after the
// service has stopped.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*app.Service, func(), error) {
	opts := []app.Option{
		app.WithLogger(log),
		app.WithK(cfg.K),
		app.WithWeightedDistance(cfg.UseWeightedDistance),
		app.WithFeatureWeights(cfg.FeatureWeights),
		app.WithOptimizeWorkers(cfg.OptimizeWorkers),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRetrainInterval(cfg.RetrainInterval()),
		app.WithEventTimeout(cfg.EventTimeout()),
		app.WithSeedFile(cfg.SeedFile),
	}

	closeStore := func() {}
	if cfg.StorePath != "" {
		store, err := repository.OpenSQLite(ctx, cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open store: %w", err)
		}
		log.Info(ctx, "using sqlite profile store", logger.String("path", cfg.StorePath))
		opts = append(opts, app.WithStore(store))
		closeStore = func() {
			if err := store.Close(); err != nil {
				log.Error(ctx, "store close failed", logger.Error(err))
			}
		}
	}

	svc, err := app.New(opts...)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, closeStore, nil
}

// newMux registers the landing page, the API docs and the business API.
// metricsOptions maps the metrics_* settings onto the metrics manager.
func metricsOptions(cfg *config.Config) []metrics.Option {
	opts := []metrics.Option{
		metrics.WithNamespace(cfg.MetricsNamespace),
		metrics.WithSubsystem(cfg.MetricsSubsystem),
		metrics.WithHistogramBuckets(cfg.LatencyBucketsMS),
		metrics.WithWeightSearchBuckets(cfg.WeightSearchBucketsMS),
	}
	for name, value := range cfg.MetricsLabels {
		opts = append(opts, metrics.WithConstLabel(name, value))
	}
	return opts
}

func newMux(ctx context.Context, svc *app.Service, cfg *config.Config) *http.ServeMux {
	mux := http.NewServeMux()
	site.Register(ctx, mux)
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc, cfg.MaxRecommendationLimit).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater refreshes runtime gauges until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
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

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
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

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics reads the stats map; GetStats itself refreshes the
// queue, store and training set gauges.
func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	queueSize, _ := stats["queueSize"].(int)
	queueLen, ok := stats["queueLength"].(int)
	if ok && queueSize > 0 {
		metrics.UpdateQueueUtilization(float64(queueLen) / float64(queueSize))
	}
}
