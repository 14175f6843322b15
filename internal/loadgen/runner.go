package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/learnmatch/internal/domain/types"
	"github.com/okian/learnmatch/pkg/logger"
)

// Run checks the service is up, submits cfg.Users synthetic learners, waits
// cfg.Wait for the workers and the retrain loop, then classifies every
// learner and reports how many came back with their generated label.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.Get()
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("workers", cfg.Workers),
		logger.Duration("wait", cfg.Wait))

	client := NewClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	learners := NewGenerator(cfg.Seed, stats.StartTime).Generate(cfg.Users, cfg.FirstUserID)
	stats.Generated = len(learners)

	if cfg.OutputFile != "" {
		if err := saveRequests(cfg.OutputFile, learners); err != nil {
			log.Warn(ctx, "failed to save requests", logger.Error(err))
		}
	}

	submitAll(ctx, client, cfg.Workers, learners, stats)

	log.Info(ctx, "waiting for processing", logger.Duration("wait", cfg.Wait))
	select {
	case <-ctx.Done():
		return stats, fmt.Errorf("wait for processing: %w", ctx.Err())
	case <-time.After(cfg.Wait):
	}

	if err := verifyAll(ctx, client, cfg.Workers, learners, stats); err != nil {
		return stats, fmt.Errorf("verify classifications: %w", err)
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "load run completed",
		logger.Int("generated", stats.Generated),
		logger.Int("accepted", stats.Accepted),
		logger.Int("classified", stats.Classified),
		logger.Int("missing", stats.Missing),
		logger.Float64("agreement", stats.Agreement()),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// saveRequests writes the submitted requests as a JSON array.
func saveRequests(path string, learners []Learner) error {
	reqs := make([]types.ProgressRequest, len(learners))
	for i := range learners {
		reqs[i] = learners[i].Request
	}
	b, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal requests: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, b, filePermission); err != nil {
		return fmt.Errorf("write requests: %w", err)
	}
	return nil
}
