// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Validation errors wrap ErrInvalidConfig; provider errors wrap ErrLoadConfig.
package config

import (
	"context"
	"fmt"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/okian/learnmatch/internal/domain/features"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// EventQueueSize bounds the in-memory progress queue.
	EventQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of extraction workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many event ids are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// EventTimeoutMS bounds extraction and storage of one event. Zero
	// disables the bound.
	EventTimeoutMS int `koanf:"event_timeout_ms"`

	// K is the neighbor count used by every query.
	K int `koanf:"k"`

	// UseWeightedDistance switches queries to the weighted metric.
	UseWeightedDistance bool `koanf:"use_weighted_distance"`

	// FeatureWeights holds per-dimension multipliers for the weighted metric.
	FeatureWeights features.FeatureWeights `koanf:"feature_weights"`

	// OptimizeWorkers bounds the weight search worker pool.
	OptimizeWorkers int `koanf:"optimize_workers"`

	// RetrainIntervalMS is how often the store is checked for new profiles.
	RetrainIntervalMS int `koanf:"retrain_interval_ms"`

	// MaxRecommendationLimit caps GET /users/{id}/recommendations?limit.
	MaxRecommendationLimit int `koanf:"max_recommendation_limit"`

	// StorePath is the SQLite file for profiles. Empty keeps them in memory.
	StorePath string `koanf:"store_path"`

	// SeedFile is a YAML or JSON file of labelled profiles loaded at startup.
	SeedFile string `koanf:"seed_file"`

	// MetricsNamespace and MetricsSubsystem prefix every metric name.
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`

	// MetricsLabels are constant labels attached to every metric.
	MetricsLabels map[string]string `koanf:"metrics_labels"`

	// LatencyBucketsMS overrides the millisecond buckets of the latency
	// histograms. Empty keeps the built-in buckets.
	LatencyBucketsMS []float64 `koanf:"latency_buckets_ms"`

	// WeightSearchBucketsMS overrides the weight search duration buckets.
	WeightSearchBucketsMS []float64 `koanf:"weight_search_buckets_ms"`
}

var metricName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:               "info",
		LogFormat:              "text",
		Addr:                   ":9080",
		EventQueueSize:         10_000,
		WorkerCount:            runtime.NumCPU() * 2,
		DedupeSize:             100_000,
		K:                      5,
		FeatureWeights:         features.DefaultWeights(),
		OptimizeWorkers:        runtime.NumCPU(),
		RetrainIntervalMS:      1000,
		MaxRecommendationLimit: 50,
		MetricsNamespace:       "learnmatch",
		MetricsSubsystem:       "knn",
	}
}

// RetrainInterval returns RetrainIntervalMS as a duration.
func (c *Config) RetrainInterval() time.Duration {
	return time.Duration(c.RetrainIntervalMS) * time.Millisecond
}

// EventTimeout returns EventTimeoutMS as a duration.
func (c *Config) EventTimeout() time.Duration {
	return time.Duration(c.EventTimeoutMS) * time.Millisecond
}

// Validate checks the settings the service cannot run without.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.K <= 0 {
		return fmt.Errorf("%w: k must be positive, got %d", ErrInvalidConfig, c.K)
	}
	if err := c.FeatureWeights.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.RetrainIntervalMS <= 0 {
		return fmt.Errorf("%w: retrain_interval_ms must be positive, got %d", ErrInvalidConfig, c.RetrainIntervalMS)
	}
	if c.EventTimeoutMS < 0 {
		return fmt.Errorf("%w: event_timeout_ms must not be negative, got %d", ErrInvalidConfig, c.EventTimeoutMS)
	}
	if c.MaxRecommendationLimit <= 0 {
		return fmt.Errorf("%w: max_recommendation_limit must be positive, got %d", ErrInvalidConfig, c.MaxRecommendationLimit)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format must be text or json, got %q", ErrInvalidConfig, c.LogFormat)
	}
	return c.validateMetrics()
}

func (c *Config) validateMetrics() error {
	for key, v := range map[string]string{
		"metrics_namespace": c.MetricsNamespace,
		"metrics_subsystem": c.MetricsSubsystem,
	} {
		if !metricName.MatchString(v) {
			return fmt.Errorf("%w: %s %q is not a valid metric name part", ErrInvalidConfig, key, v)
		}
	}
	for name := range c.MetricsLabels {
		if !metricName.MatchString(name) || strings.HasPrefix(name, "__") {
			return fmt.Errorf("%w: metrics label %q is not a valid label name", ErrInvalidConfig, name)
		}
	}
	for key, b := range map[string][]float64{
		"latency_buckets_ms":       c.LatencyBucketsMS,
		"weight_search_buckets_ms": c.WeightSearchBucketsMS,
	} {
		if !slices.IsSorted(b) || len(slices.Compact(slices.Clone(b))) != len(b) {
			return fmt.Errorf("%w: %s must be strictly increasing", ErrInvalidConfig, key)
		}
	}
	return nil
}
