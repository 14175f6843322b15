package service

import (
	"time"

	repository "github.com/okian/learnmatch/internal/adapters/repository"
	"github.com/okian/learnmatch/internal/domain/extract"
	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithK sets the neighbor count. Values <= 0 are rejected by New.
func WithK(k int) Option {
	return func(s *Service) { s.k = k }
}

// WithWeightedDistance switches queries to the weighted metric.
func WithWeightedDistance(enabled bool) Option {
	return func(s *Service) { s.weighted = enabled }
}

// WithFeatureWeights sets the per-dimension weights.
func WithFeatureWeights(w features.FeatureWeights) Option {
	return func(s *Service) { s.weights = w }
}

// WithOptimizeWorkers bounds the weight search worker pool.
func WithOptimizeWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.optimizeWorkers = n
		}
	}
}

// WithWorkerCount sets the number of extraction workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the progress queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many event ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithRetrainInterval sets how often the store is checked for changes.
func WithRetrainInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.retrainInterval = d
		}
	}
}

// WithEventTimeout bounds the processing of a single progress event.
func WithEventTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.eventTimeout = d
		}
	}
}

// WithStore supplies the profile store. The caller keeps ownership and must
// close it after Stop. Without it Start creates an in-memory store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithExtractor replaces the default progress extractor.
func WithExtractor(e extract.Extractor) Option {
	return func(s *Service) {
		if e != nil {
			s.extractor = e
		}
	}
}

// WithSeedFile loads labelled profiles from path at Start when the store is
// empty.
func WithSeedFile(path string) Option {
	return func(s *Service) { s.seedFile = path }
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}
