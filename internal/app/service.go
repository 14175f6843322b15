// Package service wires ingestion, the profile store and the KNN classifier
// together and implements the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	eventqueue "github.com/okian/learnmatch/internal/adapters/mq/queue"
	workerpool "github.com/okian/learnmatch/internal/adapters/mq/worker"
	repository "github.com/okian/learnmatch/internal/adapters/repository"
	"github.com/okian/learnmatch/internal/domain/dedupe"
	"github.com/okian/learnmatch/internal/domain/extract"
	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/knn"
	"github.com/okian/learnmatch/internal/domain/model"
	"github.com/okian/learnmatch/pkg/logger"
	"github.com/okian/learnmatch/pkg/metrics"
)

const (
	defaultQueueSize       = 10_000
	defaultDedupeSize      = 100_000
	defaultRetrainInterval = time.Second
	stopTimeout            = 30 * time.Second
)

// Service owns the ingestion pipeline and the live classifier.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	ownsStore  bool
	deduper    dedupe.Deduper
	eventQueue eventqueue.Queue
	extractor  extract.Extractor
	workerPool *workerpool.Pool

	// classifier is swapped whole when optimized weights are applied.
	classifier atomic.Pointer[knn.Classifier]

	// retrainMu serializes training and classifier swaps.
	retrainMu      sync.Mutex
	trainedVersion uint64
	trained        bool

	// Configuration
	k               int
	weighted        bool
	weights         features.FeatureWeights
	optimizeWorkers int
	workerCount     int
	queueSize       int
	dedupeSize      int
	retrainInterval time.Duration
	eventTimeout    time.Duration
	seedFile        string

	// State
	started bool
	stopCh  chan struct{}
	loopWG  sync.WaitGroup

	logger logger.Logger
}

// New constructs a Service. It fails when the classifier settings are invalid.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		k:               knn.DefaultK,
		weights:         features.DefaultWeights(),
		optimizeWorkers: runtime.NumCPU(),
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		retrainInterval: defaultRetrainInterval,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}

	c, err := knn.New(
		knn.WithK(s.k),
		knn.WithWeightedDistance(s.weighted),
		knn.WithFeatureWeights(s.weights),
		knn.WithOptimizeWorkers(s.optimizeWorkers),
	)
	if err != nil {
		return nil, fmt.Errorf("classifier config: %w", err)
	}
	s.classifier.Store(c)
	return s, nil
}

// Start builds the pipeline, loads the seed file if the store is empty,
// trains once and starts the workers and the retrain loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting learnmatch service...")

	if s.store == nil {
		s.store = repository.NewMemoryStore(ctx)
		s.ownsStore = true
	}
	if s.extractor == nil {
		s.extractor = extract.NewProgressExtractor()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))

	if s.seedFile != "" && s.store.Count(ctx) == 0 {
		seed, err := LoadSeedFile(ctx, s.seedFile)
		if err != nil {
			s.closeOwnedStore(ctx)
			return err
		}
		if err := s.store.Replace(ctx, seed); err != nil {
			s.closeOwnedStore(ctx)
			return fmt.Errorf("store seed profiles: %w", err)
		}
		s.logger.Info(ctx, "seed profiles loaded",
			logger.String("path", s.seedFile),
			logger.Int("profiles", len(seed)),
		)
	}
	s.retrainMu.Lock()
	s.trained = false
	s.retrainMu.Unlock()
	s.retrain(ctx, s.store)

	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, s.extractor, s.store,
		workerpool.WithEventTimeout(s.eventTimeout))
	s.workerPool.Start(ctx)

	s.stopCh = make(chan struct{})
	s.loopWG.Add(1)
	go s.retrainLoop(ctx, s.store, s.stopCh)

	s.started = true
	s.logger.Info(ctx, "learnmatch service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Int("k", s.k),
		logger.Int("profiles", s.store.Count(ctx)),
	)
	return nil
}

// Stop drains the queue, stops the retrain loop and closes an owned store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping learnmatch service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}

	close(s.stopCh)
	s.loopWG.Wait()

	s.closeOwnedStore(ctx)
	s.started = false
	s.logger.Info(ctx, "learnmatch service stopped")
}

func (s *Service) closeOwnedStore(ctx context.Context) {
	if !s.ownsStore {
		return
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error(ctx, "closing profile store", logger.Error(err))
	}
	s.store = nil
	s.ownsStore = false
}

func (s *Service) retrainLoop(ctx context.Context, store repository.Store, stop <-chan struct{}) {
	defer s.loopWG.Done()

	ticker := time.NewTicker(s.retrainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.retrain(ctx, store)
		}
	}
}

// retrain trains the live classifier on the store snapshot when the store
// has changed since the last training, and returns the live classifier.
func (s *Service) retrain(ctx context.Context, store repository.Store) *knn.Classifier {
	s.retrainMu.Lock()
	defer s.retrainMu.Unlock()

	c := s.classifier.Load()
	snap := store.Snapshot(ctx)
	if s.trained && snap.Version == s.trainedVersion {
		return c
	}

	start := time.Now()
	if err := c.Train(snap.Profiles); err != nil {
		// Store writes are validated, so this only happens on a bug.
		s.logger.Error(ctx, "retrain failed", logger.Error(err))
		metrics.RecordErrorByComponent("service", "train_error")
		return c
	}
	s.trained = true
	s.trainedVersion = snap.Version
	metrics.RecordTrain(metrics.Since(start))
	metrics.UpdateTrainingSetSize(len(snap.Profiles))
	s.logger.Debug(ctx, "classifier retrained",
		logger.Int("profiles", len(snap.Profiles)),
		logger.Any("version", snap.Version),
	)
	return c
}

func (s *Service) currentStore() (repository.Store, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.store, nil
}

// live returns the classifier trained on the latest store contents.
func (s *Service) live(ctx context.Context) (*knn.Classifier, repository.Store, error) {
	store, err := s.currentStore()
	if err != nil {
		return nil, nil, err
	}
	return s.retrain(ctx, store), store, nil
}

// currentDeduper returns the deduper installed by the last Start, or nil.
func (s *Service) currentDeduper() dedupe.Deduper {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deduper
}

// SeenAndRecord reports whether id was already submitted and records it if not.
func (s *Service) SeenAndRecord(ctx context.Context, id string) bool {
	d := s.currentDeduper()
	if d == nil {
		return false
	}
	seen := d.SeenAndRecord(ctx, id)
	if seen {
		metrics.RecordProgressDuplicate()
	}
	return seen
}

// Unrecord forgets id so a failed submission can be retried.
func (s *Service) Unrecord(ctx context.Context, id string) {
	if d := s.currentDeduper(); d != nil {
		d.Unrecord(ctx, id)
	}
}

// Size returns the number of remembered event ids.
func (s *Service) Size() int64 {
	if d := s.currentDeduper(); d != nil {
		return d.Size()
	}
	return 0
}

// Enqueue submits a progress event for asynchronous extraction.
func (s *Service) Enqueue(ctx context.Context, e model.ProgressEvent) error { //nolint:gocritic // hugeParam: events are passed by value through the queue
	if _, err := s.currentStore(); err != nil {
		return err
	}
	metrics.RecordProgressReceived()
	if err := s.eventQueue.Enqueue(ctx, e); err != nil {
		s.logger.Debug(ctx, "enqueue rejected",
			logger.String("event_id", e.EventID),
			logger.Error(err),
		)
		return fmt.Errorf("enqueue progress: %w", err)
	}
	return nil
}

// PutProfile stores a ready profile synchronously and retrains.
func (s *Service) PutProfile(ctx context.Context, v features.FeatureVector) (bool, error) {
	store, err := s.currentStore()
	if err != nil {
		return false, err
	}
	created, err := store.Upsert(ctx, v)
	if err != nil {
		return false, fmt.Errorf("put profile: %w", err)
	}
	s.retrain(ctx, store)
	return created, nil
}

// GetProfile returns the stored profile for userID.
func (s *Service) GetProfile(ctx context.Context, userID int64) (features.FeatureVector, error) {
	store, err := s.currentStore()
	if err != nil {
		return features.FeatureVector{}, err
	}
	return store.Get(ctx, userID)
}

// Train replaces every stored profile with vs and retrains. The store keeps
// one profile per user, so a repeated user id overwrites the earlier entry.
func (s *Service) Train(ctx context.Context, vs []features.FeatureVector) (int, error) {
	store, err := s.currentStore()
	if err != nil {
		return 0, err
	}
	if err := store.Replace(ctx, vs); err != nil {
		return 0, fmt.Errorf("train: %w", err)
	}
	return s.retrain(ctx, store).Size(), nil
}

// query resolves userID to its stored profile and runs fn against the live
// classifier, recording the latency under op.
func query[T any](ctx context.Context, s *Service, op string, userID int64, fn func(*knn.Classifier, features.FeatureVector) T) (T, error) {
	var zero T
	c, store, err := s.live(ctx)
	if err != nil {
		return zero, err
	}
	target, err := store.Get(ctx, userID)
	if err != nil {
		return zero, err
	}
	start := time.Now()
	out := fn(c, target)
	metrics.RecordQueryLatency(op, metrics.Since(start))
	return out, nil
}

// Neighbors returns the k nearest stored profiles to userID's profile.
func (s *Service) Neighbors(ctx context.Context, userID int64) ([]knn.Neighbor, error) {
	return query(ctx, s, "neighbors", userID, (*knn.Classifier).FindNearestNeighbors)
}

// Classify returns the plurality category of userID's neighbors.
func (s *Service) Classify(ctx context.Context, userID int64) (features.Category, error) {
	cat, err := query(ctx, s, "classify", userID, (*knn.Classifier).ClassifyUser)
	if err == nil {
		metrics.RecordClassification(cat.String())
	}
	return cat, err
}

// Similarity returns the mean neighbor similarity for userID.
func (s *Service) Similarity(ctx context.Context, userID int64) (float64, error) {
	return query(ctx, s, "similarity", userID, (*knn.Classifier).CalculateSimilarityScore)
}

// Recommend returns up to limit similar learners for userID.
func (s *Service) Recommend(ctx context.Context, userID int64, limit int) ([]knn.Recommendation, error) {
	return query(ctx, s, "recommend", userID, func(c *knn.Classifier, v features.FeatureVector) []knn.Recommendation {
		return c.RecommendSimilarUsers(v, limit)
	})
}

// Predict estimates userID's performance from the neighborhood.
func (s *Service) Predict(ctx context.Context, userID int64) (knn.PerformancePrediction, error) {
	return query(ctx, s, "predict", userID, (*knn.Classifier).PredictPerformance)
}

// ClassifyVector classifies an ad-hoc profile that need not be stored.
func (s *Service) ClassifyVector(ctx context.Context, v features.FeatureVector) (features.Category, error) {
	if err := v.Validate(); err != nil {
		return features.Unknown, fmt.Errorf("classify: %w", err)
	}
	c, _, err := s.live(ctx)
	if err != nil {
		return features.Unknown, err
	}
	start := time.Now()
	cat := c.ClassifyUser(v)
	metrics.RecordQueryLatency("classify", metrics.Since(start))
	metrics.RecordClassification(cat.String())
	return cat, nil
}

// Validate scores the live classifier against a labelled test set.
func (s *Service) Validate(ctx context.Context, testSet []features.FeatureVector) (knn.ValidationResult, error) {
	if err := validateSet(testSet); err != nil {
		return knn.ValidationResult{}, fmt.Errorf("validate: %w", err)
	}
	c, _, err := s.live(ctx)
	if err != nil {
		return knn.ValidationResult{}, err
	}
	start := time.Now()
	res := c.ValidateModel(testSet)
	metrics.RecordQueryLatency("validate", metrics.Since(start))
	if res.TotalPredictions > 0 {
		metrics.UpdateValidationAccuracy(res.Accuracy)
	}
	return res, nil
}

// Optimize runs the weight search against validationSet. With apply set the
// live classifier is replaced by a weighted one using the result.
func (s *Service) Optimize(ctx context.Context, validationSet []features.FeatureVector, apply bool) (knn.WeightSearchResult, error) {
	if err := validateSet(validationSet); err != nil {
		return knn.WeightSearchResult{}, fmt.Errorf("optimize: %w", err)
	}
	c, _, err := s.live(ctx)
	if err != nil {
		return knn.WeightSearchResult{}, err
	}

	start := time.Now()
	res, err := c.OptimizeWeights(ctx, validationSet)
	if err != nil {
		return knn.WeightSearchResult{}, err
	}
	metrics.RecordWeightSearch(metrics.Since(start), res.Accuracy, res.Evaluated)
	s.logger.Info(ctx, "weight search finished",
		logger.Float64("accuracy", res.Accuracy),
		logger.Int("evaluated", res.Evaluated),
		logger.Bool("apply", apply),
	)

	if apply {
		s.retrainMu.Lock()
		next, err := s.classifier.Load().WithSearchResult(res)
		if err == nil {
			s.classifier.Store(next)
		}
		s.retrainMu.Unlock()
		if err != nil {
			return knn.WeightSearchResult{}, fmt.Errorf("apply weights: %w", err)
		}
	}
	return res, nil
}

func validateSet(vs []features.FeatureVector) error {
	for i, v := range vs {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return nil
}

// K returns the live neighbor count.
func (s *Service) K() int { return s.classifier.Load().K() }

// Processed returns the number of progress events stored by the workers.
func (s *Service) Processed() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.workerPool == nil {
		return 0
	}
	return s.workerPool.Processed()
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	c := s.classifier.Load()
	stats := map[string]interface{}{
		"started":         s.started,
		"workerCount":     s.workerCount,
		"queueSize":       s.queueSize,
		"dedupeSize":      s.dedupeSize,
		"k":               c.K(),
		"weighted":        c.Weighted(),
		"weights":         c.Weights(),
		"trainingSetSize": c.Size(),
	}

	if s.started {
		queueLen := s.eventQueue.Len(ctx)
		profiles := s.store.Count(ctx)

		stats["queueLength"] = queueLen
		stats["profiles"] = profiles
		stats["processed"] = s.workerPool.Processed()
		stats["dedupeEntries"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateStoreProfiles(profiles)
		metrics.UpdateTrainingSetSize(c.Size())
	}
	return stats
}
