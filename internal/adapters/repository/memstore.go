package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/pkg/metrics"
)

const (
	defaultSnapshotInterval      = time.Second
	defaultMetricsUpdateInterval = 5 * time.Second
)

// Option tunes a MemoryStore.
type Option func(*MemoryStore)

// WithSnapshotInterval sets how often the background loop rebuilds a stale
// snapshot. Non-positive values keep the default.
func WithSnapshotInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.snapshotInterval = d
		}
	}
}

// WithMetricsUpdateInterval sets how often the store size gauge is
// refreshed. Non-positive values keep the default.
func WithMetricsUpdateInterval(d time.Duration) Option {
	return func(s *MemoryStore) {
		if d > 0 {
			s.metricsUpdateInterval = d
		}
	}
}

// MemoryStore is an in-memory Store. Writes go to a slice plus an id index;
// snapshots are rebuilt lazily when the version moves, and also
// periodically in the background so readers rarely pay for the copy.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles []features.FeatureVector
	byID     map[int64]int // user id -> index in profiles
	version  uint64
	closed   bool

	snapshotInterval      time.Duration
	metricsUpdateInterval time.Duration

	snapshot atomic.Pointer[Snapshot]

	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewMemoryStore constructs a memory store with configuration options.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		byID:                  make(map[int64]int),
		snapshotInterval:      defaultSnapshotInterval,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.snapshot.Store(&Snapshot{Profiles: []features.FeatureVector{}})

	s.startBackground(ctx, s.snapshotInterval, func() { s.Snapshot(ctx) })
	s.startBackground(ctx, s.metricsUpdateInterval, func() { metrics.UpdateStoreProfiles(s.Count(ctx)) })

	return s
}

// startBackground runs fn on every tick until ctx is done or the store closes.
func (s *MemoryStore) startBackground(ctx context.Context, every time.Duration, fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Upsert implements Store.Upsert.
func (s *MemoryStore) Upsert(_ context.Context, v features.FeatureVector) (bool, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreWriteLatency(metrics.Since(start)) }()

	if err := v.ValidateProfile(); err != nil {
		return false, fmt.Errorf("upsert: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	created := s.put(v)
	s.version++
	return created, nil
}

// put stores v without touching the version. Caller holds s.mu.
func (s *MemoryStore) put(v features.FeatureVector) bool {
	if i, ok := s.byID[v.UserID]; ok {
		s.profiles[i] = v
		return false
	}
	s.byID[v.UserID] = len(s.profiles)
	s.profiles = append(s.profiles, v)
	return true
}

// Get implements Store.Get.
func (s *MemoryStore) Get(_ context.Context, userID int64) (features.FeatureVector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.byID[userID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return features.FeatureVector{}, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	return s.profiles[i], nil
}

// Replace implements Store.Replace.
func (s *MemoryStore) Replace(_ context.Context, vs []features.FeatureVector) error {
	start := time.Now()
	defer func() { metrics.RecordStoreWriteLatency(metrics.Since(start)) }()

	for i, v := range vs {
		if err := v.ValidateProfile(); err != nil {
			return fmt.Errorf("replace: profile %d: %w", i, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.reset(vs)
	return nil
}

// reset swaps in vs and bumps the version. Caller holds s.mu.
func (s *MemoryStore) reset(vs []features.FeatureVector) {
	s.profiles = make([]features.FeatureVector, 0, len(vs))
	s.byID = make(map[int64]int, len(vs))
	for _, v := range vs {
		s.put(v)
	}
	s.version++
}

// Snapshot implements Store.Snapshot.
func (s *MemoryStore) Snapshot(_ context.Context) Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cur := s.snapshot.Load(); cur.Version == s.version {
		return *cur
	}
	next := &Snapshot{
		Version:  s.version,
		Profiles: make([]features.FeatureVector, len(s.profiles)),
	}
	copy(next.Profiles, s.profiles)
	s.snapshot.Store(next)
	metrics.IncrementStoreSnapshotCount()
	return *next
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}

// Close stops the background goroutines. Further writes fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}
