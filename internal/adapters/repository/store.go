// Package repository stores the latest profile per learner and publishes
// immutable, insertion-ordered snapshots for training.
package repository

import (
	"context"
	"errors"

	"github.com/okian/learnmatch/internal/domain/features"
)

var (
	// ErrNotFound reports a user with no stored profile.
	ErrNotFound = errors.New("profile not found")
	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("store closed")
)

// Snapshot is an immutable view of the store. Profiles are in first-insertion
// order; callers must not modify the slice.
type Snapshot struct {
	Version  uint64
	Profiles []features.FeatureVector
}

// Store provides read/write access to learner profiles.
type Store interface {
	// Upsert stores v as the latest profile for v.UserID. An existing user
	// keeps its position in snapshot order. Returns true if the user is new.
	Upsert(ctx context.Context, v features.FeatureVector) (bool, error)

	// Get returns the profile for userID or ErrNotFound.
	Get(ctx context.Context, userID int64) (features.FeatureVector, error)

	// Replace discards every profile and stores vs in the given order. A
	// later duplicate user id overwrites the earlier one in place.
	Replace(ctx context.Context, vs []features.FeatureVector) error

	// Snapshot returns the current contents. Version increases on every write.
	Snapshot(ctx context.Context) Snapshot

	// Count returns the number of stored profiles.
	Count(ctx context.Context) int

	Close() error
}
