// Package extract turns aggregated learner progress into feature vectors.
package extract

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/model"
)

// Default normalization constants.
const (
	defaultStreakNorm = 30
	defaultXPNorm     = 10000

	maxLearningSpeed  = 10
	maxStudyFrequency = 7
	minConsistencyN   = 3
	hoursPerDay       = 24
	daysPerWeek       = 7
)

// Option applies a configuration option to the ProgressExtractor.
type Option func(*ProgressExtractor)

// WithStreakNorm sets the streak length, in days, that maps to 1.0.
func WithStreakNorm(days float64) Option {
	return func(e *ProgressExtractor) {
		if days > 0 {
			e.streakNorm = days
		}
	}
}

// WithXPNorm sets the XP total that maps to 1.0.
func WithXPNorm(xp float64) Option {
	return func(e *ProgressExtractor) {
		if xp > 0 {
			e.xpNorm = xp
		}
	}
}

// Extractor builds a FeatureVector from one progress snapshot.
type Extractor interface {
	// Extract computes the profile, honoring ctx for cancellation.
	Extract(ctx context.Context, ev model.ProgressEvent) (features.FeatureVector, error)
}

// ProgressExtractor implements Extractor with fixed formulas, clamping every
// dimension to its nominal range except time per lesson.
type ProgressExtractor struct {
	streakNorm float64
	xpNorm     float64
}

// NewProgressExtractor creates an extractor with configuration options.
func NewProgressExtractor(opts ...Option) *ProgressExtractor {
	e := &ProgressExtractor{
		streakNorm: defaultStreakNorm,
		xpNorm:     defaultXPNorm,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract computes the nine features for ev.
func (e *ProgressExtractor) Extract(ctx context.Context, ev model.ProgressEvent) (features.FeatureVector, error) {
	if err := ctx.Err(); err != nil {
		return features.FeatureVector{}, fmt.Errorf("context cancelled: %w", err)
	}
	if ev.UserID <= 0 {
		return features.FeatureVector{}, fmt.Errorf("event %q: %w", ev.EventID, features.ErrInvalidUserID)
	}
	cat, err := features.ParseCategory(ev.Category)
	if err != nil {
		return features.FeatureVector{}, fmt.Errorf("event %q: %w", ev.EventID, err)
	}

	span := spanDays(ev.AccessTimes)
	weeks := math.Max(1, span/daysPerWeek)

	v := features.FeatureVector{
		UserID:               ev.UserID,
		AccuracyRate:         clamp(ratio(ev.XPEarned, ev.XPPossible), 0, 1),
		LearningSpeed:        clamp(float64(ev.LessonsCompleted)/(span+1), 0, maxLearningSpeed),
		StudyFrequency:       clamp(float64(ev.Sessions())/weeks, 0, maxStudyFrequency),
		Consistency:          consistency(ev.AccessTimes),
		DifficultyPreference: clamp(ratio(ev.AverageDifficulty, ev.MaxDifficulty), 0, 1),
		TimePerLesson:        math.Max(0, ratio(ev.TotalMinutes, float64(ev.LessonsCompleted))),
		CompletionRate:       clamp(ratio(float64(ev.LessonsCompleted), float64(ev.LessonsTotal)), 0, 1),
		StreakLength:         clamp(float64(ev.StreakDays)/e.streakNorm, 0, 1),
		XPEarned:             clamp(ev.XPEarned/e.xpNorm, 0, 1),
		Category:             cat,
	}
	if err := v.Validate(); err != nil {
		return features.FeatureVector{}, fmt.Errorf("event %q: %w", ev.EventID, err)
	}
	return v, nil
}

func ratio(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return num / den
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(lo, math.Min(hi, v))
}

// spanDays is the number of whole days between the first and last access.
func spanDays(ts []time.Time) float64 {
	if len(ts) < 2 {
		return 0
	}
	lo, hi := ts[0], ts[0]
	for _, t := range ts[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	return math.Floor(hi.Sub(lo).Hours() / hoursPerDay)
}

// consistency is 1/(1+variance/24) over the gaps, in hours, between
// consecutive accesses. Regular study gives values near 1.
func consistency(ts []time.Time) float64 {
	if len(ts) < minConsistencyN {
		return 0
	}
	sorted := slices.Clone(ts)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })

	deltas := make([]float64, len(sorted)-1)
	var mean float64
	for i := 1; i < len(sorted); i++ {
		deltas[i-1] = sorted[i].Sub(sorted[i-1]).Hours()
		mean += deltas[i-1]
	}
	mean /= float64(len(deltas))

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}
	variance /= float64(len(deltas))

	return clamp(1/(1+variance/hoursPerDay), 0, 1)
}
