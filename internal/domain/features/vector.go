// Package features defines the learner profile used for similarity search
// and the distance functions over it.
package features

import (
	"fmt"
	"math"
)

// NumFeatures is the dimensionality of a FeatureVector.
const NumFeatures = 9

// MaxMagnitude bounds every dimension so nine squared differences stay
// below math.MaxFloat64.
const MaxMagnitude = 1e150

// Feature dimension indexes, in the order Values returns them.
const (
	IdxAccuracyRate = iota
	IdxLearningSpeed
	IdxStudyFrequency
	IdxConsistency
	IdxDifficultyPreference
	IdxTimePerLesson
	IdxCompletionRate
	IdxStreakLength
	IdxXPEarned
)

var featureNames = [NumFeatures]string{
	"accuracy_rate",
	"learning_speed",
	"study_frequency",
	"consistency",
	"difficulty_preference",
	"time_per_lesson",
	"completion_rate",
	"streak_length",
	"xp_earned",
}

// Name returns the snake_case name of dimension i.
func Name(i int) string { return featureNames[i] }

// FeatureVector is an immutable numeric profile of one learner.
//
// Nominal ranges: AccuracyRate, Consistency, DifficultyPreference,
// CompletionRate, StreakLength and XPEarned in [0,1]; LearningSpeed in
// [0,10] lessons/day; StudyFrequency in [0,7] sessions/week; TimePerLesson
// in minutes. Distances do not clamp out-of-range values.
type FeatureVector struct {
	UserID               int64    `json:"user_id"`
	AccuracyRate         float64  `json:"accuracy_rate"`
	LearningSpeed        float64  `json:"learning_speed"`
	StudyFrequency       float64  `json:"study_frequency"`
	Consistency          float64  `json:"consistency"`
	DifficultyPreference float64  `json:"difficulty_preference"`
	TimePerLesson        float64  `json:"time_per_lesson"`
	CompletionRate       float64  `json:"completion_rate"`
	StreakLength         float64  `json:"streak_length"`
	XPEarned             float64  `json:"xp_earned"`
	Category             Category `json:"category"`
}

// FromValues builds a vector from the nine dimensions in index order.
func FromValues(userID int64, category Category, v [NumFeatures]float64) FeatureVector {
	return FeatureVector{
		UserID:               userID,
		AccuracyRate:         v[IdxAccuracyRate],
		LearningSpeed:        v[IdxLearningSpeed],
		StudyFrequency:       v[IdxStudyFrequency],
		Consistency:          v[IdxConsistency],
		DifficultyPreference: v[IdxDifficultyPreference],
		TimePerLesson:        v[IdxTimePerLesson],
		CompletionRate:       v[IdxCompletionRate],
		StreakLength:         v[IdxStreakLength],
		XPEarned:             v[IdxXPEarned],
		Category:             category,
	}
}

// Values returns the nine dimensions in index order.
func (f FeatureVector) Values() [NumFeatures]float64 {
	return [NumFeatures]float64{
		f.AccuracyRate,
		f.LearningSpeed,
		f.StudyFrequency,
		f.Consistency,
		f.DifficultyPreference,
		f.TimePerLesson,
		f.CompletionRate,
		f.StreakLength,
		f.XPEarned,
	}
}

// Validate rejects non-finite dimensions and values beyond MaxMagnitude.
// It does not check UserID, so ad-hoc query vectors may carry id 0.
func (f FeatureVector) Validate() error {
	for i, v := range f.Values() {
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > MaxMagnitude {
			return fmt.Errorf("%w: %s=%v", ErrNonFinite, featureNames[i], v)
		}
	}
	return nil
}

// ValidateProfile is Validate plus a positive UserID, the rule for vectors
// that enter a training set.
func (f FeatureVector) ValidateProfile() error {
	if f.UserID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUserID, f.UserID)
	}
	return f.Validate()
}

// DistanceTo is the unweighted Euclidean distance over all nine dimensions.
func (f FeatureVector) DistanceTo(other FeatureVector) float64 {
	a, b := f.Values(), other.Values()
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return root(sum)
}

// WeightedDistanceTo computes sqrt(Σ w_i (a_i - b_i)^2). With every weight
// at 1.0 it equals DistanceTo; a zero weight drops that dimension.
func (f FeatureVector) WeightedDistanceTo(other FeatureVector, w FeatureWeights) float64 {
	a, b, ws := f.Values(), other.Values(), w.Values()
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += ws[i] * d * d
	}
	return root(sum)
}

// root clamps an overflowed sum to MaxFloat64 before taking the square
// root, so distances stay finite and 1/(1+d) stays positive under extreme
// weights.
func root(sum float64) float64 {
	return math.Sqrt(math.Min(sum, math.MaxFloat64))
}
