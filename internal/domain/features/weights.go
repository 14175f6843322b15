package features

import (
	"fmt"
	"math"
)

// FeatureWeights holds one multiplier per dimension for WeightedDistanceTo.
type FeatureWeights struct {
	AccuracyRate         float64 `json:"accuracy_rate" koanf:"accuracy_rate"`
	LearningSpeed        float64 `json:"learning_speed" koanf:"learning_speed"`
	StudyFrequency       float64 `json:"study_frequency" koanf:"study_frequency"`
	Consistency          float64 `json:"consistency" koanf:"consistency"`
	DifficultyPreference float64 `json:"difficulty_preference" koanf:"difficulty_preference"`
	TimePerLesson        float64 `json:"time_per_lesson" koanf:"time_per_lesson"`
	CompletionRate       float64 `json:"completion_rate" koanf:"completion_rate"`
	StreakLength         float64 `json:"streak_length" koanf:"streak_length"`
	XPEarned             float64 `json:"xp_earned" koanf:"xp_earned"`
}

// DefaultWeights returns 1.0 for every dimension.
func DefaultWeights() FeatureWeights {
	return FeatureWeights{
		AccuracyRate:         1,
		LearningSpeed:        1,
		StudyFrequency:       1,
		Consistency:          1,
		DifficultyPreference: 1,
		TimePerLesson:        1,
		CompletionRate:       1,
		StreakLength:         1,
		XPEarned:             1,
	}
}

// Values returns the weights in dimension index order.
func (w FeatureWeights) Values() [NumFeatures]float64 {
	return [NumFeatures]float64{
		w.AccuracyRate,
		w.LearningSpeed,
		w.StudyFrequency,
		w.Consistency,
		w.DifficultyPreference,
		w.TimePerLesson,
		w.CompletionRate,
		w.StreakLength,
		w.XPEarned,
	}
}

// Validate rejects negative or non-finite weights.
func (w FeatureWeights) Validate() error {
	for i, v := range w.Values() {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s=%v", ErrNegativeWeight, featureNames[i], v)
		}
	}
	return nil
}
