// Package types contains the JSON wire shapes shared by the HTTP API, the
// seed-file loader and the load generator.
package types

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/knn"
	"github.com/okian/learnmatch/internal/domain/model"
)

// ErrInvalidRequest is returned by request validation.
var ErrInvalidRequest = errors.New("invalid request")

// ProgressRequest is the body of POST /progress.
type ProgressRequest struct {
	EventID  string `json:"event_id,omitempty"`
	UserID   int64  `json:"user_id"`
	Category string `json:"category,omitempty"`

	XPEarned   float64 `json:"xp_earned"`
	XPPossible float64 `json:"xp_possible"`

	LessonsCompleted int     `json:"lessons_completed"`
	LessonsTotal     int     `json:"lessons_total"`
	TotalMinutes     float64 `json:"total_minutes"`

	AverageDifficulty float64 `json:"average_difficulty"`
	MaxDifficulty     float64 `json:"max_difficulty"`

	StreakDays  int         `json:"streak_days"`
	AccessTimes []time.Time `json:"access_times,omitempty"`

	TS time.Time `json:"ts,omitempty"`
}

// Validate checks the request shape. Category labels are checked by the
// extractor so the API can report them with the same error.
func (r *ProgressRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("%w: user_id must be positive", ErrInvalidRequest)
	}
	if r.LessonsCompleted < 0 || r.LessonsTotal < 0 || r.StreakDays < 0 {
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidRequest)
	}
	for name, v := range map[string]float64{
		"xp_earned":          r.XPEarned,
		"xp_possible":        r.XPPossible,
		"total_minutes":      r.TotalMinutes,
		"average_difficulty": r.AverageDifficulty,
		"max_difficulty":     r.MaxDifficulty,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s must be a non-negative number", ErrInvalidRequest, name)
		}
	}
	if _, err := features.ParseCategory(r.Category); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// ToEvent converts the request into the queued domain event. A zero TS is
// replaced with now.
func (r *ProgressRequest) ToEvent(now time.Time) model.ProgressEvent {
	ts := r.TS
	if ts.IsZero() {
		ts = now
	}
	return model.ProgressEvent{
		EventID:           r.EventID,
		UserID:            r.UserID,
		Category:          r.Category,
		XPEarned:          r.XPEarned,
		XPPossible:        r.XPPossible,
		LessonsCompleted:  r.LessonsCompleted,
		LessonsTotal:      r.LessonsTotal,
		TotalMinutes:      r.TotalMinutes,
		AverageDifficulty: r.AverageDifficulty,
		MaxDifficulty:     r.MaxDifficulty,
		StreakDays:        r.StreakDays,
		AccessTimes:       r.AccessTimes,
		TS:                ts,
	}
}

// ProgressResponse acknowledges a progress submission.
type ProgressResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate"`
}

// Profile is a labelled feature vector as written in seed files. It differs
// from features.FeatureVector only in carrying the category as plain text,
// which keeps it decodable by koanf.
type Profile struct {
	UserID               int64   `json:"user_id" koanf:"user_id"`
	Category             string  `json:"category" koanf:"category"`
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

// ToVector parses the category and validates the result.
func (p *Profile) ToVector() (features.FeatureVector, error) {
	cat, err := features.ParseCategory(p.Category)
	if err != nil {
		return features.FeatureVector{}, fmt.Errorf("profile %d: %w", p.UserID, err)
	}
	v := features.FeatureVector{
		UserID:               p.UserID,
		AccuracyRate:         p.AccuracyRate,
		LearningSpeed:        p.LearningSpeed,
		StudyFrequency:       p.StudyFrequency,
		Consistency:          p.Consistency,
		DifficultyPreference: p.DifficultyPreference,
		TimePerLesson:        p.TimePerLesson,
		CompletionRate:       p.CompletionRate,
		StreakLength:         p.StreakLength,
		XPEarned:             p.XPEarned,
		Category:             cat,
	}
	if err := v.ValidateProfile(); err != nil {
		return features.FeatureVector{}, fmt.Errorf("profile %d: %w", p.UserID, err)
	}
	return v, nil
}

// ProfileFromVector is the inverse of ToVector.
func ProfileFromVector(v features.FeatureVector) Profile {
	return Profile{
		UserID:               v.UserID,
		Category:             v.Category.String(),
		AccuracyRate:         v.AccuracyRate,
		LearningSpeed:        v.LearningSpeed,
		StudyFrequency:       v.StudyFrequency,
		Consistency:          v.Consistency,
		DifficultyPreference: v.DifficultyPreference,
		TimePerLesson:        v.TimePerLesson,
		CompletionRate:       v.CompletionRate,
		StreakLength:         v.StreakLength,
		XPEarned:             v.XPEarned,
	}
}

// Map returns the profile keyed by its koanf tags, for YAML encoding.
func (p *Profile) Map() map[string]any {
	return map[string]any{
		"user_id":               p.UserID,
		"category":              p.Category,
		"accuracy_rate":         p.AccuracyRate,
		"learning_speed":        p.LearningSpeed,
		"study_frequency":       p.StudyFrequency,
		"consistency":           p.Consistency,
		"difficulty_preference": p.DifficultyPreference,
		"time_per_lesson":       p.TimePerLesson,
		"completion_rate":       p.CompletionRate,
		"streak_length":         p.StreakLength,
		"xp_earned":             p.XPEarned,
	}
}

// SeedFile is the document shape of a profile seed file.
type SeedFile struct {
	Profiles []Profile `json:"profiles" koanf:"profiles"`
}

// ProfileSetRequest carries a list of labelled profiles. It is the body of
// POST /train (profiles), POST /validate (test set) and POST /optimize
// (validation set).
type ProfileSetRequest struct {
	Profiles []features.FeatureVector `json:"profiles"`
}

// TrainResponse reports the size of the new training set. The store keeps
// one profile per user, so a repeated user id replaces the earlier entry
// and is counted in Superseded.
type TrainResponse struct {
	TrainingSetSize int `json:"training_set_size"`
	Superseded      int `json:"superseded"`
}

// ProfileResponse wraps a stored profile.
type ProfileResponse struct {
	Profile features.FeatureVector `json:"profile"`
	Created bool                   `json:"created,omitempty"`
}

// NeighborsResponse is the body of GET /users/{id}/neighbors.
type NeighborsResponse struct {
	UserID    int64          `json:"user_id"`
	K         int            `json:"k"`
	Neighbors []knn.Neighbor `json:"neighbors"`
}

// ClassificationResponse is the body of GET /users/{id}/classification and
// POST /classify.
type ClassificationResponse struct {
	UserID   int64             `json:"user_id"`
	Category features.Category `json:"category"`
}

// SimilarityResponse is the body of GET /users/{id}/similarity.
type SimilarityResponse struct {
	UserID int64   `json:"user_id"`
	Score  float64 `json:"score"`
}

// RecommendationsResponse is the body of GET /users/{id}/recommendations.
type RecommendationsResponse struct {
	UserID          int64                `json:"user_id"`
	Recommendations []knn.Recommendation `json:"recommendations"`
}

// PredictionResponse is the body of GET /users/{id}/prediction.
type PredictionResponse struct {
	UserID int64 `json:"user_id"`
	knn.PerformancePrediction
}

// OptimizeResponse is the body of POST /optimize.
type OptimizeResponse struct {
	knn.WeightSearchResult
	Applied bool `json:"applied"`
}
