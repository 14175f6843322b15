// Package knn implements k-nearest-neighbor search over learner profiles:
// neighbor lookup, plurality classification, similarity scoring,
// recommendations, performance prediction, validation and a weight search.
//
// A Classifier is safe for concurrent use. Train publishes a new immutable
// training snapshot atomically; queries read whichever snapshot is current
// when they start.
package knn

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/okian/learnmatch/internal/domain/features"
)

// sharedThreshold is the absolute difference under which a dimension counts
// as a shared characteristic.
const sharedThreshold = 0.1

// Neighbor pairs a training profile with its distance to the query.
type Neighbor struct {
	Profile  features.FeatureVector `json:"profile"`
	Distance float64                `json:"distance"`
}

// Recommendation is a similar learner with the traits they share with the query.
type Recommendation struct {
	UserID                int64    `json:"user_id"`
	Similarity            float64  `json:"similarity"`
	SharedCharacteristics []string `json:"shared_characteristics"`
}

// PerformancePrediction is a similarity-weighted estimate from the neighborhood.
type PerformancePrediction struct {
	PredictedAccuracy    float64 `json:"predicted_accuracy"`
	PredictedSpeed       float64 `json:"predicted_speed"`
	PredictedConsistency float64 `json:"predicted_consistency"`
	Confidence           float64 `json:"confidence"`
}

// ValidationResult reports classification accuracy over a labelled test set.
type ValidationResult struct {
	Accuracy           float64 `json:"accuracy"`
	CorrectPredictions int     `json:"correct_predictions"`
	TotalPredictions   int     `json:"total_predictions"`
}

type snapshot struct {
	vectors []features.FeatureVector
}

// Classifier holds a training set and answers neighbor queries against it.
type Classifier struct {
	k        int
	weighted bool
	weights  features.FeatureWeights
	workers  int

	data atomic.Pointer[snapshot]
}

// New creates a classifier with an empty training set.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		k:       DefaultK,
		weights: features.DefaultWeights(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, c.k)
	}
	if err := c.weights.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidWeights, err)
	}
	c.data.Store(&snapshot{})
	return c, nil
}

// K returns the neighbor count.
func (c *Classifier) K() int { return c.k }

// Weighted reports whether weighted distance is in use.
func (c *Classifier) Weighted() bool { return c.weighted }

// Weights returns the configured feature weights.
func (c *Classifier) Weights() features.FeatureWeights { return c.weights }

// Size returns the number of vectors in the current training set.
func (c *Classifier) Size() int { return len(c.data.Load().vectors) }

// TrainingData returns a copy of the current training set.
func (c *Classifier) TrainingData() []features.FeatureVector {
	vs := c.data.Load().vectors
	out := make([]features.FeatureVector, len(vs))
	copy(out, vs)
	return out
}

// Train replaces the training set. The input is copied; order is kept and
// decides distance ties. An empty set is valid. On error the previous
// training set stays in place.
func (c *Classifier) Train(vectors []features.FeatureVector) error {
	vs := make([]features.FeatureVector, len(vectors))
	for i, v := range vectors {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("training vector %d (user %d): %w", i, v.UserID, err)
		}
		vs[i] = v
	}
	c.data.Store(&snapshot{vectors: vs})
	return nil
}

func (c *Classifier) distance(a, b features.FeatureVector) float64 {
	if c.weighted {
		return a.WeightedDistanceTo(b, c.weights)
	}
	return a.DistanceTo(b)
}

// FindNearestNeighbors returns up to k training profiles closest to target,
// ascending by distance. Profiles with target's UserID are skipped. Equal
// distances keep training-set order.
func (c *Classifier) FindNearestNeighbors(target features.FeatureVector) []Neighbor {
	return c.neighbors(c.data.Load(), target)
}

func (c *Classifier) neighbors(s *snapshot, target features.FeatureVector) []Neighbor {
	if len(s.vectors) == 0 {
		return []Neighbor{}
	}
	out := make([]Neighbor, 0, len(s.vectors))
	for _, v := range s.vectors {
		if v.UserID == target.UserID {
			continue
		}
		out = append(out, Neighbor{Profile: v, Distance: c.distance(target, v)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	if len(out) > c.k {
		out = out[:c.k]
	}
	return out
}

// ClassifyUser returns the plurality category among target's neighbors.
// Among tied counts the category seen first in the neighbor list wins.
// With no neighbors the result is Unknown.
func (c *Classifier) ClassifyUser(target features.FeatureVector) features.Category {
	return classify(c.FindNearestNeighbors(target))
}

func classify(ns []Neighbor) features.Category {
	if len(ns) == 0 {
		return features.Unknown
	}
	counts := make(map[features.Category]int, len(ns))
	order := make([]features.Category, 0, len(ns))
	for _, n := range ns {
		if counts[n.Profile.Category] == 0 {
			order = append(order, n.Profile.Category)
		}
		counts[n.Profile.Category]++
	}
	best, bestCount := features.Unknown, 0
	for _, cat := range order {
		if counts[cat] > bestCount {
			best, bestCount = cat, counts[cat]
		}
	}
	return best
}

func similarity(distance float64) float64 {
	return 1 / (1 + distance)
}

// CalculateSimilarityScore is the mean of 1/(1+distance) over the
// neighbors, in (0,1], or 0 when there are none.
func (c *Classifier) CalculateSimilarityScore(target features.FeatureVector) float64 {
	return meanSimilarity(c.FindNearestNeighbors(target))
}

func meanSimilarity(ns []Neighbor) float64 {
	if len(ns) == 0 {
		return 0
	}
	var sum float64
	for _, n := range ns {
		sum += similarity(n.Distance)
	}
	return sum / float64(len(ns))
}

// RecommendSimilarUsers returns the first limit neighbors as recommendations.
// Only accuracy, speed, frequency, consistency and difficulty preference are
// checked for shared characteristics.
func (c *Classifier) RecommendSimilarUsers(target features.FeatureVector, limit int) []Recommendation {
	if limit <= 0 {
		return []Recommendation{}
	}
	ns := c.FindNearestNeighbors(target)
	if len(ns) > limit {
		ns = ns[:limit]
	}
	out := make([]Recommendation, 0, len(ns))
	for _, n := range ns {
		out = append(out, Recommendation{
			UserID:                n.Profile.UserID,
			Similarity:            similarity(n.Distance),
			SharedCharacteristics: shared(target, n.Profile),
		})
	}
	return out
}

var sharedChecks = []struct {
	label string
	idx   int
}{
	{"Similar accuracy", features.IdxAccuracyRate},
	{"Similar learning speed", features.IdxLearningSpeed},
	{"Similar study frequency", features.IdxStudyFrequency},
	{"Similar consistency", features.IdxConsistency},
	{"Similar difficulty preference", features.IdxDifficultyPreference},
}

func shared(a, b features.FeatureVector) []string {
	av, bv := a.Values(), b.Values()
	out := []string{}
	for _, chk := range sharedChecks {
		if math.Abs(av[chk.idx]-bv[chk.idx]) < sharedThreshold {
			out = append(out, chk.label)
		}
	}
	return out
}

// PredictPerformance averages the neighbors' accuracy, speed and
// consistency weighted by 1/(1+distance). Confidence is the similarity score.
func (c *Classifier) PredictPerformance(target features.FeatureVector) PerformancePrediction {
	ns := c.FindNearestNeighbors(target)
	if len(ns) == 0 {
		return PerformancePrediction{}
	}
	var acc, speed, cons, total float64
	for _, n := range ns {
		w := similarity(n.Distance)
		acc += w * n.Profile.AccuracyRate
		speed += w * n.Profile.LearningSpeed
		cons += w * n.Profile.Consistency
		total += w
	}
	if total == 0 {
		return PerformancePrediction{}
	}
	return PerformancePrediction{
		PredictedAccuracy:    acc / total,
		PredictedSpeed:       speed / total,
		PredictedConsistency: cons / total,
		Confidence:           meanSimilarity(ns),
	}
}

// ValidateModel classifies every test vector against the current training
// set and compares the result with its own category.
func (c *Classifier) ValidateModel(testSet []features.FeatureVector) ValidationResult {
	return c.validate(c.data.Load(), testSet)
}

func (c *Classifier) validate(s *snapshot, testSet []features.FeatureVector) ValidationResult {
	if len(testSet) == 0 {
		return ValidationResult{}
	}
	correct := 0
	for _, v := range testSet {
		if classify(c.neighbors(s, v)) == v.Category {
			correct++
		}
	}
	return ValidationResult{
		Accuracy:           float64(correct) / float64(len(testSet)),
		CorrectPredictions: correct,
		TotalPredictions:   len(testSet),
	}
}
