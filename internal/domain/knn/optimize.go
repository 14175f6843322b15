package knn

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/learnmatch/internal/domain/features"
)

// weightCandidates are the multipliers tried for each searched dimension.
var weightCandidates = [...]float64{0.5, 1.0, 1.5, 2.0}

// GridSize is the number of weight combinations OptimizeWeights evaluates.
const GridSize = len(weightCandidates) * len(weightCandidates) * len(weightCandidates)

// WeightSearchResult is the outcome of OptimizeWeights.
type WeightSearchResult struct {
	Weights   features.FeatureWeights `json:"weights"`
	Accuracy  float64                 `json:"accuracy"`
	Evaluated int                     `json:"evaluated"`
}

// combination returns the weights for grid index i. Indexes run
// accuracy-major, then learning speed, then study frequency.
func combination(base features.FeatureWeights, i int) features.FeatureWeights {
	n := len(weightCandidates)
	w := base
	w.AccuracyRate = weightCandidates[i/(n*n)]
	w.LearningSpeed = weightCandidates[(i/n)%n]
	w.StudyFrequency = weightCandidates[i%n]
	return w
}

// OptimizeWeights grid-searches the accuracy, learning speed and study
// frequency weights over {0.5, 1.0, 1.5, 2.0}, holding the other six at the
// classifier's configured values. Each combination gets its own weighted
// classifier over the current training set and is scored with
// ValidateModel against validationSet. The lowest-indexed combination with
// the strictly highest accuracy wins; if none beats zero accuracy the
// configured weights are returned. The receiver is not modified.
func (c *Classifier) OptimizeWeights(ctx context.Context, validationSet []features.FeatureVector) (WeightSearchResult, error) {
	s := c.data.Load()
	accuracies := make([]float64, GridSize)

	jobs := make(chan int)
	workers := c.workers
	if workers > GridSize {
		workers = GridSize
	}

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				tmp := &Classifier{
					k:        c.k,
					weighted: true,
					weights:  combination(c.weights, i),
				}
				accuracies[i] = tmp.validate(s, validationSet).Accuracy
			}
		}()
	}

	var err error
feed:
	for i := range GridSize {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err != nil {
		return WeightSearchResult{}, fmt.Errorf("weight search cancelled: %w", err)
	}

	best := WeightSearchResult{Weights: c.weights, Evaluated: GridSize}
	for i, acc := range accuracies {
		if acc > best.Accuracy {
			best.Accuracy = acc
			best.Weights = combination(c.weights, i)
		}
	}
	return best, nil
}

// WithSearchResult returns a new weighted classifier using the found
// weights and sharing the receiver's current training set.
func (c *Classifier) WithSearchResult(r WeightSearchResult) (*Classifier, error) {
	next, err := New(WithK(c.k), WithWeightedDistance(true), WithFeatureWeights(r.Weights), WithOptimizeWorkers(c.workers))
	if err != nil {
		return nil, err
	}
	next.data.Store(c.data.Load())
	return next, nil
}
