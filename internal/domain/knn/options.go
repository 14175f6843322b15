package knn

import "github.com/okian/learnmatch/internal/domain/features"

// Default classifier configuration constants.
const (
	DefaultK = 5
)

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithK sets the neighbor count. Values <= 0 are rejected by New.
func WithK(k int) Option {
	return func(c *Classifier) {
		c.k = k
	}
}

// WithWeightedDistance toggles weighted Euclidean distance.
func WithWeightedDistance(enabled bool) Option {
	return func(c *Classifier) {
		c.weighted = enabled
	}
}

// WithFeatureWeights sets the per-dimension weights. Invalid weights are
// rejected by New.
func WithFeatureWeights(w features.FeatureWeights) Option {
	return func(c *Classifier) {
		c.weights = w
	}
}

// WithOptimizeWorkers sets the pool size used by OptimizeWeights.
func WithOptimizeWorkers(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.workers = n
		}
	}
}
