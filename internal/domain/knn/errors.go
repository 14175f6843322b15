package knn

import "errors"

// Sentinel errors for classifier configuration.
var (
	ErrInvalidK       = errors.New("k must be positive")
	ErrInvalidWeights = errors.New("invalid feature weights")
)
