package features

import "errors"

// Sentinel errors for profile validation.
var (
	ErrNonFinite       = errors.New("feature value is not finite or out of range")
	ErrNegativeWeight  = errors.New("feature weight must be finite and non-negative")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidUserID   = errors.New("user id must be positive")
)
