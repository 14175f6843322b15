package features

import (
	"fmt"
	"strings"
)

// Category is the ground-truth label attached to a learner profile.
// It is never a model input.
type Category uint8

// Known categories. Unknown is the zero value and the result of classifying
// against an empty neighborhood.
const (
	Unknown Category = iota
	Beginner
	Intermediate
	Advanced
	Expert
)

var categoryNames = [...]string{
	Unknown:      "unknown",
	Beginner:     "beginner",
	Intermediate: "intermediate",
	Advanced:     "advanced",
	Expert:       "expert",
}

// Categories lists every labelled category in ascending skill order.
func Categories() []Category {
	return []Category{Beginner, Intermediate, Advanced, Expert}
}

// String returns the lowercase label.
func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return categoryNames[Unknown]
}

// ParseCategory maps a label to a Category. Matching is case-insensitive;
// an empty label is Unknown.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Unknown, nil
	}
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return Unknown, fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	parsed, err := ParseCategory(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
