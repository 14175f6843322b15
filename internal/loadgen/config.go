// Package loadgen drives a running learnmatch service with synthetic learners
// and checks that the classifier recovers the labels they were drawn from.
package loadgen

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for Config.
const (
	DefaultBaseURL = "http://localhost:9080"
	DefaultUsers   = 1000
	DefaultTimeout = 30 * time.Second
	DefaultWait    = 5 * time.Second
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid loadgen config")

// Config holds the settings for one run.
type Config struct {
	BaseURL     string        // Service base URL
	Users       int           // Number of synthetic learners
	FirstUserID int64         // User id of the first learner
	Workers     int           // Concurrent HTTP workers
	Timeout     time.Duration // Per-request timeout
	Wait        time.Duration // Pause between submitting and verifying
	Seed        uint64        // Generator seed; equal seeds give equal learners
	OutputFile  string        // Optional JSON dump of the submitted requests
}

// Validate checks the settings a run cannot proceed without.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url must not be empty", ErrInvalidConfig)
	case c.Users <= 0:
		return fmt.Errorf("%w: users must be positive, got %d", ErrInvalidConfig, c.Users)
	case c.FirstUserID <= 0:
		return fmt.Errorf("%w: first user id must be positive, got %d", ErrInvalidConfig, c.FirstUserID)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	}
	return nil
}

// Stats summarizes a run.
type Stats struct {
	Generated   int
	Accepted    int
	Duplicate   int
	Backpressed int
	Failed      int

	Classified int
	Agreed     int
	Missing    int

	StartTime time.Time
	Duration  time.Duration
}

// Agreement is the fraction of classified learners whose predicted category
// matched the archetype they were generated from.
func (s *Stats) Agreement() float64 {
	if s.Classified == 0 {
		return 0
	}
	return float64(s.Agreed) / float64(s.Classified)
}
