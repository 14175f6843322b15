package worker

import (
	"time"

	"github.com/okian/learnmatch/pkg/logger"
)

// Option configures an InMemoryWorker. Pool applies the same options to
// every worker it creates.
type Option func(*InMemoryWorker)

// WithName labels the worker's log lines. Pool names its workers
// worker-0..worker-N-1 unless overridden.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger replaces the worker's base logger.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithEventTimeout bounds extraction plus the store write for one event.
// Zero, the default, leaves events bounded only by the run context.
func WithEventTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.eventTimeout = d
		}
	}
}
