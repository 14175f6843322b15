package api

import (
	"errors"
	"net/http"

	queue "github.com/okian/learnmatch/internal/adapters/mq/queue"
	repository "github.com/okian/learnmatch/internal/adapters/repository"
	"github.com/okian/learnmatch/internal/domain/features"
	"github.com/okian/learnmatch/internal/domain/knn"
	"github.com/okian/learnmatch/internal/domain/types"
)

// Sentinel kinds for API errors. The kind of an OpError picks the status.
var (
	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrBackpressure = errors.New("backpressure")
	ErrUnavailable  = errors.New("unavailable")
)

// OpError records the handler operation and error kind behind a response.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + e.Kind.Error()
	}
	return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewKind returns an OpError with no underlying cause.
func NewKind(op string, kind error) error {
	return &OpError{Op: op, Kind: kind}
}

// WrapKind returns an OpError of the given kind around err.
func WrapKind(op string, kind, err error) error {
	return &OpError{Op: op, Kind: kind, Err: err}
}

// Wrap returns an OpError whose kind is derived from err.
func Wrap(op string, err error) error {
	return &OpError{Op: op, Kind: kindOf(err), Err: err}
}

// errInternal is the kind for everything without a more specific mapping.
var errInternal = errors.New("internal error")

func kindOf(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, queue.ErrQueueFull):
		return ErrBackpressure
	case errors.Is(err, queue.ErrQueueClosed), errors.Is(err, repository.ErrClosed):
		return ErrUnavailable
	case errors.Is(err, types.ErrInvalidRequest),
		errors.Is(err, features.ErrNonFinite),
		errors.Is(err, features.ErrInvalidUserID),
		errors.Is(err, features.ErrUnknownCategory),
		errors.Is(err, features.ErrNegativeWeight),
		errors.Is(err, knn.ErrInvalidWeights):
		return ErrBadRequest
	default:
		return errInternal
	}
}

// statusFor maps an error to its HTTP status and response code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
