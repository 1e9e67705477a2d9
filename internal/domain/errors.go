package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnsupportedGame      = errors.New("unsupported game")
	ErrProviderUnconfigured = errors.New("provider unconfigured")
	ErrNoData               = errors.New("no data available")
)

// ProviderTransientError covers network failures, timeouts, 429 and 5xx responses.
type ProviderTransientError struct {
	Provider   string
	Status     int
	RetryAfter time.Duration
	Err        error
}

func (e *ProviderTransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("provider %s: transient error: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("provider %s: transient error: %v", e.Provider, e.Err)
}

func (e *ProviderTransientError) Unwrap() error { return e.Err }

// ProviderDataError reports a payload that could not be normalized.
// Only the status and body size are kept.
type ProviderDataError struct {
	Provider string
	Status   int
	BodySize int
}

func (e *ProviderDataError) Error() string {
	return fmt.Sprintf("provider %s: malformed payload: status %d, %d bytes", e.Provider, e.Status, e.BodySize)
}

func ClassifyFailure(err error) FailureKind {
	var dataErr *ProviderDataError
	switch {
	case errors.Is(err, ErrProviderUnconfigured):
		return FailureUnconfigured
	case errors.As(err, &dataErr):
		return FailureData
	default:
		return FailureTransient
	}
}
