package places

import (
	"errors"
	"fmt"
)

var ErrNoAPIKey = errors.New("places api key not configured")

// TransientError is a failure worth retrying: throttling, 5xx, or a network fault.
type TransientError struct {
	Status int
	// Throttled is set for 429 / RESOURCE_EXHAUSTED.
	Throttled bool
	Err       error
}

func (e *TransientError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("places: transient status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("places: transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// UpstreamFailure is returned once retries are exhausted.
type UpstreamFailure struct {
	Attempts int
	Last     error
}

func (e *UpstreamFailure) Error() string {
	return fmt.Sprintf("places: gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *UpstreamFailure) Unwrap() error { return e.Last }

// APIError is a request the provider rejected outright (bad key, bad argument).
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("places: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("places: %d: %s", e.Status, e.Message)
}

// IsTransient reports whether err (or anything it wraps) is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsThrottled reports whether err is a quota or rate rejection.
func IsThrottled(err error) bool {
	var te *TransientError
	return errors.As(err, &te) && te.Throttled
}

type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
