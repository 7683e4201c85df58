package tts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/aws/smithy-go"
)

var (
	// ErrNotConfigured means credentials or executables are missing. Fatal.
	ErrNotConfigured = errors.New("backend not configured")
	// ErrBackendUnavailable covers timeouts, throttling and server faults.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrMissingTimepoints is returned when a backend asked for marks sends none.
	ErrMissingTimepoints = errors.New("backend returned no timepoints")
	// ErrUnknownBackend is returned for ids that have no registered adapter.
	ErrUnknownBackend = errors.New("unknown backend")
)

// BackendError records a failed backend call.
type BackendError struct {
	Backend string
	Status  int
	Body    string
	Err     error
}

func (e *BackendError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Backend, e.Status, e.Body)
	}
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Retryable reports whether the status is a throttle or server fault.
func (e *BackendError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests ||
		e.Status == http.StatusRequestTimeout ||
		e.Status >= http.StatusInternalServerError
}

// IsRetryable classifies an adapter error. Configuration and timing-contract
// failures are permanent; stalls, throttles and 5xx responses are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrMissingTimepoints) ||
		errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrBackendUnavailable) {
		return true
	}

	var be *BackendError
	if errors.As(err, &be) && be.Status != 0 {
		return be.Retryable()
	}

	// Polly reports throttling as a 400 with a typed error code.
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceFailureException":
			return true
		}
	}

	var status interface{ HTTPStatusCode() int }
	if errors.As(err, &status) {
		code := status.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
