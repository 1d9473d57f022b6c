package manager

import (
	"errors"
	"fmt"
	"time"

	"modelrt/internal/native"
)

// loadFailedError signals that the runtime could not be brought to ready.
// It is also the sticky failure reported while the handle stays failed.
type loadFailedError struct {
	reason string
	err    error
}

func (e loadFailedError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("load failed: %s: %v", e.reason, e.err)
	}
	return "load failed: " + e.reason
}

func (e loadFailedError) Unwrap() error { return e.err }

// Reason returns the short failure reason.
func (e loadFailedError) Reason() string { return e.reason }

// ErrLoadFailed constructs a LoadFailed error.
func ErrLoadFailed(reason string, err error) error { return loadFailedError{reason: reason, err: err} }

// IsLoadFailed reports whether err indicates a failed or poisoned runtime load.
func IsLoadFailed(err error) bool {
	var e loadFailedError
	return errors.As(err, &e)
}

// runtimeNotReadyError is returned when an operation needs a ready handle.
type runtimeNotReadyError struct{ state State }

func (e runtimeNotReadyError) Error() string { return "runtime not ready: " + string(e.state) }

// IsRuntimeNotReady reports whether err indicates the handle was not ready.
func IsRuntimeNotReady(err error) bool {
	var e runtimeNotReadyError
	return errors.As(err, &e)
}

// poolExhaustedError signals that no session slot freed up in time.
type poolExhaustedError struct {
	max    int
	waited time.Duration
}

func (e poolExhaustedError) Error() string {
	return fmt.Sprintf("session pool exhausted: %d sessions active, waited %s", e.max, e.waited)
}

// IsPoolExhausted reports whether err indicates lease backpressure.
func IsPoolExhausted(err error) bool {
	var e poolExhaustedError
	return errors.As(err, &e)
}

// invalidRequestError signals a malformed generate call.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return "invalid request: " + e.msg }

// IsInvalidRequest reports whether err indicates a rejected request.
func IsInvalidRequest(err error) bool {
	var e invalidRequestError
	return errors.As(err, &e)
}

// generationTimeoutError signals a generation that ran past its deadline and
// was force-terminated.
type generationTimeoutError struct {
	session string
	after   time.Duration
}

func (e generationTimeoutError) Error() string {
	return fmt.Sprintf("generation timeout: session %s after %s", e.session, e.after)
}

// IsGenerationTimeout reports whether err indicates a generation timeout.
func IsGenerationTimeout(err error) bool {
	var e generationTimeoutError
	return errors.As(err, &e)
}

// IsDependencyUnavailable reports whether err indicates a missing native
// backend, so the HTTP layer can return 503 instead of 500.
func IsDependencyUnavailable(err error) bool {
	return errors.Is(err, native.ErrUnavailable)
}
