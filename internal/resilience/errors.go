package resilience

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCircuitOpen is returned when a circuit breaker refuses a call
	// without invoking the guarded operation.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrNonRetryable marks errors the retry classifier deemed fatal.
	ErrNonRetryable = errors.New("non-retryable operation error")
)

// CircuitOpenError reports a fail-fast refusal from a named breaker.
type CircuitOpenError struct {
	Name        string
	NextAttempt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.NextAttempt.Format(time.RFC3339Nano))
}

// Is lets errors.Is(err, ErrCircuitOpen) match any CircuitOpenError.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// IsCircuitOpen reports whether err is (or wraps) a breaker refusal.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// NonRetryableError wraps an operation error that must not be retried.
// The original error stays reachable through errors.Is and errors.As.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrNonRetryable) match any NonRetryableError.
func (e *NonRetryableError) Is(target error) bool {
	return target == ErrNonRetryable
}

// Permanent marks err as fatal so Retry returns it without further attempts.
// A nil err stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	var nre *NonRetryableError
	if errors.As(err, &nre) {
		return err
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err was classified as fatal.
func IsNonRetryable(err error) bool {
	return errors.Is(err, ErrNonRetryable)
}

// StatusError attaches an HTTP status code to an error returned by a remote
// dependency so classifiers can match on status membership.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("remote call failed with status %d", e.Code)
	}
	return fmt.Sprintf("remote call failed with status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0 if none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}
