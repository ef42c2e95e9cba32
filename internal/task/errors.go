package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by the Pool
var (
	// ErrPoolTerminated is returned for every job still outstanding when the
	// pool terminates, and by Execute once termination has begun.
	ErrPoolTerminated = errors.New("worker pool terminated")

	// ErrQueueFull is returned by Execute when MaxQueueDepth is reached.
	ErrQueueFull = errors.New("job queue is full")

	// ErrTimeout matches any TimeoutError.
	ErrTimeout = errors.New("job attempt timed out")

	// ErrWorkerCrash matches any WorkerCrashError.
	ErrWorkerCrash = errors.New("worker crashed")

	// ErrRetryExhausted matches any RetryExhaustedError.
	ErrRetryExhausted = errors.New("job retries exhausted")

	// ErrInvalidJob matches validation failures of Execute.
	ErrInvalidJob = errors.New("invalid job")
)

// TimeoutError reports an attempt that produced no response in time.
type TimeoutError struct {
	JobID   uuid.UUID
	Attempt int
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s attempt %d timed out after %v", e.JobID, e.Attempt, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// WorkerCrashError reports a worker that panicked while running a job.
type WorkerCrashError struct {
	WorkerID int
	JobID    uuid.UUID
	Panic    any
	Stack    []byte
}

func (e *WorkerCrashError) Error() string {
	return fmt.Sprintf("worker %d crashed running job %s: %v", e.WorkerID, e.JobID, e.Panic)
}

func (e *WorkerCrashError) Is(target error) bool {
	return target == ErrWorkerCrash
}

// RetryExhaustedError is the final error of a job whose retry budget is
// spent. It wraps the error of the last attempt.
type RetryExhaustedError struct {
	JobID    uuid.UUID
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("job %s failed after %d attempts: %v", e.JobID, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// ValidationError reports an Execute argument outside its allowed range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidJob
}

// HandlerNotFoundError reports a payload type with no registered handler.
type HandlerNotFoundError struct {
	Type string
}

func (e *HandlerNotFoundError) Error() string {
	return fmt.Sprintf("no handler registered for task type %q", e.Type)
}

func (e *HandlerNotFoundError) Is(target error) bool {
	return target == ErrInvalidJob
}

// IsTimeout reports whether err is or wraps a TimeoutError.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsWorkerCrash reports whether err is or wraps a WorkerCrashError.
func IsWorkerCrash(err error) bool {
	return errors.Is(err, ErrWorkerCrash)
}

// IsRetryExhausted reports whether err is or wraps a RetryExhaustedError.
func IsRetryExhausted(err error) bool {
	return errors.Is(err, ErrRetryExhausted)
}

// IsPoolTerminated reports whether err is or wraps ErrPoolTerminated.
func IsPoolTerminated(err error) bool {
	return errors.Is(err, ErrPoolTerminated)
}

func terminatedError(id uuid.UUID) error {
	return fmt.Errorf("job %s: %w", id, ErrPoolTerminated)
}
