package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/reelforge/internal/generation"
	"github.com/phrazzld/reelforge/internal/resilience"
	"github.com/phrazzld/reelforge/internal/task"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var validationErrs validator.ValidationErrors

	switch {
	// Bad request errors
	case errors.Is(err, task.ErrInvalidJob),
		errors.As(err, &validationErrs):
		return http.StatusBadRequest

	// Backpressure
	case errors.Is(err, task.ErrQueueFull):
		return http.StatusTooManyRequests

	// Unavailable: shutting down or dependency circuit open
	case errors.Is(err, task.ErrPoolTerminated),
		resilience.IsCircuitOpen(err):
		return http.StatusServiceUnavailable

	// Timeouts
	case errors.Is(err, task.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// Job ran and failed
	case errors.Is(err, task.ErrRetryExhausted):
		return http.StatusBadGateway

	// Client went away before the result was ready
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var notFound *task.HandlerNotFoundError
	var invalid *task.ValidationError

	switch {
	case errors.As(err, &notFound):
		return "Unknown job type"

	case errors.As(err, &invalid):
		return "Invalid job options: " + invalid.Field

	case errors.Is(err, task.ErrQueueFull):
		return "Job queue is full, retry later"

	case errors.Is(err, task.ErrPoolTerminated):
		return "Server is shutting down"

	case resilience.IsCircuitOpen(err):
		return "A required service is temporarily unavailable"

	case errors.Is(err, task.ErrTimeout):
		return "Job timed out"

	case errors.Is(err, context.DeadlineExceeded):
		return "Timed out waiting for job result"

	case errors.Is(err, generation.ErrContentBlocked):
		return "Content was blocked by safety filters"

	case errors.Is(err, generation.ErrInvalidRequest):
		return "Invalid script request"

	case errors.Is(err, task.ErrWorkerCrash):
		return "Job crashed"

	case errors.Is(err, task.ErrRetryExhausted):
		return "Job failed"

	case errors.Is(err, context.Canceled):
		return "Request canceled"

	default:
		return "An unexpected error occurred"
	}
}
