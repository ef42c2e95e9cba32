package gemini

import (
	"errors"
	"fmt"

	"github.com/phrazzld/reelforge/internal/generation"
	"github.com/phrazzld/reelforge/internal/resilience"
	"google.golang.org/genai"
)

// ErrEmptyPrompt is returned when the rendered prompt is empty.
var ErrEmptyPrompt = errors.New("prompt cannot be empty")

// classifyAPIError converts a Gemini client error into one the retry policy
// can classify. API errors keep their HTTP status code so only the preset's
// retryable statuses are retried; anything else is a transport failure and
// wraps generation.ErrTransientFailure.
func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}

	if code, ok := apiErrorCode(err); ok {
		return &resilience.StatusError{
			Code: code,
			Err:  fmt.Errorf("gemini API error: %w", err),
		}
	}
	return fmt.Errorf("%w: %w", generation.ErrTransientFailure, err)
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
