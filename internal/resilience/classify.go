package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
)

// Classifier decides whether a failed attempt may be retried.
type Classifier func(err error) bool

// Rules is a declarative retry classifier. An error is retryable when it
// matches any rule and has not been marked Permanent.
type Rules struct {
	// Errors are matched with errors.Is, which covers error codes such as
	// syscall.ECONNRESET as well as sentinel errors.
	Errors []error

	// Messages are matched as case-insensitive substrings of err.Error().
	Messages []string

	// StatusCodes are matched against the status attached by StatusError.
	StatusCodes []int

	// NetTimeouts treats net.Error values reporting Timeout() as retryable.
	NetTimeouts bool
}

// DefaultRules returns the rules used when a Policy has no Classifier.
func DefaultRules() Rules {
	return Rules{
		Errors: []error{
			context.DeadlineExceeded,
			io.ErrUnexpectedEOF,
			syscall.ECONNRESET,
			syscall.ECONNREFUSED,
			syscall.ECONNABORTED,
			syscall.ETIMEDOUT,
			syscall.EPIPE,
		},
		Messages: []string{
			"timeout",
			"timed out",
			"connection reset",
			"temporarily unavailable",
			"try again",
		},
		StatusCodes: []int{
			http.StatusRequestTimeout,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		NetTimeouts: true,
	}
}

// Retryable implements Classifier.
func (r Rules) Retryable(err error) bool {
	if err == nil || IsNonRetryable(err) || errors.Is(err, context.Canceled) {
		return false
	}

	for _, target := range r.Errors {
		if errors.Is(err, target) {
			return true
		}
	}

	if code := StatusCode(err); code != 0 && slices.Contains(r.StatusCodes, code) {
		return true
	}

	if r.NetTimeouts {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range r.Messages {
		if m != "" && strings.Contains(msg, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

// With returns a copy of r extended with the rules in other.
func (r Rules) With(other Rules) Rules {
	return Rules{
		Errors:      append(slices.Clone(r.Errors), other.Errors...),
		Messages:    append(slices.Clone(r.Messages), other.Messages...),
		StatusCodes: append(slices.Clone(r.StatusCodes), other.StatusCodes...),
		NetTimeouts: r.NetTimeouts || other.NetTimeouts,
	}
}
