package task

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Priority orders jobs in the queue. Lower values are dispatched first.
type Priority int

// Priority bands
const (
	PriorityHigh   Priority = 0
	PriorityNormal Priority = 1
	PriorityLow    Priority = 2

	numPriorities = 3
)

// String returns the band name used in stats and logs.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid reports whether p is one of the defined bands.
func (p Priority) Valid() bool {
	return p >= PriorityHigh && p <= PriorityLow
}

// ParsePriority converts a band name to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return PriorityHigh, nil
	case "normal", "":
		return PriorityNormal, nil
	case "low":
		return PriorityLow, nil
	default:
		return 0, &ValidationError{Field: "priority", Message: fmt.Sprintf("unknown priority %q", s)}
	}
}

// Payload is the opaque unit of work a worker receives. Type selects the
// registered Handler; Data is passed to it untouched.
type Payload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Handler executes one attempt of a job. It receives the job ID and the
// payload data and must return exactly once. ctx is cancelled when the
// attempt times out or the pool terminates.
//
// A goroutine cannot be killed, so a Handler that ignores ctx keeps running
// after its attempt has timed out. Its worker is detached and keeps its slot
// until the Handler returns, which holds concurrency at MaxWorkers but
// shrinks the pool meanwhile (see WorkerStats.Detached). A Handler that
// never returns holds its slot until the process exits.
type Handler func(ctx context.Context, jobID uuid.UUID, data json.RawMessage) (any, error)

// Option customizes a single Execute call.
type Option func(*jobOptions)

type jobOptions struct {
	priority Priority
	retries  int
	timeout  time.Duration
}

// WithPriority sets the job's priority band. The default is PriorityNormal.
func WithPriority(p Priority) Option {
	return func(o *jobOptions) {
		o.priority = p
	}
}

// WithRetries sets how many times a failed job is retried. Zero disables
// retries.
func WithRetries(n int) Option {
	return func(o *jobOptions) {
		o.retries = n
	}
}

// WithTimeout bounds each attempt of the job.
func WithTimeout(d time.Duration) Option {
	return func(o *jobOptions) {
		o.timeout = d
	}
}

func (o jobOptions) validate() error {
	if !o.priority.Valid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("must be 0, 1 or 2, got %d", int(o.priority))}
	}
	if o.retries < 0 {
		return &ValidationError{Field: "retries", Message: "must not be negative"}
	}
	if o.timeout <= 0 {
		return &ValidationError{Field: "timeout", Message: "must be positive"}
	}
	return nil
}

// job is the pool's internal record of a submitted unit of work. It is only
// touched by the control goroutine once submitted.
type job struct {
	id          uuid.UUID
	payload     Payload
	handler     Handler
	priority    Priority
	maxRetries  int
	retriesLeft int
	timeout     time.Duration
	attempts    int
	submittedAt time.Time
	enqueuedAt  time.Time
	lastErr     error
	future      *Future

	// seq and index are maintained by jobQueue.
	seq   uint64
	index int
}
