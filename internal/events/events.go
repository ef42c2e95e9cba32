package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the type of a lifecycle event.
type Kind string

// Event kinds emitted by the worker pool.
const (
	KindJobCompleted Kind = "job_completed"
	KindJobFailed    Kind = "job_failed"
	KindJobRetrying  Kind = "job_retrying"
)

// Event describes one job lifecycle transition.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Kind indicates what happened to the job
	Kind Kind `json:"kind"`

	// JobID identifies the job the event refers to
	JobID uuid.UUID `json:"job_id"`

	// TaskType is the registered handler type of the job
	TaskType string `json:"task_type"`

	// Attempts is the number of attempts made so far
	Attempts int `json:"attempts"`

	// ExecutionTime is the duration of the final attempt (completed events)
	ExecutionTime time.Duration `json:"execution_time,omitempty"`

	// Delay is the backoff before the next attempt (retrying events)
	Delay time.Duration `json:"delay,omitempty"`

	// Err is the failure cause (failed and retrying events)
	Err error `json:"-"`

	// OccurredAt is when the pool emitted the event
	OccurredAt time.Time `json:"occurred_at"`
}

// Error returns the failure message, or "" for successful events.
func (e Event) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// NewEvent creates an Event of the given kind for a job.
func NewEvent(kind Kind, jobID uuid.UUID, taskType string, attempts int) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       kind,
		JobID:      jobID,
		TaskType:   taskType,
		Attempts:   attempts,
		OccurredAt: time.Now(),
	}
}

// Observer receives job lifecycle events. Implementations must return quickly
// and must not call back into the pool.
type Observer interface {
	Observe(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(event Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(event Event) {
	f(event)
}

// Fanout returns an Observer that forwards each event to every non-nil
// observer in order.
func Fanout(observers ...Observer) Observer {
	targets := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			targets = append(targets, o)
		}
	}
	return ObserverFunc(func(event Event) {
		for _, o := range targets {
			o.Observe(event)
		}
	})
}

// Discard is an Observer that ignores every event.
var Discard Observer = ObserverFunc(func(Event) {})
