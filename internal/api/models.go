package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelforge/internal/events"
)

// SubmitJobRequest is the body of POST /api/jobs.
type SubmitJobRequest struct {
	// Type selects the registered task handler
	Type string `json:"type" validate:"required,max=100"`

	// Data is passed to the handler untouched
	Data json.RawMessage `json:"data,omitempty"`

	// Priority is one of high, normal or low (default normal)
	Priority string `json:"priority,omitempty" validate:"omitempty,oneof=high normal low"`

	// Retries overrides the pool's default retry count
	Retries *int `json:"retries,omitempty" validate:"omitempty,gte=0,lte=10"`

	// TimeoutMS overrides the pool's default per-attempt timeout
	TimeoutMS int `json:"timeout_ms,omitempty" validate:"omitempty,gt=0,lte=3600000"`
}

// JobResponse is returned once a job has completed.
type JobResponse struct {
	JobID    uuid.UUID `json:"job_id"`
	Status   string    `json:"status"`
	Result   any       `json:"result,omitempty"`
	Duration string    `json:"duration"`
}

// EventPayload is the JSON form of a pool event in the event stream.
type EventPayload struct {
	ID              uuid.UUID   `json:"id"`
	Kind            events.Kind `json:"kind"`
	JobID           uuid.UUID   `json:"job_id"`
	TaskType        string      `json:"task_type"`
	Attempts        int         `json:"attempts"`
	ExecutionTimeMS int64       `json:"execution_time_ms,omitempty"`
	DelayMS         int64       `json:"delay_ms,omitempty"`
	Error           string      `json:"error,omitempty"`
	OccurredAt      time.Time   `json:"occurred_at"`
}

func newEventPayload(e events.Event) EventPayload {
	return EventPayload{
		ID:              e.ID,
		Kind:            e.Kind,
		JobID:           e.JobID,
		TaskType:        e.TaskType,
		Attempts:        e.Attempts,
		ExecutionTimeMS: e.ExecutionTime.Milliseconds(),
		DelayMS:         e.Delay.Milliseconds(),
		Error:           eventErrorMessage(e),
		OccurredAt:      e.OccurredAt,
	}
}

// eventErrorMessage returns the client-safe error message of a failed or
// retrying event, or "" for completed events.
func eventErrorMessage(e events.Event) string {
	if e.Err == nil {
		return ""
	}
	return GetSafeErrorMessage(e.Err)
}
