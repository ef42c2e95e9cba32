package events

import (
	"context"
	"log/slog"
)

// LogObserver writes job lifecycle events to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger.With("component", "job_events")}
}

// Observe implements Observer.
func (o *LogObserver) Observe(event Event) {
	attrs := []slog.Attr{
		slog.String("job_id", event.JobID.String()),
		slog.String("task_type", event.TaskType),
		slog.Int("attempts", event.Attempts),
	}

	level := slog.LevelInfo
	msg := "job completed"
	switch event.Kind {
	case KindJobCompleted:
		attrs = append(attrs, slog.Duration("execution_time", event.ExecutionTime))
	case KindJobRetrying:
		level = slog.LevelWarn
		msg = "job attempt failed, retrying"
		attrs = append(attrs, slog.Duration("delay", event.Delay), slog.String("error", event.Error()))
	case KindJobFailed:
		level = slog.LevelError
		msg = "job failed"
		attrs = append(attrs, slog.String("error", event.Error()))
	default:
		msg = "job event"
		attrs = append(attrs, slog.String("kind", string(event.Kind)))
	}

	o.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
