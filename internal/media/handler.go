package media

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/phrazzld/reelforge/internal/task"
)

// TaskType is the task type under which NewTaskHandler is registered.
const TaskType = "media_command"

// CommandRequest is the payload data of a media job.
type CommandRequest struct {
	Args []string `json:"args" validate:"required,min=1,max=256,dive,required"`
}

// NewTaskHandler adapts a Runner to a task.Handler. The job result is a
// *Result.
func NewTaskHandler(r *Runner) task.Handler {
	validate := validator.New()

	return func(ctx context.Context, jobID uuid.UUID, data json.RawMessage) (any, error) {
		var req CommandRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("invalid media payload for job %s: %w", jobID, err)
		}
		if err := validate.Struct(req); err != nil {
			return nil, fmt.Errorf("invalid media payload for job %s: %w", jobID, err)
		}

		r.logger.DebugContext(ctx, "running media job", "job_id", jobID, "args", len(req.Args))
		return r.Run(ctx, req.Args)
	}
}
