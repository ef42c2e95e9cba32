package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/reelforge/internal/task"
)

// TaskType is the task type under which NewTaskHandler is registered.
const TaskType = "generate_script"

// NewTaskHandler adapts a ScriptGenerator to a task.Handler. The job payload
// data is a JSON-encoded ScriptRequest and the job result is a *Script.
func NewTaskHandler(gen ScriptGenerator) task.Handler {
	return func(ctx context.Context, jobID uuid.UUID, data json.RawMessage) (any, error) {
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: job %s has no payload data", ErrInvalidRequest, jobID)
		}

		var req ScriptRequest
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("%w: job %s: %v", ErrInvalidRequest, jobID, err)
		}

		script, err := gen.GenerateScript(ctx, req)
		if err != nil {
			if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrContentBlocked) ||
				errors.Is(err, ErrInvalidResponse) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		return script, nil
	}
}
