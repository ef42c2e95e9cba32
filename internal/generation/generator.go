package generation

import (
	"context"
	"fmt"
	"strings"
)

// ScriptGenerator defines the interface for generating video scripts.
// It is the only way the task engine reaches an LLM provider.
type ScriptGenerator interface {
	// GenerateScript writes a script for the request. Errors wrap one of the
	// sentinels in errors.go so callers can decide whether to retry.
	GenerateScript(ctx context.Context, req ScriptRequest) (*Script, error)
}

// ScriptRequest describes the script to write.
type ScriptRequest struct {
	// Topic is the subject of the video
	Topic string `json:"topic" validate:"required,max=500"`

	// Style is a free-form tone hint such as "documentary" or "upbeat"
	Style string `json:"style,omitempty" validate:"max=100"`

	// DurationSeconds is the target length of the whole video
	DurationSeconds int `json:"duration_seconds,omitempty" validate:"omitempty,gte=5,lte=600"`

	// SceneCount is the number of scenes to produce
	SceneCount int `json:"scene_count,omitempty" validate:"omitempty,gte=1,lte=20"`
}

// Defaults applied by WithDefaults.
const (
	DefaultDurationSeconds = 60
	DefaultSceneCount      = 5
)

// WithDefaults returns a copy of r with zero-valued optional fields filled.
func (r ScriptRequest) WithDefaults() ScriptRequest {
	if r.DurationSeconds == 0 {
		r.DurationSeconds = DefaultDurationSeconds
	}
	if r.SceneCount == 0 {
		r.SceneCount = DefaultSceneCount
	}
	r.Topic = strings.TrimSpace(r.Topic)
	return r
}

// Script is a generated video script.
type Script struct {
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// Scene is one narrated shot of a Script.
type Scene struct {
	// Narration is the voice-over text
	Narration string `json:"narration"`

	// Visual is a search query describing stock footage for the scene
	Visual string `json:"visual"`

	// DurationSeconds is how long the scene stays on screen
	DurationSeconds float64 `json:"duration_seconds"`
}

// TotalDuration sums the scene durations.
func (s *Script) TotalDuration() float64 {
	var total float64
	for _, scene := range s.Scenes {
		total += scene.DurationSeconds
	}
	return total
}

// Validate checks that a generated script is usable. Errors wrap
// ErrInvalidResponse.
func (s *Script) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: script is nil", ErrInvalidResponse)
	}
	if strings.TrimSpace(s.Title) == "" {
		return fmt.Errorf("%w: script has no title", ErrInvalidResponse)
	}
	if len(s.Scenes) == 0 {
		return fmt.Errorf("%w: script has no scenes", ErrInvalidResponse)
	}
	for i, scene := range s.Scenes {
		if strings.TrimSpace(scene.Narration) == "" {
			return fmt.Errorf("%w: scene %d missing narration", ErrInvalidResponse, i)
		}
		if strings.TrimSpace(scene.Visual) == "" {
			return fmt.Errorf("%w: scene %d missing visual", ErrInvalidResponse, i)
		}
		if scene.DurationSeconds <= 0 {
			return fmt.Errorf("%w: scene %d has non-positive duration", ErrInvalidResponse, i)
		}
	}
	return nil
}
