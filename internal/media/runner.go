package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/phrazzld/reelforge/internal/config"
	"github.com/phrazzld/reelforge/internal/resilience"
)

// ErrToolNotFound is returned when the configured binary cannot be executed.
var ErrToolNotFound = errors.New("media tool not found")

// ExitError reports a tool run that exited non-zero. Stderr holds the tail
// of the tool's error output.
type ExitError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, e.Stderr)
}

// Result is the outcome of a successful tool run.
type Result struct {
	Args     []string      `json:"args"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
}

// Runner executes one configured binary.
type Runner struct {
	tool      string
	workDir   string
	maxOutput int
	policy    resilience.Policy
	logger    *slog.Logger
}

// NewRunner creates a Runner for the configured ffmpeg binary.
func NewRunner(cfg config.MediaConfig, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.FFmpegPath == "" {
		return nil, errors.New("media tool path cannot be empty")
	}
	maxOutput := cfg.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 64 * 1024
	}

	logger = logger.With("component", "media_runner", "tool", cfg.FFmpegPath)

	policy := resilience.LocalTool()
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warn("retrying media tool", "attempt", attempt, "delay", delay, "error", err)
	}

	return &Runner{
		tool:      cfg.FFmpegPath,
		workDir:   cfg.WorkDir,
		maxOutput: maxOutput,
		policy:    policy,
		logger:    logger,
	}, nil
}

// Run executes the tool with args, retrying transient failures. ctx bounds
// every attempt and the waits between them.
func (r *Runner) Run(ctx context.Context, args []string) (*Result, error) {
	attempts := 0
	start := time.Now()

	result, err := resilience.Retry(ctx, r.policy, func(ctx context.Context) (*Result, error) {
		attempts++
		return r.runOnce(ctx, args)
	})
	if err != nil {
		r.logger.ErrorContext(ctx, "media tool failed", "attempts", attempts, "error", err)
		return nil, err
	}

	result.Attempts = attempts
	r.logger.DebugContext(ctx, "media tool finished",
		"attempts", attempts,
		"duration", time.Since(start))
	return result, nil
}

func (r *Runner) runOnce(ctx context.Context, args []string) (*Result, error) {
	cmd := exec.CommandContext(ctx, r.tool, args...)
	cmd.Dir = r.workDir
	// Children of a killed tool may keep its output pipes open.
	cmd.WaitDelay = time.Second

	stdout := &limitedBuffer{limit: r.maxOutput}
	stderr := &limitedBuffer{limit: r.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s interrupted: %w", r.tool, ctxErr)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &ExitError{
				Tool:     r.tool,
				ExitCode: exitErr.ExitCode(),
				Stderr:   tail(stderr.String(), 512),
			}
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, resilience.Permanent(fmt.Errorf("%w: %s: %v", ErrToolNotFound, r.tool, err))
		}
		return nil, fmt.Errorf("failed to run %s: %w", r.tool, err)
	}

	return &Result{
		Args:     args,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: elapsed,
	}, nil
}

// limitedBuffer keeps at most limit bytes and silently discards the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
