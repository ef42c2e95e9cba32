package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Pool    PoolConfig    `mapstructure:"pool" validate:"required"`
	Breaker BreakerConfig `mapstructure:"breaker" validate:"required"`
	LLM     LLMConfig     `mapstructure:"llm" validate:"required"`
	Media   MediaConfig   `mapstructure:"media" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server and the pool.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// PoolConfig contains the worker pool settings.
type PoolConfig struct {
	// MinWorkers workers are created at startup and never reclaimed.
	MinWorkers int `mapstructure:"min_workers" validate:"gte=0"`

	// MaxWorkers bounds concurrency. Zero selects the number of CPUs minus one.
	MaxWorkers int `mapstructure:"max_workers" validate:"gte=0"`

	DefaultTimeout time.Duration `mapstructure:"default_timeout" validate:"gt=0"`
	DefaultRetries int           `mapstructure:"default_retries" validate:"gte=0"`

	// MaxQueueDepth of zero leaves the queue unbounded.
	MaxQueueDepth int `mapstructure:"max_queue_depth" validate:"gte=0"`

	IdleTimeout  time.Duration `mapstructure:"idle_timeout" validate:"gte=0"`
	ReapInterval time.Duration `mapstructure:"reap_interval" validate:"gte=0"`

	// Job-level retry backoff, independent of the call-level presets.
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay" validate:"gt=0"`
	RetryMultiplier float64       `mapstructure:"retry_multiplier" validate:"gte=1"`
	RetryMaxDelay   time.Duration `mapstructure:"retry_max_delay" validate:"gtefield=RetryBaseDelay"`
}

// BreakerConfig contains the default circuit breaker thresholds applied to
// every external dependency.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"gte=1"`
	SuccessThreshold int           `mapstructure:"success_threshold" validate:"gte=1"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	// GeminiAPIKey enables the script generation task type. When empty the
	// task type is not registered.
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name" validate:"required"`

	// PromptTemplatePath optionally replaces the built-in prompt.
	PromptTemplatePath string `mapstructure:"prompt_template_path" validate:"omitempty,file"`

	// MaxRetries and RetryDelaySeconds override the AI retry preset.
	MaxRetries        int `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=1,lte=60"`
}

// MediaConfig contains settings for local media tools.
type MediaConfig struct {
	// FFmpegPath is the binary run by the media task types.
	FFmpegPath string `mapstructure:"ffmpeg_path" validate:"required"`

	// WorkDir is the working directory for tool invocations. Empty means the
	// process working directory.
	WorkDir string `mapstructure:"work_dir" validate:"omitempty,dir"`

	// MaxOutputBytes caps the captured stdout and stderr of each run.
	MaxOutputBytes int `mapstructure:"max_output_bytes" validate:"gt=0"`
}
