package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupEnv sets environment variables for the duration of the test.
func setupEnv(t *testing.T, envVars map[string]string) {
	t.Helper()
	for name, value := range envVars {
		t.Setenv(name, value)
	}
}

// TestLoadDefaults verifies that the Load function sets the expected default values
// when no environment variables are set.
func TestLoadDefaults(t *testing.T) {
	setupEnv(t, map[string]string{
		"REELFORGE_SERVER_PORT":      "",
		"REELFORGE_SERVER_LOG_LEVEL": "",
	})

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with default values")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, 8080, cfg.Server.Port, "Default server port should be 8080")
	assert.Equal(t, "info", cfg.Server.LogLevel, "Default log level should be 'info'")
	assert.Equal(t, 30*time.Second, cfg.Pool.DefaultTimeout)
	assert.Equal(t, 3, cfg.Pool.DefaultRetries)
	assert.Equal(t, 0, cfg.Pool.MaxQueueDepth)
	assert.Equal(t, time.Second, cfg.Pool.RetryBaseDelay)
	assert.InDelta(t, 2.0, cfg.Pool.RetryMultiplier, 0.0001)
	assert.Equal(t, 30*time.Second, cfg.Pool.RetryMaxDelay)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 2, cfg.Breaker.SuccessThreshold)
	assert.Equal(t, time.Minute, cfg.Breaker.OpenTimeout)
	assert.Equal(t, "ffmpeg", cfg.Media.FFmpegPath)
	assert.Empty(t, cfg.LLM.GeminiAPIKey)
}

// TestLoadFromEnv verifies that the Load function correctly reads values from environment variables.
func TestLoadFromEnv(t *testing.T) {
	setupEnv(t, map[string]string{
		"REELFORGE_SERVER_PORT":            "9090",
		"REELFORGE_SERVER_LOG_LEVEL":       "debug",
		"REELFORGE_POOL_MAX_WORKERS":       "4",
		"REELFORGE_POOL_DEFAULT_TIMEOUT":   "5s",
		"REELFORGE_POOL_MAX_QUEUE_DEPTH":   "100",
		"REELFORGE_POOL_RETRY_BASE_DELAY":  "250ms",
		"REELFORGE_BREAKER_OPEN_TIMEOUT":   "10s",
		"REELFORGE_LLM_GEMINI_API_KEY":     "test-api-key",
		"REELFORGE_LLM_MODEL_NAME":         "gemini-test",
		"REELFORGE_MEDIA_FFMPEG_PATH":      "/usr/local/bin/ffmpeg",
		"REELFORGE_MEDIA_MAX_OUTPUT_BYTES": "1024",
	})

	cfg, err := Load()

	require.NoError(t, err, "Load() should not return an error with valid environment variables")
	require.NotNil(t, cfg, "Load() should return a non-nil config")
	assert.Equal(t, 9090, cfg.Server.Port, "Server port should be loaded from environment variables")
	assert.Equal(t, "debug", cfg.Server.LogLevel, "Log level should be loaded from environment variables")
	assert.Equal(t, 4, cfg.Pool.MaxWorkers)
	assert.Equal(t, 5*time.Second, cfg.Pool.DefaultTimeout)
	assert.Equal(t, 100, cfg.Pool.MaxQueueDepth)
	assert.Equal(t, 250*time.Millisecond, cfg.Pool.RetryBaseDelay)
	assert.Equal(t, 10*time.Second, cfg.Breaker.OpenTimeout)
	assert.Equal(t, "test-api-key", cfg.LLM.GeminiAPIKey, "Gemini API key should be loaded from environment variables")
	assert.Equal(t, "gemini-test", cfg.LLM.ModelName)
	assert.Equal(t, "/usr/local/bin/ffmpeg", cfg.Media.FFmpegPath)
	assert.Equal(t, 1024, cfg.Media.MaxOutputBytes)
}

// TestLoadValidationErrors verifies that the Load function correctly validates the configuration.
func TestLoadValidationErrors(t *testing.T) {
	testCases := []struct {
		name    string
		envVars map[string]string
	}{
		{
			name:    "Invalid port number",
			envVars: map[string]string{"REELFORGE_SERVER_PORT": "999999"},
		},
		{
			name:    "Invalid log level",
			envVars: map[string]string{"REELFORGE_SERVER_LOG_LEVEL": "invalid-level"},
		},
		{
			name:    "Negative max workers",
			envVars: map[string]string{"REELFORGE_POOL_MAX_WORKERS": "-1"},
		},
		{
			name:    "Retry multiplier below one",
			envVars: map[string]string{"REELFORGE_POOL_RETRY_MULTIPLIER": "0.5"},
		},
		{
			name: "Max delay below base delay",
			envVars: map[string]string{
				"REELFORGE_POOL_RETRY_BASE_DELAY": "10s",
				"REELFORGE_POOL_RETRY_MAX_DELAY":  "1s",
			},
		},
		{
			name:    "Zero failure threshold",
			envVars: map[string]string{"REELFORGE_BREAKER_FAILURE_THRESHOLD": "0"},
		},
		{
			name:    "Missing prompt template file",
			envVars: map[string]string{"REELFORGE_LLM_PROMPT_TEMPLATE_PATH": "/nonexistent/prompt.tmpl"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setupEnv(t, tc.envVars)

			cfg, err := Load()

			require.Error(t, err, "Load() should return an error with invalid configuration")
			assert.Contains(t, err.Error(), "validation failed", "Error message should contain expected substring")
			assert.Nil(t, cfg, "Config should be nil when an error occurs")
		})
	}
}
