package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/reelforge/internal/config"
	"github.com/phrazzld/reelforge/internal/generation"
	"github.com/phrazzld/reelforge/internal/media"
	"github.com/phrazzld/reelforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "debug", ShutdownTimeout: 5 * time.Second},
		Pool: config.PoolConfig{
			MaxWorkers:      2,
			DefaultTimeout:  5 * time.Second,
			DefaultRetries:  0,
			IdleTimeout:     time.Minute,
			RetryBaseDelay:  10 * time.Millisecond,
			RetryMultiplier: 2,
			RetryMaxDelay:   100 * time.Millisecond,
		},
		Breaker: config.BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, OpenTimeout: time.Minute},
		LLM:     config.LLMConfig{ModelName: "gemini-2.0-flash", MaxRetries: 1, RetryDelaySeconds: 1},
		Media:   config.MediaConfig{FFmpegPath: "/bin/sh", MaxOutputBytes: 4096},
	}
}

func newTestApplication(t *testing.T) *application {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApplication(context.Background(), testConfig(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.cleanup(context.Background()) })
	return app
}

func TestNewApplication(t *testing.T) {
	t.Parallel()

	t.Run("registers media handler without an API key", func(t *testing.T) {
		t.Parallel()

		app := newTestApplication(t)
		assert.Equal(t, []string{media.TaskType}, app.registry.Types())
		assert.NotContains(t, app.registry.Types(), generation.TaskType)
		assert.Equal(t, 2, app.pool.Stats().Workers.Max)
	})

	t.Run("rejects nil dependencies", func(t *testing.T) {
		t.Parallel()

		_, err := newApplication(context.Background(), nil, slog.Default())
		assert.Error(t, err)
		_, err = newApplication(context.Background(), testConfig(), nil)
		assert.Error(t, err)
	})
}

func TestPoolConfig(t *testing.T) {
	t.Parallel()

	cfg := poolConfig(config.PoolConfig{
		MinWorkers:      1,
		DefaultTimeout:  time.Second,
		DefaultRetries:  2,
		MaxQueueDepth:   10,
		RetryBaseDelay:  time.Second,
		RetryMultiplier: 3,
		RetryMaxDelay:   time.Minute,
	})

	assert.Equal(t, task.DefaultConfig().MaxWorkers, cfg.MaxWorkers)
	assert.Equal(t, 1, cfg.MinWorkers)
	assert.Equal(t, 2, cfg.DefaultRetries)
	assert.Equal(t, 10, cfg.MaxQueueDepth)
	assert.Equal(t, task.RetryConfig{BaseDelay: time.Second, Multiplier: 3, MaxDelay: time.Minute}, cfg.Retry)
}

func TestRouter(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t)
	router := app.setupRouter()

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("runs a media job", func(t *testing.T) {
		body := `{"type":"media_command","data":{"args":["-c","echo rendered"]}}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

		var resp struct {
			Status string       `json:"status"`
			Result media.Result `json:"result"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, "rendered\n", resp.Result.Stdout)
	})

	t.Run("script generation is not registered", func(t *testing.T) {
		body := `{"type":"generate_script","data":{"topic":"tides"}}`
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stats", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"workers"`)
	})

	t.Run("breakers", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/breakers", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/cards", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	app := newTestApplication(t)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.serve(ctx, listener, app.setupRouter()) }()

	url := "http://" + listener.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	_, err = app.pool.Execute(task.Payload{Type: media.TaskType})
	assert.ErrorIs(t, err, task.ErrPoolTerminated)
}
