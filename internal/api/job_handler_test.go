package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelforge/internal/api/shared"
	"github.com/phrazzld/reelforge/internal/events"
	"github.com/phrazzld/reelforge/internal/resilience"
	"github.com/phrazzld/reelforge/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	handler  *JobHandler
	pool     *task.Pool
	bus      *events.Bus
	breakers *resilience.BreakerRegistry
}

func newTestServer(t *testing.T, cfg task.Config) *testServer {
	t.Helper()

	registry := task.NewRegistry()
	require.NoError(t, registry.Register("echo", func(_ context.Context, _ uuid.UUID, data json.RawMessage) (any, error) {
		return data, nil
	}))
	require.NoError(t, registry.Register("fail", func(context.Context, uuid.UUID, json.RawMessage) (any, error) {
		return nil, errors.New("exit status 1")
	}))
	require.NoError(t, registry.Register("hang", func(ctx context.Context, _ uuid.UUID, _ json.RawMessage) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	logger := testLogger()
	bus := events.NewBus(logger)
	pool, err := task.NewPool(registry, bus, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pool.Terminate(context.Background())
		bus.Close()
	})

	breakers := resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig(""), logger)
	return &testServer{
		handler:  NewJobHandler(pool, breakers, bus, logger),
		pool:     pool,
		bus:      bus,
		breakers: breakers,
	}
}

func testPoolConfig() task.Config {
	cfg := task.DefaultConfig()
	cfg.MaxWorkers = 2
	cfg.DefaultTimeout = time.Second
	cfg.DefaultRetries = 0
	cfg.IdleTimeout = 0
	cfg.Retry = task.RetryConfig{BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Millisecond}
	return cfg
}

func submit(t *testing.T, h *JobHandler, body string) (*httptest.ResponseRecorder, shared.ErrorResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(body))
	req = req.WithContext(shared.WithTraceID(req.Context(), "trace-test"))
	rec := httptest.NewRecorder()
	h.SubmitJob(rec, req)

	var errResp shared.ErrorResponse
	if rec.Code != http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	}
	return rec, errResp
}

func TestSubmitJob(t *testing.T) {
	t.Parallel()

	t.Run("returns the job result", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, testPoolConfig())
		rec, _ := submit(t, srv.handler, `{"type":"echo","data":{"scene":1},"priority":"high"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "completed", resp.Status)
		assert.NotEqual(t, uuid.Nil, resp.JobID)
		assert.Equal(t, map[string]any{"scene": float64(1)}, resp.Result)
	})

	tests := []struct {
		name    string
		body    string
		status  int
		message string
	}{
		{"malformed JSON", `{"type":`, http.StatusBadRequest, "Invalid request format"},
		{"unknown field", `{"type":"echo","colour":"red"}`, http.StatusBadRequest, "Invalid request format"},
		{"missing type", `{"data":{}}`, http.StatusBadRequest, "Invalid request: type (required)"},
		{"bad priority", `{"type":"echo","priority":"urgent"}`, http.StatusBadRequest, "Invalid request: priority (oneof)"},
		{"negative retries", `{"type":"echo","retries":-1}`, http.StatusBadRequest, "Invalid request: retries (gte)"},
		{"unknown type", `{"type":"render"}`, http.StatusBadRequest, "Unknown job type"},
		{"job failure", `{"type":"fail","retries":1}`, http.StatusBadGateway, "Job failed"},
		{"job timeout", `{"type":"hang","timeout_ms":20}`, http.StatusGatewayTimeout, "Job timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newTestServer(t, testPoolConfig())
			rec, errResp := submit(t, srv.handler, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, errResp.Error)
			assert.Equal(t, "trace-test", errResp.TraceID)
		})
	}

	t.Run("terminated pool returns 503", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, testPoolConfig())
		require.NoError(t, srv.pool.Terminate(context.Background()))

		rec, errResp := submit(t, srv.handler, `{"type":"echo"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "Server is shutting down", errResp.Error)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("full queue returns 429", func(t *testing.T) {
		t.Parallel()

		cfg := testPoolConfig()
		cfg.MaxWorkers = 1
		cfg.MaxQueueDepth = 1
		srv := newTestServer(t, cfg)

		// One job occupies the only worker and one fills the queue.
		for i := 0; i < 2; i++ {
			_, err := srv.pool.Execute(task.Payload{Type: "hang"}, task.WithTimeout(time.Minute))
			require.NoError(t, err)
		}

		rec, errResp := submit(t, srv.handler, `{"type":"echo"}`)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "Job queue is full, retry later", errResp.Error)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})

	t.Run("client deadline returns 504 without cancelling the job", func(t *testing.T) {
		t.Parallel()

		srv := newTestServer(t, testPoolConfig())
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		req := httptest.NewRequest(http.MethodPost, "/api/jobs",
			strings.NewReader(`{"type":"hang","timeout_ms":200}`)).WithContext(ctx)
		rec := httptest.NewRecorder()
		srv.handler.SubmitJob(rec, req)

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Equal(t, 1, srv.pool.Stats().Workers.Busy)
	})
}

func TestSubmitLogOptions(t *testing.T) {
	t.Parallel()

	assert.Len(t, submitLogOptions(&task.HandlerNotFoundError{Type: "render"}), 1)
	assert.Len(t, submitLogOptions(fmt.Errorf("submit: %w", &task.HandlerNotFoundError{Type: "render"})), 1)
	assert.Empty(t, submitLogOptions(task.ErrQueueFull))
	assert.Empty(t, submitLogOptions(&task.ValidationError{Field: "timeout"}))
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testPoolConfig())
	rec, _ := submit(t, srv.handler, `{"type":"echo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.handler.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats task.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Jobs.Completed)
	assert.Equal(t, 2, stats.Workers.Max)
	assert.Contains(t, stats.Queue.ByPriority, "high")
}

func TestGetBreakers(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testPoolConfig())
	srv.breakers.Get("gemini")

	rec := httptest.NewRecorder()
	srv.handler.GetBreakers(rec, httptest.NewRequest(http.MethodGet, "/api/breakers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshots []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshots))
	require.Len(t, snapshots, 1)
	assert.Equal(t, "gemini", snapshots[0]["name"])
	assert.Equal(t, "closed", snapshots[0]["state"])
}

func TestStreamEvents(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testPoolConfig())
	server := httptest.NewServer(http.HandlerFunc(srv.handler.StreamEvents))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	// The subscription exists once the greeting is flushed.
	rec, _ := submit(t, srv.handler, `{"type":"echo","data":"hi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var frame bytes.Buffer
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\n" && frame.Len() > 0 {
			break
		}
		if line != "\n" {
			frame.WriteString(line)
		}
	}

	assert.Contains(t, frame.String(), "event: job_completed\n")

	var payload EventPayload
	for _, l := range strings.Split(frame.String(), "\n") {
		if data, ok := strings.CutPrefix(l, "data: "); ok {
			require.NoError(t, json.Unmarshal([]byte(data), &payload))
		}
	}
	assert.Equal(t, events.KindJobCompleted, payload.Kind)
	assert.Equal(t, "echo", payload.TaskType)
	assert.Equal(t, 1, payload.Attempts)
	assert.Empty(t, payload.Error)
}

func TestStreamEventsDisabled(t *testing.T) {
	t.Parallel()

	h := NewJobHandler(nil, nil, nil, testLogger())
	rec := httptest.NewRecorder()
	h.StreamEvents(rec, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
