package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/reelforge/internal/api/shared"
	"github.com/phrazzld/reelforge/internal/events"
	"github.com/phrazzld/reelforge/internal/resilience"
	"github.com/phrazzld/reelforge/internal/task"
)

// JobExecutor submits jobs and reports pool statistics. *task.Pool
// implements it.
type JobExecutor interface {
	Execute(payload task.Payload, opts ...task.Option) (*task.Future, error)
	Stats() task.Stats
}

// BreakerReporter reports circuit breaker states.
// *resilience.BreakerRegistry implements it.
type BreakerReporter interface {
	Snapshots() []resilience.BreakerSnapshot
}

// eventBufferSize is the per-client buffer of the event stream.
const eventBufferSize = 64

// JobHandler handles job submission and pool observability requests.
type JobHandler struct {
	pool     JobExecutor
	breakers BreakerReporter
	bus      *events.Bus
	logger   *slog.Logger
}

// NewJobHandler creates a new JobHandler. bus may be nil, in which case the
// event stream is unavailable.
func NewJobHandler(pool JobExecutor, breakers BreakerReporter, bus *events.Bus, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		pool:     pool,
		breakers: breakers,
		bus:      bus,
		logger:   logger.With("component", "job_handler"),
	}
}

// SubmitJob handles POST /api/jobs. It submits the job and waits for its
// result for as long as the request context allows; a client that gives up
// early does not cancel the job.
func (h *JobHandler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req SubmitJobRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request: "+validationSummary(err), err)
		return
	}

	opts, err := jobOptions(req)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	start := time.Now()
	future, err := h.pool.Execute(task.Payload{Type: req.Type, Data: req.Data}, opts...)
	if err != nil {
		status := MapErrorToStatusCode(err)
		if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
			w.Header().Set("Retry-After", "1")
		}
		shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err, submitLogOptions(err)...)
		return
	}

	h.logger.DebugContext(r.Context(), "job submitted",
		"job_id", future.JobID(),
		"task_type", req.Type,
		"trace_id", shared.GetTraceID(r.Context()))

	result, err := future.Wait(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err),
			fmt.Errorf("job %s: %w", future.JobID(), err))
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, JobResponse{
		JobID:    future.JobID(),
		Status:   "completed",
		Result:   result,
		Duration: time.Since(start).String(),
	})
}

// submitLogOptions raises the log level of submissions for a job type with no
// registered handler. Those usually come from a client configured for
// handlers this server does not have, e.g. script generation without a
// Gemini key.
func submitLogOptions(err error) []shared.ResponseOption {
	var notFound *task.HandlerNotFoundError
	if errors.As(err, &notFound) {
		return []shared.ResponseOption{shared.WithWarnLevel()}
	}
	return nil
}

func jobOptions(req SubmitJobRequest) ([]task.Option, error) {
	priority, err := task.ParsePriority(req.Priority)
	if err != nil {
		return nil, err
	}

	opts := []task.Option{task.WithPriority(priority)}
	if req.Retries != nil {
		opts = append(opts, task.WithRetries(*req.Retries))
	}
	if req.TimeoutMS > 0 {
		opts = append(opts, task.WithTimeout(time.Duration(req.TimeoutMS)*time.Millisecond))
	}
	return opts, nil
}

// GetStats handles GET /api/stats.
func (h *JobHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.pool.Stats())
}

// GetBreakers handles GET /api/breakers.
func (h *JobHandler) GetBreakers(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, h.breakers.Snapshots())
}

// StreamEvents handles GET /api/events as a server-sent event stream of pool
// events. Events are dropped for clients that fall behind.
func (h *JobHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		shared.RespondWithError(w, r, http.StatusNotFound, "Event stream is not enabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Streaming is not supported")
		return
	}

	sub := h.bus.Subscribe(eventBufferSize)
	defer h.bus.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(newEventPayload(event))
			if err != nil {
				h.logger.ErrorContext(r.Context(), "failed to encode event", "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", event.ID, event.Kind, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
