package task

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// request is the message posted to a worker for one job attempt.
type request struct {
	jobID   uuid.UUID
	attempt int
	data    json.RawMessage
	handler Handler
	timeout time.Duration
}

// response is the single terminal message a worker emits per request.
type response struct {
	workerID int
	jobID    uuid.UUID
	attempt  int
	value    any
	err      error
	elapsed  time.Duration
}

// worker is an isolated goroutine that runs one job attempt at a time. It
// shares no mutable state with the pool: requests arrive on inbox, the
// outcome leaves on the pool's results channel and the worker's ID is sent on
// exits when its goroutine returns.
type worker struct {
	id        int
	inbox     chan request
	ctx       context.Context
	cancel    context.CancelFunc
	idleSince time.Time
	jobsRun   int
}

func (w *worker) run(results chan<- response, exits chan<- int, quit <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		select {
		case exits <- w.id:
		case <-quit:
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.inbox:
			res := w.invoke(req)
			select {
			case results <- res:
			case <-w.ctx.Done():
				return
			}
		}
	}
}

// invoke runs the handler, converting a panic into a WorkerCrashError and a
// deadline hit inside the handler into a TimeoutError.
func (w *worker) invoke(req request) (res response) {
	res = response{workerID: w.id, jobID: req.jobID, attempt: req.attempt}

	ctx, cancel := context.WithTimeout(w.ctx, req.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		res.elapsed = time.Since(start)
		if r := recover(); r != nil {
			res.value = nil
			res.err = &WorkerCrashError{
				WorkerID: w.id,
				JobID:    req.jobID,
				Panic:    r,
				Stack:    debug.Stack(),
			}
		}
	}()

	res.value, res.err = req.handler(ctx, req.jobID, req.data)
	if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.err = &TimeoutError{JobID: req.jobID, Attempt: req.attempt, Timeout: req.timeout}
	}
	return res
}

// workerManager creates, reuses and terminates workers. It keeps each live
// worker in exactly one of the idle stack or the busy map. A discarded worker
// moves to the detached set until its goroutine exits, and keeps its slot
// until then: a handler that ignores cancellation still counts against
// maxWorkers. Only the pool's control goroutine calls it.
type workerManager struct {
	maxWorkers int
	idle       []*worker
	busy       map[int]*worker
	detached   map[int]*worker
	nextID     int

	created    int64
	reused     int64
	terminated int64

	parent  context.Context
	results chan<- response
	exits   chan<- int
	quit    <-chan struct{}
	wg      *sync.WaitGroup
	logger  *slog.Logger
}

func newWorkerManager(
	parent context.Context,
	maxWorkers int,
	results chan<- response,
	exits chan<- int,
	quit <-chan struct{},
	wg *sync.WaitGroup,
	logger *slog.Logger,
) *workerManager {
	return &workerManager{
		maxWorkers: maxWorkers,
		busy:       make(map[int]*worker),
		detached:   make(map[int]*worker),
		parent:     parent,
		results:    results,
		exits:      exits,
		quit:       quit,
		wg:         wg,
		logger:     logger,
	}
}

// hasCapacity reports whether acquire can hand out a worker.
func (m *workerManager) hasCapacity() bool {
	return len(m.idle) > 0 || len(m.busy)+len(m.detached) < m.maxWorkers
}

// acquire returns the most recently idled worker, or a new one if none is
// idle, and marks it busy. Callers check hasCapacity first.
func (m *workerManager) acquire() *worker {
	var w *worker
	if n := len(m.idle); n > 0 {
		w = m.idle[n-1]
		m.idle[n-1] = nil
		m.idle = m.idle[:n-1]
		m.reused++
	} else {
		w = m.spawn()
	}
	m.busy[w.id] = w
	return w
}

// warm pre-creates n idle workers.
func (m *workerManager) warm(n int) {
	for i := 0; i < n && len(m.idle)+len(m.busy)+len(m.detached) < m.maxWorkers; i++ {
		w := m.spawn()
		w.idleSince = time.Now()
		m.idle = append(m.idle, w)
	}
}

func (m *workerManager) spawn() *worker {
	m.nextID++
	ctx, cancel := context.WithCancel(m.parent)
	w := &worker{
		id:     m.nextID,
		inbox:  make(chan request, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	m.created++
	m.wg.Add(1)
	go w.run(m.results, m.exits, m.quit, m.wg)

	m.logger.Debug("worker created", "worker_id", w.id)
	return w
}

// release returns a busy worker to the idle stack after a successful attempt.
func (m *workerManager) release(w *worker) {
	delete(m.busy, w.id)
	w.jobsRun++
	w.idleSince = time.Now()
	m.idle = append(m.idle, w)
}

// discard terminates a busy worker and detaches it until its goroutine
// exits. It is never reused.
func (m *workerManager) discard(w *worker, reason string) {
	delete(m.busy, w.id)
	m.detached[w.id] = w
	m.stop(w)
	m.logger.Debug("worker discarded",
		"worker_id", w.id,
		"reason", reason,
		"detached", len(m.detached))
}

// exited records that the goroutine of worker id returned. It reports
// whether a detached slot was freed.
func (m *workerManager) exited(id int) bool {
	if _, ok := m.detached[id]; !ok {
		return false
	}
	delete(m.detached, id)
	return true
}

// reap terminates idle workers that have been idle for at least idleTimeout,
// oldest first, while more than minWorkers workers exist.
func (m *workerManager) reap(now time.Time, minWorkers int, idleTimeout time.Duration) int {
	reaped := 0
	for len(m.idle) > 0 && len(m.idle)+len(m.busy) > minWorkers {
		oldest := m.idle[0]
		if now.Sub(oldest.idleSince) < idleTimeout {
			break
		}
		m.idle[0] = nil
		m.idle = m.idle[1:]
		m.stop(oldest)
		reaped++
	}
	if reaped > 0 {
		m.logger.Debug("reclaimed idle workers", "count", reaped, "idle", len(m.idle))
	}
	return reaped
}

// terminateAll requests termination of every idle and busy worker.
func (m *workerManager) terminateAll() {
	for _, w := range m.idle {
		m.stop(w)
	}
	m.idle = nil
	for id, w := range m.busy {
		m.stop(w)
		delete(m.busy, id)
	}
}

func (m *workerManager) stop(w *worker) {
	w.cancel()
	m.terminated++
}
