package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/reelforge/internal/events"
	"github.com/phrazzld/reelforge/internal/resilience"
)

// RetryConfig is the job-level backoff applied between attempts of a job.
// It is tuned separately from the call-level policies in package resilience.
type RetryConfig struct {
	BaseDelay  time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// Config holds configuration for the worker pool
type Config struct {
	// MinWorkers is the number of workers created at construction and kept
	// alive when idle.
	MinWorkers int

	// MaxWorkers bounds the number of concurrently running jobs.
	// If zero or negative, defaults to the number of CPUs minus one.
	MaxWorkers int

	// DefaultTimeout bounds each attempt when Execute gets no WithTimeout.
	DefaultTimeout time.Duration

	// DefaultRetries is used when Execute gets no WithRetries.
	DefaultRetries int

	// MaxQueueDepth rejects Execute with ErrQueueFull once this many jobs
	// are queued. Zero means unbounded.
	MaxQueueDepth int

	// IdleTimeout is how long a worker above MinWorkers may stay idle before
	// it is terminated. Zero disables reclamation.
	IdleTimeout time.Duration

	// ReapInterval is how often idle workers are checked against IdleTimeout.
	// If zero, defaults to IdleTimeout.
	ReapInterval time.Duration

	// Retry is the job-level backoff.
	Retry RetryConfig
}

// DefaultConfig returns a Config with reasonable defaults
func DefaultConfig() Config {
	return Config{
		MinWorkers:     0,
		MaxWorkers:     defaultMaxWorkers(),
		DefaultTimeout: 30 * time.Second,
		DefaultRetries: 3,
		MaxQueueDepth:  0,
		IdleTimeout:    time.Minute,
		ReapInterval:   30 * time.Second,
		Retry: RetryConfig{
			BaseDelay:  time.Second,
			Multiplier: 2,
			MaxDelay:   30 * time.Second,
		},
	}
}

func defaultMaxWorkers() int {
	return max(runtime.NumCPU()-1, 1)
}

// submission carries a new job to the control goroutine, which answers on
// ack with nil or the reason the job was refused.
type submission struct {
	job *job
	ack chan error
}

// inflight tracks the attempt a busy worker is running.
type inflight struct {
	job       *job
	worker    *worker
	attempt   int
	startedAt time.Time
	timer     *time.Timer
}

// attemptKey identifies one attempt of one job on one worker, so late
// signals about an earlier attempt can be recognized and ignored.
type attemptKey struct {
	workerID int
	jobID    uuid.UUID
	attempt  int
}

// delayed is a job waiting out its retry backoff.
type delayed struct {
	job   *job
	timer *time.Timer
}

// Pool schedules jobs by priority onto a bounded set of workers.
//
// All scheduling state (queue, idle and busy workers, in-flight attempts,
// delayed retries, counters) is owned by one control goroutine; callers and
// workers reach it only through channels.
type Pool struct {
	config   Config
	registry *Registry
	observer events.Observer
	logger   *slog.Logger

	submitCh  chan submission
	resultCh  chan response
	timeoutCh chan attemptKey
	requeueCh chan *job
	exitCh    chan int
	statsCh   chan chan Stats

	quit     chan struct{}
	quitOnce sync.Once
	loopDone chan struct{}
	workers  sync.WaitGroup

	// Owned by the control goroutine.
	queue    *jobQueue
	manager  *workerManager
	running  map[int]*inflight
	waiting  map[uuid.UUID]*delayed
	counters counters

	// final is written once before loopDone is closed.
	final Stats
}

// NewPool creates a worker pool, pre-creates MinWorkers workers and starts
// the control goroutine. A nil observer discards events.
func NewPool(registry *Registry, observer events.Observer, config Config, logger *slog.Logger) (*Pool, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if observer == nil {
		observer = events.Discard
	}

	// Apply defaults for invalid config values
	defaults := DefaultConfig()
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = defaults.MaxWorkers
	}
	if config.MinWorkers < 0 {
		config.MinWorkers = 0
	}
	if config.MinWorkers > config.MaxWorkers {
		logger.Warn("min workers exceeds max workers, clamping",
			"min_workers", config.MinWorkers,
			"max_workers", config.MaxWorkers)
		config.MinWorkers = config.MaxWorkers
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = defaults.DefaultTimeout
	}
	if config.DefaultRetries < 0 {
		config.DefaultRetries = 0
	}
	if config.MaxQueueDepth < 0 {
		config.MaxQueueDepth = 0
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = config.IdleTimeout
	}

	logger = logger.With("component", "worker_pool")

	p := &Pool{
		config:    config,
		registry:  registry,
		observer:  observer,
		logger:    logger,
		submitCh:  make(chan submission),
		resultCh:  make(chan response),
		timeoutCh: make(chan attemptKey),
		requeueCh: make(chan *job),
		exitCh:    make(chan int),
		statsCh:   make(chan chan Stats),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
		queue:     newJobQueue(),
		running:   make(map[int]*inflight),
		waiting:   make(map[uuid.UUID]*delayed),
	}
	p.manager = newWorkerManager(context.Background(), config.MaxWorkers, p.resultCh, p.exitCh, p.quit, &p.workers, logger)
	p.manager.warm(config.MinWorkers)

	go p.loop()

	logger.Info("worker pool started",
		"min_workers", config.MinWorkers,
		"max_workers", config.MaxWorkers,
		"default_timeout", config.DefaultTimeout)
	return p, nil
}

// Execute submits a job and returns its Future without waiting for the job
// to run. Invalid options, an unknown payload type, a full queue or a
// terminating pool are reported as an error and nothing is enqueued.
func (p *Pool) Execute(payload Payload, opts ...Option) (*Future, error) {
	o := jobOptions{
		priority: PriorityNormal,
		retries:  p.config.DefaultRetries,
		timeout:  p.config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	handler, ok := p.registry.Lookup(payload.Type)
	if !ok {
		return nil, &HandlerNotFoundError{Type: payload.Type}
	}

	now := time.Now()
	id := uuid.New()
	j := &job{
		id:          id,
		payload:     payload,
		handler:     handler,
		priority:    o.priority,
		maxRetries:  o.retries,
		retriesLeft: o.retries,
		timeout:     o.timeout,
		submittedAt: now,
		future:      newFuture(id),
		index:       -1,
	}

	sub := submission{job: j, ack: make(chan error, 1)}
	select {
	case <-p.quit:
		return nil, ErrPoolTerminated
	default:
	}
	select {
	case p.submitCh <- sub:
	case <-p.quit:
		return nil, ErrPoolTerminated
	}
	if err := <-sub.ack; err != nil {
		return nil, err
	}
	return j.future, nil
}

// Stats returns a snapshot of the pool. After termination it returns the
// snapshot taken when the pool shut down.
func (p *Pool) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case p.statsCh <- reply:
		return <-reply
	case <-p.loopDone:
		return p.final
	}
}

// Terminate rejects every outstanding job with ErrPoolTerminated, stops all
// workers and waits for them to exit or for ctx to be done. It is safe to
// call more than once.
func (p *Pool) Terminate(ctx context.Context) error {
	p.quitOnce.Do(func() {
		p.logger.Info("terminating worker pool")
		close(p.quit)
	})
	<-p.loopDone

	exited := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(exited)
	}()

	select {
	case <-exited:
		p.logger.Info("worker pool terminated")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for workers to exit: %w", ctx.Err())
	}
}

// loop is the control goroutine. Every scheduling decision happens here.
func (p *Pool) loop() {
	defer close(p.loopDone)

	var reap <-chan time.Time
	if p.config.IdleTimeout > 0 {
		ticker := time.NewTicker(p.config.ReapInterval)
		defer ticker.Stop()
		reap = ticker.C
	}

	for {
		// Termination takes precedence over any other ready signal.
		select {
		case <-p.quit:
			p.shutdown()
			return
		default:
		}

		select {
		case <-p.quit:
			p.shutdown()
			return
		case sub := <-p.submitCh:
			p.accept(sub)
		case res := <-p.resultCh:
			p.complete(res)
		case key := <-p.timeoutCh:
			p.expire(key)
		case j := <-p.requeueCh:
			p.requeue(j)
		case id := <-p.exitCh:
			p.workerExited(id)
		case reply := <-p.statsCh:
			reply <- p.snapshot()
		case now := <-reap:
			p.manager.reap(now, p.config.MinWorkers, p.config.IdleTimeout)
		}
	}
}

func (p *Pool) accept(sub submission) {
	if p.config.MaxQueueDepth > 0 && p.queue.len() >= p.config.MaxQueueDepth {
		sub.ack <- fmt.Errorf("%w: capacity %d reached", ErrQueueFull, p.config.MaxQueueDepth)
		return
	}

	j := sub.job
	p.counters.total++
	p.enqueue(j)
	sub.ack <- nil

	p.logger.Debug("job enqueued",
		"job_id", j.id,
		"task_type", j.payload.Type,
		"priority", j.priority.String(),
		"queue_len", p.queue.len())

	p.dispatch()
}

func (p *Pool) enqueue(j *job) {
	j.enqueuedAt = time.Now()
	p.queue.push(j)
}

// dispatch starts queued jobs while a worker is available.
func (p *Pool) dispatch() {
	for p.queue.len() > 0 && p.manager.hasCapacity() {
		p.start(p.manager.acquire(), p.queue.pop())
	}
}

// start posts the next attempt of j to w and arms its timeout.
func (p *Pool) start(w *worker, j *job) {
	j.attempts++
	key := attemptKey{workerID: w.id, jobID: j.id, attempt: j.attempts}

	run := &inflight{
		job:       j,
		worker:    w,
		attempt:   j.attempts,
		startedAt: time.Now(),
	}
	run.timer = time.AfterFunc(j.timeout, func() {
		select {
		case p.timeoutCh <- key:
		case <-p.quit:
		}
	})
	p.running[w.id] = run

	w.inbox <- request{
		jobID:   j.id,
		attempt: j.attempts,
		data:    j.payload.Data,
		handler: j.handler,
		timeout: j.timeout,
	}

	p.logger.Debug("job dispatched",
		"job_id", j.id,
		"worker_id", w.id,
		"attempt", j.attempts,
		"queued_for", run.startedAt.Sub(j.enqueuedAt))
}

// claim removes and returns the in-flight record matching key, or nil if the
// attempt already finished, timed out or belongs to a discarded worker.
func (p *Pool) claim(key attemptKey) *inflight {
	run, ok := p.running[key.workerID]
	if !ok || run.job.id != key.jobID || run.attempt != key.attempt {
		return nil
	}
	delete(p.running, key.workerID)
	run.timer.Stop()
	return run
}

func (p *Pool) complete(res response) {
	run := p.claim(attemptKey{workerID: res.workerID, jobID: res.jobID, attempt: res.attempt})
	if run == nil {
		p.logger.Debug("ignoring response for finished attempt",
			"job_id", res.jobID,
			"worker_id", res.workerID,
			"attempt", res.attempt)
		return
	}

	if res.err != nil {
		p.manager.discard(run.worker, "attempt failed")
		p.fail(run.job, res.err)
	} else {
		p.manager.release(run.worker)
		p.succeed(run.job, res)
	}
	p.dispatch()
}

func (p *Pool) expire(key attemptKey) {
	run := p.claim(key)
	if run == nil {
		return
	}

	p.manager.discard(run.worker, "attempt timed out")
	p.logger.Warn("attempt timed out, worker holds its slot until the handler returns",
		"job_id", run.job.id,
		"worker_id", run.worker.id,
		"attempt", run.attempt,
		"timeout", run.job.timeout)
	p.fail(run.job, &TimeoutError{JobID: run.job.id, Attempt: run.attempt, Timeout: run.job.timeout})
	p.dispatch()
}

func (p *Pool) succeed(j *job, res response) {
	p.counters.completed++
	p.counters.executionTime += res.elapsed

	event := events.NewEvent(events.KindJobCompleted, j.id, j.payload.Type, j.attempts)
	event.ExecutionTime = res.elapsed
	p.observer.Observe(event)

	j.future.settle(res.value, nil)
}

// fail applies the job-level retry policy to a failed attempt.
func (p *Pool) fail(j *job, err error) {
	j.lastErr = err

	if j.retriesLeft > 0 {
		j.retriesLeft--
		p.counters.retried++
		delay := resilience.Backoff(j.attempts, p.config.Retry.BaseDelay, p.config.Retry.Multiplier, p.config.Retry.MaxDelay)

		d := &delayed{job: j}
		d.timer = time.AfterFunc(delay, func() {
			select {
			case p.requeueCh <- j:
			case <-p.quit:
			}
		})
		p.waiting[j.id] = d

		event := events.NewEvent(events.KindJobRetrying, j.id, j.payload.Type, j.attempts)
		event.Err = err
		event.Delay = delay
		p.observer.Observe(event)
		return
	}

	p.counters.failed++
	final := &RetryExhaustedError{JobID: j.id, Attempts: j.attempts, Err: err}

	event := events.NewEvent(events.KindJobFailed, j.id, j.payload.Type, j.attempts)
	event.Err = final
	p.observer.Observe(event)

	j.future.settle(nil, final)
}

// workerExited frees the slot of a detached worker once its goroutine has
// returned.
func (p *Pool) workerExited(id int) {
	if !p.manager.exited(id) {
		return
	}
	p.logger.Debug("detached worker exited", "worker_id", id)
	p.dispatch()
}

func (p *Pool) requeue(j *job) {
	if _, ok := p.waiting[j.id]; !ok {
		return
	}
	delete(p.waiting, j.id)
	p.enqueue(j)
	p.dispatch()
}

// shutdown settles every outstanding job with ErrPoolTerminated and stops all
// workers. Queued jobs are rejected before workers are signalled.
func (p *Pool) shutdown() {
	queued := p.queue.drain()
	for _, j := range queued {
		p.reject(j)
	}

	for id, d := range p.waiting {
		d.timer.Stop()
		delete(p.waiting, id)
		p.reject(d.job)
	}

	for id, run := range p.running {
		run.timer.Stop()
		delete(p.running, id)
		p.reject(run.job)
	}

	p.manager.terminateAll()
	p.final = p.snapshot()

	p.logger.Info("worker pool shut down",
		"rejected_queued", len(queued),
		"jobs_completed", p.counters.completed,
		"jobs_failed", p.counters.failed)
}

func (p *Pool) reject(j *job) {
	err := terminatedError(j.id)
	if !j.future.settle(nil, err) {
		return
	}
	p.counters.terminated++

	event := events.NewEvent(events.KindJobFailed, j.id, j.payload.Type, j.attempts)
	event.Err = err
	p.observer.Observe(event)
}

func (p *Pool) snapshot() Stats {
	m := p.manager
	var reuseRate float64
	if assignments := m.created + m.reused; assignments > 0 {
		reuseRate = float64(m.reused) / float64(assignments)
	}

	return Stats{
		Workers: WorkerStats{
			Idle:     len(m.idle),
			Busy:     len(m.busy),
			Detached: len(m.detached),
			Min:      p.config.MinWorkers,
			Max:      p.config.MaxWorkers,
		},
		Queue: QueueStats{
			Depth:      p.queue.len(),
			ByPriority: p.queue.depthByPriority(),
			Delayed:    len(p.waiting),
		},
		Jobs: p.counters.jobStats(),
		Performance: PerformanceStats{
			AverageExecutionTime: p.counters.averageExecutionTime(),
			WorkersCreated:       m.created,
			WorkersReused:        m.reused,
			WorkersTerminated:    m.terminated,
			WorkerReuseRate:      reuseRate,
		},
	}
}
