package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is a circuit breaker state.
type State int

const (
	// StateClosed lets calls through and counts consecutive failures.
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout elapses.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the thresholds of a CircuitBreaker.
type BreakerConfig struct {
	// Name identifies the guarded dependency.
	Name string

	// FailureThreshold is the number of consecutive failures in the closed
	// state that opens the circuit.
	FailureThreshold int

	// SuccessThreshold is the number of successes in the half-open state
	// that closes the circuit again.
	SuccessThreshold int

	// OpenTimeout is how long the circuit stays open before a trial call.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig returns a BreakerConfig with reasonable defaults.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      60 * time.Second,
	}
}

// BreakerSnapshot is a point-in-time copy of a breaker's state.
type BreakerSnapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	SuccessCount int       `json:"success_count"`
	NextAttempt  time.Time `json:"next_attempt"`
}

// BreakerOption customizes a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithBreakerLogger sets the logger used to record state transitions.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithStateChangeHook registers fn to be called after every transition.
// fn runs outside the breaker's lock.
func WithStateChangeHook(fn func(name string, from, to State)) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// CircuitBreaker fails fast against a dependency that keeps failing.
// It is safe for concurrent use.
type CircuitBreaker struct {
	config        BreakerConfig
	now           func() time.Time
	logger        *slog.Logger
	onStateChange func(name string, from, to State)

	mu           sync.Mutex
	state        State
	failureCount int
	successCount int
	nextAttempt  time.Time

	// generation changes on every state change; trials counts half-open
	// calls of the current generation still in flight.
	generation uint64
	trials     int
}

type transition struct {
	from, to State
}

// admission is the breaker's record of an allowed call.
type admission struct {
	generation uint64
	trial      bool
}

// errPanicked is recorded for an operation that panicked.
var errPanicked = errors.New("operation panicked")

// NewCircuitBreaker creates a breaker in the closed state. Non-positive
// thresholds fall back to 1 and a non-positive OpenTimeout to the default.
func NewCircuitBreaker(config BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	defaults := DefaultBreakerConfig(config.Name)
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 1
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = defaults.OpenTimeout
	}

	cb := &CircuitBreaker{
		config: config,
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.logger == nil {
		cb.logger = slog.Default()
	}
	cb.logger = cb.logger.With("component", "circuit_breaker", "breaker", config.Name)
	return cb
}

// Name returns the name of the guarded dependency.
func (cb *CircuitBreaker) Name() string {
	return cb.config.Name
}

// Execute runs op unless the circuit is open. A refused call returns a
// *CircuitOpenError and op is not invoked. While half-open at most
// SuccessThreshold trial calls run at once; further calls are refused too.
// Errors caused by the caller cancelling ctx are returned but not counted
// against the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) (err error) {
	adm, err := cb.allow()
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.record(adm, errPanicked)
			panic(r)
		}
	}()

	err = op(ctx)
	cb.record(adm, err)
	return err
}

// Call is Execute for operations returning a value.
func Call[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

// allow decides whether a call may proceed, moving an expired open circuit
// to half-open and limiting half-open trial calls.
func (cb *CircuitBreaker) allow() (admission, error) {
	cb.mu.Lock()
	var changed *transition
	if cb.state == StateOpen {
		if cb.now().Before(cb.nextAttempt) {
			next := cb.nextAttempt
			cb.mu.Unlock()
			return admission{}, &CircuitOpenError{Name: cb.config.Name, NextAttempt: next}
		}
		changed = cb.setState(StateHalfOpen)
	}

	adm := admission{generation: cb.generation}
	if cb.state == StateHalfOpen {
		if cb.trials >= cb.config.SuccessThreshold {
			now := cb.now()
			cb.mu.Unlock()
			return admission{}, &CircuitOpenError{Name: cb.config.Name, NextAttempt: now}
		}
		cb.trials++
		adm.trial = true
	}
	cb.mu.Unlock()

	cb.notify(changed)
	return adm, nil
}

// record updates counters with the outcome of a call and releases its trial
// slot.
func (cb *CircuitBreaker) record(adm admission, err error) {
	cb.mu.Lock()
	current := adm.trial && adm.generation == cb.generation
	if current {
		cb.trials--
	}
	if errors.Is(err, context.Canceled) {
		cb.mu.Unlock()
		return
	}

	var changed *transition
	switch cb.state {
	case StateClosed:
		if err == nil {
			cb.failureCount = 0
		} else {
			cb.failureCount++
			if cb.failureCount >= cb.config.FailureThreshold {
				changed = cb.trip()
			}
		}
	case StateHalfOpen:
		if !current {
			// Admitted before this half-open round began.
			break
		}
		if err == nil {
			cb.successCount++
			if cb.successCount >= cb.config.SuccessThreshold {
				changed = cb.setState(StateClosed)
			}
		} else {
			changed = cb.trip()
		}
	case StateOpen:
		// A call admitted before another caller tripped the circuit.
		// Its outcome does not move the state.
	}
	cb.mu.Unlock()

	cb.notify(changed)
}

// trip opens the circuit with a fresh nextAttempt. Callers hold mu.
func (cb *CircuitBreaker) trip() *transition {
	t := cb.setState(StateOpen)
	cb.nextAttempt = cb.now().Add(cb.config.OpenTimeout)
	return t
}

// setState changes state and resets counters. Callers hold mu.
func (cb *CircuitBreaker) setState(to State) *transition {
	from := cb.state
	cb.state = to
	cb.generation++
	cb.trials = 0
	cb.failureCount = 0
	cb.successCount = 0
	if to != StateOpen {
		cb.nextAttempt = time.Time{}
	}
	if from == to {
		return nil
	}
	return &transition{from: from, to: to}
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t == nil {
		return
	}
	level := slog.LevelInfo
	if t.to == StateOpen {
		level = slog.LevelWarn
	}
	cb.logger.Log(context.Background(), level, "circuit breaker state changed",
		"from", t.from.String(),
		"to", t.to.String())
	if cb.onStateChange != nil {
		cb.onStateChange(cb.config.Name, t.from, t.to)
	}
}

// State returns the current state without triggering transitions.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns a copy of the breaker's state and counters.
func (cb *CircuitBreaker) Snapshot() BreakerSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerSnapshot{
		Name:         cb.config.Name,
		State:        cb.state.String(),
		FailureCount: cb.failureCount,
		SuccessCount: cb.successCount,
		NextAttempt:  cb.nextAttempt,
	}
}

// Reset forces the breaker closed with zeroed counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	changed := cb.setState(StateClosed)
	cb.mu.Unlock()

	cb.notify(changed)
}
