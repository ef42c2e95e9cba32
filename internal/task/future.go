package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Future is the completion handle of a submitted job. It settles exactly
// once, with either the handler's result or a typed error.
type Future struct {
	jobID uuid.UUID
	done  chan struct{}
	once  sync.Once

	value any
	err   error
}

func newFuture(jobID uuid.UUID) *Future {
	return &Future{
		jobID: jobID,
		done:  make(chan struct{}),
	}
}

// JobID returns the ID of the job this future belongs to.
func (f *Future) JobID() uuid.UUID {
	return f.jobID
}

// Done returns a channel that is closed once the job has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job settles or ctx is done. Giving up on ctx does not
// cancel the job.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the job has settled, without blocking.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// settle records the outcome. Only the first call has an effect.
func (f *Future) settle(value any, err error) bool {
	settled := false
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}
