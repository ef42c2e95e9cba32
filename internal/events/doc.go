// Package events defines the lifecycle events emitted by the task worker pool
// and the observers that consume them.
//
// The pool calls an Observer synchronously from its control goroutine, so
// observers must never block. The primary components are:
//   - Event: a job lifecycle notification (completed, failed, retrying)
//   - Observer: the interface the pool reports to
//   - Bus: fans events out to bounded subscriber channels, dropping on overflow
//   - LogObserver: writes events to a structured logger
package events
