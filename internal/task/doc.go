// Package task runs content-generation jobs on a bounded pool of workers.
//
// Jobs are submitted with Pool.Execute and dispatched by priority (HIGH
// before NORMAL before LOW, first-in first-out within a band) to at most
// MaxWorkers concurrently running workers. Each attempt runs under a timeout;
// failed attempts are retried with exponential backoff until the job's retry
// budget is spent. A single control goroutine owns the queue and the worker
// sets, so none of them are shared with workers or callers.
//
// Work is described by a Payload whose Type selects a Handler from the
// Registry. Handlers for script generation and local media tools live in
// their own packages and are registered by the application at startup.
package task
