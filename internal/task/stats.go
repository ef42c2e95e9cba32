package task

import "time"

// Stats is a read-only snapshot of the pool.
type Stats struct {
	Workers     WorkerStats      `json:"workers"`
	Queue       QueueStats       `json:"queue"`
	Jobs        JobStats         `json:"jobs"`
	Performance PerformanceStats `json:"performance"`
}

// WorkerStats counts workers by state. Detached workers were discarded after
// a failed or timed-out attempt but their handler has not returned yet; they
// still occupy a slot, so Busy+Detached never exceeds Max.
type WorkerStats struct {
	Idle     int `json:"idle"`
	Busy     int `json:"busy"`
	Detached int `json:"detached"`
	Min      int `json:"min"`
	Max      int `json:"max"`
}

// QueueStats describes queued work. Delayed counts jobs waiting out a retry
// backoff; they are not part of Depth.
type QueueStats struct {
	Depth      int            `json:"depth"`
	ByPriority map[string]int `json:"by_priority"`
	Delayed    int            `json:"delayed"`
}

// JobStats counts job outcomes. Retried counts retry attempts scheduled,
// not jobs.
type JobStats struct {
	Total       int64   `json:"total"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Retried     int64   `json:"retried"`
	Terminated  int64   `json:"terminated"`
	SuccessRate float64 `json:"success_rate"`
}

// PerformanceStats summarizes execution time and worker reuse.
type PerformanceStats struct {
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	WorkersCreated       int64         `json:"workers_created"`
	WorkersReused        int64         `json:"workers_reused"`
	WorkersTerminated    int64         `json:"workers_terminated"`
	WorkerReuseRate      float64       `json:"worker_reuse_rate"`
}

// counters accumulates job outcomes. Owned by the control goroutine.
type counters struct {
	total         int64
	completed     int64
	failed        int64
	retried       int64
	terminated    int64
	executionTime time.Duration
}

func (c counters) jobStats() JobStats {
	stats := JobStats{
		Total:      c.total,
		Completed:  c.completed,
		Failed:     c.failed,
		Retried:    c.retried,
		Terminated: c.terminated,
	}
	if finished := c.completed + c.failed; finished > 0 {
		stats.SuccessRate = float64(c.completed) / float64(finished)
	}
	return stats
}

func (c counters) averageExecutionTime() time.Duration {
	if c.completed == 0 {
		return 0
	}
	return c.executionTime / time.Duration(c.completed)
}
