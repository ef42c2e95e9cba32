package task

import "container/heap"

// jobHeap orders jobs by priority, then by enqueue sequence.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}

// jobQueue is the pool's priority queue. Every enqueue takes a fresh
// sequence number, so a job placed back after a failed attempt queues behind
// jobs of its band that arrived in the meantime. Not safe for concurrent use.
type jobQueue struct {
	items jobHeap
	seq   uint64
	depth [numPriorities]int
}

func newJobQueue() *jobQueue {
	return &jobQueue{}
}

func (q *jobQueue) push(j *job) {
	q.seq++
	j.seq = q.seq
	heap.Push(&q.items, j)
	q.depth[j.priority]++
}

// pop removes and returns the most urgent job, or nil if the queue is empty.
func (q *jobQueue) pop() *job {
	if len(q.items) == 0 {
		return nil
	}
	j := heap.Pop(&q.items).(*job)
	q.depth[j.priority]--
	return j
}

func (q *jobQueue) len() int {
	return len(q.items)
}

// drain empties the queue, returning jobs in dispatch order.
func (q *jobQueue) drain() []*job {
	jobs := make([]*job, 0, len(q.items))
	for q.len() > 0 {
		jobs = append(jobs, q.pop())
	}
	return jobs
}

// depthByPriority reports queued jobs per band name.
func (q *jobQueue) depthByPriority() map[string]int {
	out := make(map[string]int, numPriorities)
	for p := PriorityHigh; p <= PriorityLow; p++ {
		out[p.String()] = q.depth[p]
	}
	return out
}
