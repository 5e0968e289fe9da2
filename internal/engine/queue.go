package engine

import "sync"

// workQueue is a thread-safe, unbounded FIFO of dispatch jobs.
//
// Producers Enqueue from any goroutine; a single consumer drains it. The
// queue is unbounded so a guard may post further signals without blocking
// on its own consumer.
//
// A buffered signal channel enables context-aware waiting in the consumer.
type workQueue struct {
	mu     sync.Mutex
	jobs   []func()
	closed bool
	signal chan struct{} // buffered, size 1
}

func newWorkQueue() *workQueue {
	return &workQueue{
		jobs:   make([]func(), 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the back of the queue.
// Returns false if the queue is closed.
func (q *workQueue) Enqueue(job func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.jobs = append(q.jobs, job)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front job without blocking.
func (q *workQueue) TryDequeue() (func(), bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}

	job := q.jobs[0]
	q.jobs[0] = nil // release the closure for GC
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return job, true
}

// Wait returns a channel that signals when jobs may be available. It is
// closed when the queue closes.
func (q *workQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs and wakes waiters.
func (q *workQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
