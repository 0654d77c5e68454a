// Copyright 2024-2026 Aiku AI

package bridge

import "sync"

// syncJob is one unit of outbound work: deliver or refresh the message for
// an entity key. The record travels with the job so the engine renders the
// exact state the event produced.
type syncJob struct {
	Key       string
	EventType string
	Record    Record
}

// jobQueue is a thread-safe FIFO handoff from webhook goroutines to the
// engine's single Run loop. It is unbounded: webhook handlers must never
// block on outbound delivery, and the expected event rate is low enough
// that growth is an accepted trade.
//
// The size-1 signal channel coalesces wakeups and lets the Run loop wait
// with a select so context cancellation is never missed.
type jobQueue struct {
	mu     sync.Mutex
	jobs   []syncJob
	closed bool
	signal chan struct{}
}

func newJobQueue() *jobQueue {
	return &jobQueue{
		jobs:   make([]syncJob, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends a job and wakes the drain loop. Safe from any goroutine.
// Returns false once the queue is closed.
func (q *jobQueue) Enqueue(job syncJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.jobs = append(q.jobs, job)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue pops the front job without blocking.
func (q *jobQueue) TryDequeue() (syncJob, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return syncJob{}, false
	}
	job := q.jobs[0]
	// Clear the slot so the backing array does not pin the record.
	q.jobs[0] = syncJob{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return job, true
}

// Wait returns the wakeup channel for use in a select alongside context
// cancellation. The channel is closed when the queue closes, so waiters
// always fall through.
func (q *jobQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len reports how many jobs are waiting.
func (q *jobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close marks the queue finished and wakes all waiters. Further Enqueue
// calls are rejected; queued jobs can still be drained.
func (q *jobQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
