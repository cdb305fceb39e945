package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue buffers jobs in process. Drain runs them inline, which makes
// side effects deterministic in tests and single-process development.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []Job
	now     func() time.Time
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{now: time.Now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, jobType string, payload any) error {
	job, err := NewJob(jobType, payload)
	if err != nil {
		return err
	}
	q.push(job)
	return nil
}

func (q *MemoryQueue) push(job Job) {
	q.mu.Lock()
	q.pending = append(q.pending, job)
	q.mu.Unlock()
}

// Pending returns a copy of the queued jobs.
func (q *MemoryQueue) Pending() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.pending...)
}

// next removes and returns the oldest job that is due.
func (q *MemoryQueue) next() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for i, job := range q.pending {
		if job.due(now) {
			q.pending = append(q.pending[:i:i], q.pending[i+1:]...)
			return job, true
		}
	}
	return Job{}, false
}

// Drain processes due jobs, including jobs enqueued by handlers, until no due
// job is left or ctx is done. Retries wait out their backoff and stay queued
// for a later Drain. It returns the number of job executions.
func (q *MemoryQueue) Drain(ctx context.Context, d *Dispatcher) int {
	runs := 0
	for ctx.Err() == nil {
		job, ok := q.next()
		if !ok {
			return runs
		}
		d.process(ctx, job, func(next Job) error {
			q.push(next)
			return nil
		})
		runs++
	}
	return runs
}
