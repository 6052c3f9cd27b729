package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Queue is the job transport. It is explicitly constructed and owned; Close
// stops it accepting and handing out work.
type Queue interface {
	// Enqueue adds a job. When opts.JobID names an active job, that job is
	// returned unchanged.
	Enqueue(ctx context.Context, name string, payload Payload, opts EnqueueOptions) (*Job, error)
	// Dequeue claims the earliest due job, or returns nil when none is due.
	Dequeue(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, job *Job) error
	// Delay moves a claimed job to delayed until the given time.
	Delay(ctx context.Context, job *Job, until time.Time) error
	// Fail records a failed run and retries or dead-letters per the policy.
	Fail(ctx context.Context, job *Job, cause error) error
	Get(ctx context.Context, id string) (*Job, error)
	// Len counts jobs waiting to run, due or delayed.
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryQueue is an in-process Queue. Completed jobs are dropped; failed
// jobs stay until re-enqueued.
type MemoryQueue struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	policy RetryPolicy
	now    func() time.Time
	closed bool
}

// NewMemoryQueue creates an empty queue. A nil clock uses time.Now.
func NewMemoryQueue(policy RetryPolicy, now func() time.Time) *MemoryQueue {
	if now == nil {
		now = time.Now
	}
	return &MemoryQueue{jobs: make(map[string]*Job), policy: policy, now: now}
}

func (q *MemoryQueue) Enqueue(_ context.Context, name string, payload Payload, opts EnqueueOptions) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	if opts.JobID != "" {
		if existing, ok := q.jobs[opts.JobID]; ok && existing.Active() {
			cp := *existing
			return &cp, nil
		}
	}
	job := newJob(name, payload, opts, q.now())
	q.jobs[job.ID] = job
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) Dequeue(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	now := q.now()
	var due []*Job
	for _, j := range q.jobs {
		if (j.State == StatePending || j.State == StateDelayed) && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(a, b int) bool {
		if due[a].RunAt.Equal(due[b].RunAt) {
			return due[a].CreatedAt.Before(due[b].CreatedAt)
		}
		return due[a].RunAt.Before(due[b].RunAt)
	})

	job := due[0]
	job.State = StateRunning
	job.UpdatedAt = now
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.jobs, job.ID)
	job.State = StateCompleted
	return nil
}

func (q *MemoryQueue) Delay(_ context.Context, job *Job, until time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.State = StateDelayed
	job.RunAt = until
	job.UpdatedAt = q.now()
	cp := *job
	q.jobs[job.ID] = &cp
	return nil
}

func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.failed(q.policy, cause, q.now())
	cp := *job
	q.jobs[job.ID] = &cp
	return nil
}

// Get returns a copy of a job, or nil when the queue no longer holds it.
func (q *MemoryQueue) Get(_ context.Context, id string) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (q *MemoryQueue) Len(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.State == StatePending || j.State == StateDelayed {
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
