// Package jobs runs the per-user background sync work: discovery of sets for
// tracked games, card sync for tracked sets and inventory price refresh.
//
// A job moves through pending -> running -> completed | delayed | failed.
// Delayed is quota backpressure, not an error: the job fires again once the
// user's JustTCG budget resets.
package jobs

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a job.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateDelayed   State = "delayed"
	StateFailed    State = "failed"
)

// Job names. The set is closed; NewProcessor rejects anything else.
const (
	DiscoverSets          = "discover-sets"
	SyncTrackedSets       = "sync-tracked-sets"
	UpdateInventoryPrices = "update-inventory-prices"
)

// Names lists every job name a processor exists for.
func Names() []string {
	return []string{DiscoverSets, SyncTrackedSets, UpdateInventoryPrices}
}

// IsKnown reports whether name is a job a processor exists for.
func IsKnown(name string) bool {
	for _, n := range Names() {
		if n == name {
			return true
		}
	}
	return false
}

// ErrQueueClosed is returned by a queue after Close.
var ErrQueueClosed = errors.New("job queue is closed")

// Payload is the data a job carries.
type Payload struct {
	UserID uint `json:"user_id"`
}

// Job is one queued unit of work. Attempts counts failed runs only; a
// delayed job keeps its count.
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    uint      `json:"user_id"`
	State     State     `json:"state"`
	Attempts  int       `json:"attempts"`
	RunAt     time.Time `json:"run_at"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the job is still owed a run.
func (j *Job) Active() bool {
	switch j.State {
	case StatePending, StateDelayed, StateRunning:
		return true
	}
	return false
}

// EnqueueOptions control how a job is added. A job whose JobID matches an
// active job is not added again.
type EnqueueOptions struct {
	JobID string
	Delay time.Duration
}

// RetryPolicy is the transport's handling of failed runs: up to MaxAttempts
// runs, waiting Backoff, 2*Backoff, ... between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy allows 3 attempts with a 2s exponential backoff.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Second}

// Next returns the wait before the next run after attempts failures, and
// false once the job should be left failed.
func (p RetryPolicy) Next(attempts int) (time.Duration, bool) {
	if attempts >= p.MaxAttempts {
		return 0, false
	}
	wait := p.Backoff
	for i := 1; i < attempts; i++ {
		wait *= 2
	}
	return wait, true
}

var jobNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mythicstats/jobs"))

// ScheduledJobID is the stable id of a repeatable job, so each schedule has
// at most one active job per user.
func ScheduledJobID(name string, userID uint) string {
	return uuid.NewSHA1(jobNamespace, []byte(fmt.Sprintf("%s/%d", name, userID))).String()
}

func newJob(name string, payload Payload, opts EnqueueOptions, now time.Time) *Job {
	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	return &Job{
		ID:        id,
		Name:      name,
		UserID:    payload.UserID,
		State:     StatePending,
		RunAt:     now.Add(opts.Delay),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// failed applies policy to a job whose run returned cause.
func (j *Job) failed(policy RetryPolicy, cause error, now time.Time) {
	j.Attempts++
	if cause != nil {
		j.LastError = cause.Error()
	}
	j.UpdatedAt = now
	if wait, ok := policy.Next(j.Attempts); ok {
		j.State = StatePending
		j.RunAt = now.Add(wait)
		return
	}
	j.State = StateFailed
}
