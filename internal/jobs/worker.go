package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/metrics"
	"github.com/codyseavey/mythicstats/internal/store"
)

const defaultPollInterval = time.Second

// Worker runs jobs one at a time. It implements suture.Service.
type Worker struct {
	queue Queue
	deps  Deps
	poll  time.Duration
	log   zerolog.Logger
}

func NewWorker(queue Queue, deps Deps, poll time.Duration) *Worker {
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Worker{queue: queue, deps: deps, poll: poll, log: logging.With("worker")}
}

// Serve drains due jobs, then polls until ctx is done. A running job is
// finished before Serve returns.
func (w *Worker) Serve(ctx context.Context) error {
	w.log.Info().Dur("poll", w.poll).Msg("job worker started")

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		for {
			handled, err := w.RunOnce(context.WithoutCancel(ctx))
			if errors.Is(err, ErrQueueClosed) {
				w.log.Info().Msg("job queue closed, worker stopping")
				return nil
			}
			if err != nil {
				w.log.Error().Err(err).Msg("job worker error")
				break
			}
			if !handled || ctx.Err() != nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("job worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) String() string {
	return "job-worker"
}

// RunOnce claims and runs one due job. It reports false when none was due.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	start := time.Now()
	log := w.log.With().Str("job_id", job.ID).Str("job", job.Name).Uint("user_id", job.UserID).Logger()
	log.Debug().Int("attempts", job.Attempts).Msg("job started")

	outcome, runErr := w.process(ctx, job)
	metrics.JobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	metrics.JobsTotal.WithLabelValues(job.Name, string(outcome.State)).Inc()

	switch outcome.State {
	case StateCompleted:
		err = w.queue.Complete(ctx, job)
		log.Info().Interface("summary", outcome.Summary).Dur("duration", time.Since(start)).Msg("job completed")
	case StateDelayed:
		err = w.queue.Delay(ctx, job, outcome.RunAt)
		log.Warn().Time("run_at", outcome.RunAt).Msg("job delayed until quota resets")
	default:
		err = w.queue.Fail(ctx, job, runErr)
		event := log.Warn()
		if job.State == StateFailed {
			event = log.Error()
		}
		event.Err(runErr).Int("attempts", job.Attempts).Str("state", string(job.State)).Msg("job failed")
	}

	if n, lenErr := w.queue.Len(ctx); lenErr == nil {
		metrics.JobQueueDepth.Set(float64(n))
	}
	if err != nil {
		return true, fmt.Errorf("failed to settle job %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *Job) (Outcome, error) {
	user, err := w.deps.Store.GetUser(ctx, job.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = fmt.Errorf("user %d not found", job.UserID)
		}
		return Outcome{State: StateFailed}, err
	}
	proc, err := NewProcessor(job.Name, w.deps, user)
	if err != nil {
		return Outcome{State: StateFailed}, err
	}
	return proc.Process(ctx, job)
}
