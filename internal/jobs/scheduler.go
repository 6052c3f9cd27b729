package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/store"
)

// Schedule repeats a job for every user.
type Schedule struct {
	Name  string
	Every time.Duration
}

// DefaultSchedules runs discovery and tracked set sync weekly and price
// refresh hourly.
func DefaultSchedules() []Schedule {
	return []Schedule{
		{Name: DiscoverSets, Every: 7 * 24 * time.Hour},
		{Name: SyncTrackedSets, Every: 7 * 24 * time.Hour},
		{Name: UpdateInventoryPrices, Every: time.Hour},
	}
}

// Scheduler enqueues repeatable jobs for every user. Jobs use
// ScheduledJobID, so a job still waiting or delayed is never doubled.
// It implements suture.Service.
type Scheduler struct {
	queue     Queue
	store     *store.Store
	schedules []Schedule
	check     time.Duration
	now       func() time.Time
	last      map[string]time.Time
	log       zerolog.Logger
}

func NewScheduler(queue Queue, st *store.Store, schedules []Schedule, check time.Duration, now func() time.Time) *Scheduler {
	if check <= 0 {
		check = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		queue:     queue,
		store:     st,
		schedules: schedules,
		check:     check,
		now:       now,
		last:      make(map[string]time.Time),
		log:       logging.With("scheduler"),
	}
}

// Serve ticks once immediately, then every check interval.
func (s *Scheduler) Serve(ctx context.Context) error {
	s.log.Info().Int("schedules", len(s.schedules)).Dur("check", s.check).Msg("scheduler started")

	if _, err := s.Tick(ctx); err != nil {
		s.log.Error().Err(err).Msg("scheduler tick failed")
	}

	ticker := time.NewTicker(s.check)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.Error().Err(err).Msg("scheduler tick failed")
			}
		}
	}
}

func (s *Scheduler) String() string {
	return "job-scheduler"
}

// Tick enqueues every schedule that is due for every user and returns how
// many enqueue calls were made.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return 0, err
	}

	now := s.now()
	fired := 0
	for _, u := range users {
		for _, sch := range s.schedules {
			id := ScheduledJobID(sch.Name, u.ID)
			if last, ok := s.last[id]; ok && now.Sub(last) < sch.Every {
				continue
			}
			job, err := s.queue.Enqueue(ctx, sch.Name, Payload{UserID: u.ID}, EnqueueOptions{JobID: id})
			if err != nil {
				return fired, err
			}
			s.last[id] = now
			fired++
			s.log.Debug().Str("job", sch.Name).Uint("user_id", u.ID).Str("job_id", job.ID).
				Str("state", string(job.State)).Msg("scheduled job")
		}
	}
	return fired, nil
}
