// Command enqueue pushes one job for one user onto the shared queue.
//
//	enqueue -job update-inventory-prices -user collector@localhost
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/codyseavey/mythicstats/internal/config"
	"github.com/codyseavey/mythicstats/internal/database"
	"github.com/codyseavey/mythicstats/internal/jobs"
	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/models"
	"github.com/codyseavey/mythicstats/internal/store"
)

func main() {
	name := flag.String("job", "", "job name: "+strings.Join(jobs.Names(), ", "))
	userRef := flag.String("user", "", "user id or email (defaults to DEFAULT_USER_EMAIL)")
	delay := flag.Duration("delay", 0, "wait before the job becomes due")
	unique := flag.Bool("unique", false, "use a fresh job id instead of the user's scheduled one")
	flag.Parse()

	cfg := config.MustLoad()
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: "console"})
	log := logging.With("enqueue")

	if !jobs.IsKnown(*name) {
		fmt.Fprintf(os.Stderr, "unknown job %q, want one of: %s\n", *name, strings.Join(jobs.Names(), ", "))
		os.Exit(2)
	}
	if cfg.Queue.Type != "redis" {
		log.Fatal().Str("type", cfg.Queue.Type).Msg("QUEUE_TYPE must be redis to enqueue from another process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Open(database.Options{Path: cfg.Database.Path, Migrate: false})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	st := store.New(db)

	user, err := resolveUser(ctx, st, *userRef, cfg.Server.DefaultUser)
	if err != nil {
		log.Fatal().Err(err).Str("user", *userRef).Msg("Failed to resolve user")
	}

	queue, err := jobs.OpenQueue(ctx, jobs.QueueOptions{
		Type: cfg.Queue.Type,
		Redis: jobs.RedisQueueConfig{
			Addr:     cfg.Queue.RedisAddress(),
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
			Name:     cfg.Queue.Name,
			Lease:    cfg.Queue.Lease,
		},
		Policy: jobs.RetryPolicy{MaxAttempts: cfg.Queue.MaxAttempts, Backoff: cfg.Queue.RetryBackoff},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open job queue")
	}
	defer queue.Close()

	opts := jobs.EnqueueOptions{Delay: *delay}
	if !*unique {
		opts.JobID = jobs.ScheduledJobID(*name, user.ID)
	}
	job, err := queue.Enqueue(ctx, *name, jobs.Payload{UserID: user.ID}, opts)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to enqueue job")
	}

	log.Info().
		Str("job_id", job.ID).
		Str("job", job.Name).
		Uint("user_id", user.ID).
		Str("state", string(job.State)).
		Time("run_at", job.RunAt).
		Msg("Job enqueued")
}

// resolveUser accepts a numeric id, an email, or nothing for the default user.
func resolveUser(ctx context.Context, st *store.Store, ref, defaultEmail string) (*models.User, error) {
	if ref == "" {
		ref = defaultEmail
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		return st.GetUser(ctx, uint(id))
	}
	return st.EnsureUser(ctx, ref)
}
