package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codyseavey/mythicstats/internal/api"
	"github.com/codyseavey/mythicstats/internal/config"
	"github.com/codyseavey/mythicstats/internal/database"
	"github.com/codyseavey/mythicstats/internal/jobs"
	"github.com/codyseavey/mythicstats/internal/logging"
	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
	"github.com/codyseavey/mythicstats/internal/supervisor"
)

func main() {
	cfg := config.MustLoad()
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Caller: cfg.Log.Caller})
	log := logging.With("server")

	if cfg.JustTCG.APIKey == "" {
		log.Warn().Msg("JUSTTCG_API_KEY is not set, upstream requests will be rejected")
	}

	// Initialize database
	db, err := database.Open(database.Options{
		Path:    cfg.Database.Path,
		LogSQL:  cfg.Database.LogSQL,
		Migrate: cfg.Database.Migrate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	st := store.New(db)
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize services
	justTCG := services.NewJustTCG(services.JustTCGOptions{
		APIKey:         cfg.JustTCG.APIKey,
		BaseURL:        cfg.JustTCG.BaseURL,
		Timeout:        cfg.JustTCG.Timeout,
		MaxAttempts:    cfg.JustTCG.MaxAttempts,
		InitialBackoff: cfg.JustTCG.InitialBackoff,
	})
	syncer := services.NewSyncer(justTCG, st, services.NewSetCache(cfg.JustTCG.SetCacheSize), time.Now)
	tracking := services.NewTrackingService(st, syncer, time.Now)
	prices := services.NewPriceUpdateService(st, syncer, time.Now)
	inventory := services.NewInventoryService(st)
	events := services.NewGameEventService(st, time.Now)
	cards := services.NewCardService(st)
	dashboard := services.NewDashboardService(st, syncer, events)

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
	log.Info().Str("type", cfg.Queue.Type).Msg("Job queue ready")

	// Setup router
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.SetupRouter(api.RouterConfig{
		Store:       st,
		Syncer:      syncer,
		Tracking:    tracking,
		Inventory:   inventory,
		Prices:      prices,
		Events:      events,
		Cards:       cards,
		Dashboard:   dashboard,
		Queue:       queue,
		CORSOrigins: cfg.Server.AllowedOrigins(),
		DefaultUser: cfg.Server.DefaultUser,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tree := supervisor.NewTree(supervisor.TreeConfig{ShutdownTimeout: cfg.Server.ShutdownTimeout})
	tree.AddAPIService(supervisor.NewHTTPService(srv, cfg.Server.ShutdownTimeout))
	tree.AddJobService(jobs.NewWorker(queue, jobs.NewDeps(st, syncer, time.Now), cfg.Queue.PollInterval))
	if cfg.Scheduler.Enabled {
		schedules := []jobs.Schedule{
			{Name: jobs.DiscoverSets, Every: cfg.Scheduler.DiscoverInterval},
			{Name: jobs.SyncTrackedSets, Every: cfg.Scheduler.SyncInterval},
			{Name: jobs.UpdateInventoryPrices, Every: cfg.Scheduler.PriceInterval},
		}
		tree.AddJobService(jobs.NewScheduler(queue, st, schedules, cfg.Scheduler.CheckInterval, time.Now))
	}

	log.Info().Str("addr", srv.Addr).Msg("Starting server")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Supervisor stopped")
	}
	if report, err := tree.UnstoppedServiceReport(); err == nil && len(report) > 0 {
		log.Warn().Int("count", len(report)).Msg("Services did not stop in time")
	}

	log.Info().Msg("Server exited")
}
