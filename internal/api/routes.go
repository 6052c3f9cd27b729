package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codyseavey/mythicstats/internal/api/handlers"
	"github.com/codyseavey/mythicstats/internal/jobs"
	"github.com/codyseavey/mythicstats/internal/services"
	"github.com/codyseavey/mythicstats/internal/store"
)

// RouterConfig holds what the HTTP layer is built over.
type RouterConfig struct {
	Store       *store.Store
	Syncer      *services.Syncer
	Tracking    *services.TrackingService
	Inventory   *services.InventoryService
	Prices      *services.PriceUpdateService
	Events      *services.GameEventService
	Cards       *services.CardService
	Dashboard   *services.DashboardService
	Queue       jobs.Queue
	CORSOrigins []string
	DefaultUser string
}

func SetupRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestMetrics())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-User-ID"}
	corsConfig.AllowCredentials = false
	router.Use(cors.New(corsConfig))

	// Initialize handlers
	catalogHandler := handlers.NewCatalogHandler(cfg.Store, cfg.Syncer, cfg.Tracking)
	inventoryHandler := handlers.NewInventoryHandler(cfg.Inventory)
	priceHandler := handlers.NewPriceHandler(cfg.Store, cfg.Syncer, cfg.Prices)
	jobHandler := handlers.NewJobHandler(cfg.Queue)
	eventHandler := handlers.NewEventHandler(cfg.Events)
	cardHandler := handlers.NewCardHandler(cfg.Cards)
	dashboardHandler := handlers.NewDashboardHandler(cfg.Dashboard)

	// API routes
	api := router.Group("/api")
	api.Use(resolveUser(cfg.Store, cfg.DefaultUser))
	{
		api.GET("/quota", priceHandler.GetQuota)
		api.GET("/dashboard", dashboardHandler.Summary)

		// Game routes
		games := api.Group("/games")
		{
			games.GET("", catalogHandler.ListGames)
			games.POST("/sync", catalogHandler.SyncGames)
			games.GET("/:id/sets", catalogHandler.ListSets)
			games.POST("/:id/track", catalogHandler.TrackGame)
			games.DELETE("/:id/track", catalogHandler.UntrackGame)
			games.PATCH("/:id/track", catalogHandler.ToggleGame)
			games.POST("/:id/discover-sets", catalogHandler.DiscoverSets)
			games.GET("/:id/events", eventHandler.List)
			games.POST("/:id/events", eventHandler.Create)
			games.PATCH("/:id/events/:eventId", eventHandler.Update)
			games.DELETE("/:id/events/:eventId", eventHandler.Delete)
		}

		// Set routes
		sets := api.Group("/sets")
		{
			sets.GET("/:id", catalogHandler.GetSet)
			sets.GET("/:id/cards", cardHandler.ListSetCards)
			sets.POST("/:id/track", catalogHandler.TrackSet)
			sets.DELETE("/:id/track", catalogHandler.UntrackSet)
			sets.PATCH("/:id/track", catalogHandler.ToggleSet)
			sets.POST("/:id/sync", catalogHandler.SyncSet)
		}

		// Card routes
		cards := api.Group("/cards")
		{
			cards.GET("/:id", catalogHandler.GetCard)
			cards.PATCH("/:id", cardHandler.UpdateCard)
			cards.POST("/:id/sync", catalogHandler.SyncCard)
		}
		api.GET("/variants/:id/history", priceHandler.GetVariantHistory)
		api.PATCH("/variants/:id", cardHandler.UpdateVariant)

		// Tracking routes
		tracking := api.Group("/tracking")
		{
			tracking.GET("/games", catalogHandler.ListTrackedGames)
			tracking.GET("/sets", catalogHandler.ListTrackedSets)
		}

		// Inventory routes
		inventory := api.Group("/inventory")
		{
			inventory.GET("", inventoryHandler.List)
			inventory.POST("", inventoryHandler.Add)
			inventory.POST("/update-prices", priceHandler.UpdateInventoryPrices)
			inventory.PATCH("/variants/:id/quantity", inventoryHandler.UpdateQuantity)
			inventory.DELETE("/:id", inventoryHandler.Remove)
			inventory.GET("/:id/value", inventoryHandler.Value)
			inventory.POST("/:id/resync", inventoryHandler.Resync)
			inventory.POST("/:id/update-prices", priceHandler.UpdateItemPrices)
		}

		// Job routes
		api.POST("/jobs/:name", jobHandler.Enqueue)
		api.GET("/jobs/id/:id", jobHandler.Get)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := cfg.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
