/**
 * @description
 * Main entry point for the Swipe prediction backend API.
 * Initializes the Fiber web server, loads configuration, and sets up routes.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2: Web framework
 * - backend/internal/config: Config loader
 * - backend/internal/db: Redis and optional Postgres connections
 *
 * @notes
 * - Redis is required; Postgres only backs the route registry and run log.
 * - The contract client is dialed lazily by go-ethereum, so a flaky RPC never
 *   blocks startup. Sync endpoints report read failures per id.
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/swipe-markets/backend/internal/api"
	"github.com/swipe-markets/backend/internal/api/middleware"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/db"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/services"
	"github.com/swipe-markets/backend/internal/store"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Initialize Database Connections
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	chainClient, err := chain.Dial(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Base RPC: %v", err)
	}
	defer chainClient.Close()

	static, err := registry.NewStaticRegistryFromConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid contract routing: %v", err)
	}

	auth, err := middleware.InitAuthMiddleware(cfg)
	if err != nil {
		// Admin routes answer 500 until the JWKS is reachable; public routes still serve.
		logger.Error("Failed to init auth middleware: %v", err)
	}
	defer auth.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Services
	m := metrics.New(prometheus.DefaultRegisterer)
	chainClient.WithMetrics(m)
	kv := store.NewKV(redisClient)
	predictions := store.NewPredictionStore(kv)
	positions := store.NewPositionStore(kv)
	routes := registry.New(pgDB, static)
	runs := registry.NewRunLog(pgDB)
	notifier := services.NewNotifier(kv)

	reconciler := services.NewReconciler(services.ReconcilerOptions{
		Chain:           chainClient,
		Routes:          routes,
		Predictions:     predictions,
		Positions:       positions,
		Notifier:        notifier,
		Runs:            runs,
		Metrics:         m,
		MaxParticipants: cfg.Sync.MaxParticipants,
	})

	// 4. Initialize Fiber App
	app := fiber.New(fiber.Config{
		AppName:       "Swipe Prediction Backend",
		StrictRouting: true,
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	// 5. Routes
	api.SetupRoutes(app, api.Dependencies{
		Predictions: predictions,
		Positions:   positions,
		Reconciler:  reconciler,
		Routes:      routes,
		Runs:        runs,
		Tasks:       services.NewTaskService(kv, cfg.Tasks.DailyTaskTypes, m),
		Stats:       services.NewStatsService(kv, cfg.Services.StatsSecret, m),
		History:     services.NewPriceHistory(kv, m),
		Hub:         services.NewPriceStreamHub(ctx, redisClient, store.PriceUpdatesChannel, m),
		Notifier:    notifier,
		Auth:        auth,
		Gatherer:    prometheus.DefaultGatherer,
	})

	// 6. Start Server
	go func() {
		logger.Info("🚀 Starting Swipe backend on port %s", cfg.Server.Port)
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			logger.Fatal("Failed to start server: %v", err)
		}
	}()

	// 7. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down API...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	logger.Info("API exited.")
}
