/**
 * @description
 * API Route definitions.
 * Sets up the router groups and assigns handlers.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - github.com/prometheus/client_golang/prometheus/promhttp
 * - backend/internal/api/handlers
 * - backend/internal/api/middleware
 * - backend/internal/services
 */

package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swipe-markets/backend/internal/api/handlers"
	"github.com/swipe-markets/backend/internal/api/middleware"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/services"
	"github.com/swipe-markets/backend/internal/store"
)

// Dependencies are the wired services the routes serve.
type Dependencies struct {
	Predictions *store.PredictionStore
	Positions   *store.PositionStore
	Reconciler  *services.Reconciler
	Routes      registry.Registry
	Runs        registry.RunLog
	Tasks       *services.TaskService
	Stats       *services.StatsService
	History     *services.PriceHistory
	Hub         *services.PriceStreamHub
	Notifier    *services.Notifier
	Auth        *middleware.Auth
	Gatherer    prometheus.Gatherer // nil skips /metrics
}

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, deps Dependencies) {
	predictionHandler := handlers.NewPredictionHandler(deps.Predictions, deps.History, deps.Hub)
	positionHandler := handlers.NewPositionHandler(deps.Positions, deps.Predictions)
	taskHandler := handlers.NewTaskHandler(deps.Tasks)
	statsHandler := handlers.NewStatsHandler(deps.Stats)
	adminHandler := &handlers.AdminHandler{
		Reconciler:  deps.Reconciler,
		Routes:      deps.Routes,
		Runs:        deps.Runs,
		Tasks:       deps.Tasks,
		Predictions: deps.Predictions,
		Notifier:    deps.Notifier,
	}

	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Public Routes
	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	predictions := v1.Group("/predictions")
	predictions.Get("/active", predictionHandler.GetActive)
	predictions.Get("/stream", predictionHandler.StreamPrices)
	predictions.Get("/:id", predictionHandler.GetPrediction)
	predictions.Get("/:id/history", predictionHandler.GetHistory)

	v1.Get("/positions/:address/:id", positionHandler.GetPosition)

	tasks := v1.Group("/tasks")
	tasks.Post("/confirm", taskHandler.ConfirmTask)
	tasks.Get("/:address/:taskType", taskHandler.GetStatus)

	v1.Get("/stats", statsHandler.GetStats)
	v1.Post("/stats/claims", statsHandler.RecordClaim)

	// Admin Routes (Protected)
	admin := v1.Group("/admin", deps.Auth.AdminOnly())
	admin.Post("/sync", adminHandler.Sync)
	admin.Get("/sync/runs", adminHandler.ListRuns)
	admin.Get("/sync/:id/compare", adminHandler.Compare)
	admin.Post("/drift", adminHandler.CheckDrift)
	admin.Post("/achievements/:taskType/recount", adminHandler.RecountAchievement)
	admin.Post("/tasks/:taskType/reset", adminHandler.ResetTaskStats)
	admin.Get("/predictions", adminHandler.ListPredictions)
	admin.Post("/routes", adminHandler.RegisterRoute)
	admin.Get("/notifications", adminHandler.PendingNotifications)
}
