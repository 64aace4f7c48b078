/**
 * @description
 * Worker Service Entry Point.
 * Responsible for background reconciliation:
 * 1. Consuming the on-chain stake feed via WebSocket (price points + syncs).
 * 2. Running scheduled drift checks that sync only predictions that drifted.
 *
 * @dependencies
 * - backend/internal/config
 * - backend/internal/db
 * - backend/internal/stakefeed
 * - backend/internal/scheduler
 * - backend/internal/services
 */

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/db"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/scheduler"
	"github.com/swipe-markets/backend/internal/services"
	"github.com/swipe-markets/backend/internal/stakefeed"
	"github.com/swipe-markets/backend/internal/store"
)

func main() {
	logger.Info("🔥 Starting Swipe Worker...")

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config: %v", err)
	}

	// 2. Connect DBs and RPC
	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		logger.Fatal("Postgres connection failed: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		logger.Fatal("Redis connection failed: %v", err)
	}
	defer redisClient.Close()

	chainClient, err := chain.Dial(cfg)
	if err != nil {
		logger.Fatal("RPC connection failed: %v", err)
	}
	defer chainClient.Close()

	static, err := registry.NewStaticRegistryFromConfig(cfg)
	if err != nil {
		logger.Fatal("Invalid contract routing: %v", err)
	}

	// 3. Initialize Services
	m := metrics.New(prometheus.DefaultRegisterer)
	chainClient.WithMetrics(m)
	kv := store.NewKV(redisClient)
	reconciler := services.NewReconciler(services.ReconcilerOptions{
		Chain:           chainClient,
		Routes:          registry.New(pgDB, static),
		Predictions:     store.NewPredictionStore(kv),
		Positions:       store.NewPositionStore(kv),
		Notifier:        services.NewNotifier(kv),
		Runs:            registry.NewRunLog(pgDB),
		Metrics:         m,
		MaxParticipants: cfg.Sync.MaxParticipants,
	})
	history := services.NewPriceHistory(kv, m)

	// 4. Context with Cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. Stake feed
	var feed *stakefeed.Client
	if strings.TrimSpace(cfg.Services.StakeFeedURL) != "" {
		feed, err = stakefeed.NewClient(cfg, stakefeed.NewMessageHandler(history, reconciler, m))
		if err != nil {
			logger.Fatal("Stake feed setup failed: %v", err)
		}
		go func() {
			if err := feed.Connect(ctx); err != nil {
				logger.Error("❌ Stake feed client failed: %v", err)
			}
		}()
	} else {
		logger.Info("STAKE_FEED_URL not set, running drift checks only")
	}

	// 6. Scheduled drift checks
	runner := scheduler.New(ctx)
	if _, err := runner.Add("drift-check", cfg.Sync.DriftCheckSpec, func(ctx context.Context) {
		if _, err := reconciler.CheckDrift(ctx); err != nil {
			logger.Error("Drift check aborted: %v", err)
		}
	}); err != nil {
		logger.Fatal("Invalid DRIFT_CHECK_CRON %q: %v", cfg.Sync.DriftCheckSpec, err)
	}
	runner.Start()

	// 7. Metrics endpoint
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("📈 Worker metrics on :%s/metrics", cfg.Server.Port)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed: %v", err)
		}
	}()

	// 8. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	runner.Stop()

	if feed != nil {
		if err := feed.Close(); err != nil {
			logger.Error("Error closing stake feed: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("Worker exited.")
}
