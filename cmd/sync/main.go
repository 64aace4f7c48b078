package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/db"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/services"
	"github.com/swipe-markets/backend/internal/store"
)

func main() {
	ids := flag.String("ids", "", "comma separated prediction ids to sync")
	all := flag.Bool("all", false, "sync every registered prediction")
	compare := flag.Bool("compare", false, "report drift for -ids without writing")
	dryRun := flag.Bool("dry-run", false, "copy the records into an in-memory redis and sync there")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall deadline")
	flag.Parse()

	targets := splitIDs(*ids)
	if !*all && len(targets) == 0 {
		log.Fatal("nothing to do: pass -ids or -all")
	}
	if *compare && len(targets) == 0 {
		log.Fatal("-compare needs -ids")
	}

	log.Println("🚀 Starting manual prediction sync...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	pgDB, err := db.ConnectPostgres(cfg)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}

	redisClient, err := db.ConnectRedis(cfg)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	chainClient, err := chain.Dial(cfg)
	if err != nil {
		log.Fatalf("failed to connect to rpc: %v", err)
	}
	defer chainClient.Close()

	static, err := registry.NewStaticRegistryFromConfig(cfg)
	if err != nil {
		log.Fatalf("invalid contract routing: %v", err)
	}
	routes := registry.New(pgDB, static)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	target := redisClient
	runs := registry.NewRunLog(pgDB)
	if *dryRun {
		memClient, stop, err := db.ConnectInMemoryRedis()
		if err != nil {
			log.Fatalf("%v", err)
		}
		defer stop()

		if *all {
			registered, err := routes.ListRegistered(ctx)
			if err != nil {
				log.Fatalf("failed to list registered routes: %v", err)
			}
			targets = targets[:0]
			for _, r := range registered {
				targets = append(targets, r.PredictionID)
			}
		}
		copied := copyRecords(ctx, redisClient, memClient, targets)
		log.Printf("🧪 Dry run: copied %d of %d prediction records", copied, len(targets))
		target = memClient
		runs = registry.NopRunLog{}
	}

	kv := store.NewKV(target)
	reconciler := services.NewReconciler(services.ReconcilerOptions{
		Chain:           chainClient,
		Routes:          routes,
		Predictions:     store.NewPredictionStore(kv),
		Positions:       store.NewPositionStore(kv),
		Notifier:        services.NewNotifier(kv),
		Runs:            runs,
		MaxParticipants: cfg.Sync.MaxParticipants,
	})

	if *compare {
		reports := make([]*services.DriftReport, 0, len(targets))
		for _, id := range targets {
			report, err := reconciler.Compare(ctx, id)
			if err != nil {
				log.Fatalf("compare %s failed: %v", id, err)
			}
			reports = append(reports, report)
		}
		printJSON(reports)
		return
	}

	var batch *services.BatchResult
	if *all && !*dryRun {
		batch, err = reconciler.SyncAllKnown(ctx, "cli")
		if err != nil {
			log.Fatalf("sync failed: %v", err)
		}
	} else {
		batch = reconciler.SyncMany(ctx, targets, "cli")
	}
	printJSON(batch)

	if batch.Failed > 0 {
		log.Printf("⚠️ %d of %d predictions failed to sync", batch.Failed, batch.Total)
		os.Exit(1)
	}
	log.Println("✅ Manual prediction sync completed successfully.")
}

func splitIDs(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func copyRecords(ctx context.Context, from, to *redis.Client, ids []string) int {
	src := store.NewPredictionStore(store.NewKV(from))
	dst := store.NewPredictionStore(store.NewKV(to))
	copied := 0
	for _, id := range ids {
		p, err := src.Get(ctx, id)
		if err != nil {
			log.Printf("⚠️ failed to read prediction %s: %v", id, err)
			continue
		}
		if p == nil {
			continue
		}
		if err := dst.Save(ctx, p); err != nil {
			log.Printf("⚠️ failed to copy prediction %s: %v", id, err)
			continue
		}
		copied++
	}
	return copied
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("failed to encode output: %v", err)
	}
}
