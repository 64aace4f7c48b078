/**
 * @description
 * Redis connection manager using go-redis.
 * Backs every cached prediction, position, task and stats key, plus the
 * price-history pub/sub channel.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - github.com/alicebob/miniredis/v2 (dry runs only)
 */

package db

import (
	"context"
	"fmt"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/logger"
)

// ConnectRedis initializes the Redis client and verifies it with a PING.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	applyRedisDefaults(opt)

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), opt.DialTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("✅ Connected to Redis")
	return client, nil
}

// ConnectInMemoryRedis starts a throwaway miniredis server and returns a client
// for it. The returned func stops the server.
func ConnectInMemoryRedis() (*redis.Client, func(), error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start in-memory redis: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stop := func() {
		_ = client.Close()
		mr.Close()
	}
	logger.Info("🧪 Using in-memory Redis at %s", mr.Addr())
	return client, stop, nil
}

func applyRedisDefaults(opt *redis.Options) {
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 5 * time.Second
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if opt.PoolTimeout == 0 {
		opt.PoolTimeout = 5 * time.Second
	}
	// Retries are safe: every multi-key write path is idempotent or runs in WATCH/MULTI.
	if opt.MaxRetries == 0 {
		opt.MaxRetries = 2
	}
	if opt.MinRetryBackoff == 0 {
		opt.MinRetryBackoff = 200 * time.Millisecond
	}
	if opt.MaxRetryBackoff == 0 {
		opt.MaxRetryBackoff = 2 * time.Second
	}
	if opt.PoolSize == 0 {
		opt.PoolSize = 20
	}
	if opt.MinIdleConns == 0 {
		opt.MinIdleConns = 5
	}
}
