/**
 * @description
 * Configuration loader for the Swipe prediction backend.
 * Reads environment variables, applies defaults and validates the values the
 * reconciliation pipeline cannot run without.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - github.com/ethereum/go-ethereum/common: Contract address validation
 *
 * @notes
 * - REDIS_URL is the only hard requirement. Postgres is optional and only backs
 *   the persisted route registry and the sync run log.
 * - Contract routing rules are explicit config, never inferred at call sites.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Chain    ChainConfig
	Routing  RoutingConfig
	Sync     SyncConfig
	Tasks    TasksConfig
	Services ServicesConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development", "staging", "production" or "test"
}

// DBConfig holds PostgreSQL settings. URL may be empty.
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// ChainConfig holds RPC and contract settings
type ChainConfig struct {
	RPCURL         string
	LegacyContract string // ETH/SWIPE dual-asset pool
	USDCContract   string // USDC dual-pool
	CallTimeout    time.Duration
}

// RoutingConfig describes how prediction ids map to contracts.
type RoutingConfig struct {
	// Rules is a comma separated list of prefix=version pairs, e.g. "pred_v2_=usdc,=legacy".
	Rules string
	// KnownIDs seeds the list of registered predictions when no persisted registry is available.
	KnownIDs []string
}

// SyncConfig holds reconciliation tuning
type SyncConfig struct {
	MaxParticipants int
	DriftCheckSpec  string
}

// TasksConfig lists the task types that reset every UTC day.
type TasksConfig struct {
	DailyTaskTypes []string
}

// ServicesConfig holds secrets and external endpoints
type ServicesConfig struct {
	StatsSecret   string
	JWKSURL       string
	AdminSubjects []string
	StakeFeedURL  string
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (containers inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Chain: ChainConfig{
			RPCURL:         getEnv("BASE_RPC_URL", "https://mainnet.base.org"),
			LegacyContract: strings.TrimSpace(getEnv("LEGACY_CONTRACT_ADDRESS", "")),
			USDCContract:   strings.TrimSpace(getEnv("USDC_CONTRACT_ADDRESS", "")),
			CallTimeout:    time.Duration(getEnvAsInt("RPC_CALL_TIMEOUT_SECONDS", 8)) * time.Second,
		},
		Routing: RoutingConfig{
			Rules:    getEnv("CONTRACT_ROUTES", "pred_v2_=usdc,=legacy"),
			KnownIDs: getEnvAsList("KNOWN_PREDICTION_IDS"),
		},
		Sync: SyncConfig{
			MaxParticipants: getEnvAsInt("SYNC_MAX_PARTICIPANTS", 100),
			DriftCheckSpec:  getEnv("DRIFT_CHECK_CRON", "0 */5 * * * *"),
		},
		Tasks: TasksConfig{
			DailyTaskTypes: getEnvAsListOr("DAILY_TASK_TYPES", []string{"daily_checkin", "daily_stake", "daily_share"}),
		},
		Services: ServicesConfig{
			StatsSecret:   sanitizeCredential(getEnv("STATS_WEBHOOK_SECRET", "")),
			JWKSURL:       getEnv("ADMIN_JWKS_URL", ""),
			AdminSubjects: getEnvAsList("ADMIN_SUBJECTS"),
			StakeFeedURL:  getEnv("STAKE_FEED_URL", ""),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	for name, addr := range map[string]string{
		"LEGACY_CONTRACT_ADDRESS": cfg.Chain.LegacyContract,
		"USDC_CONTRACT_ADDRESS":   cfg.Chain.USDCContract,
	} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not a valid address: %q", name, addr)
		}
	}
	if cfg.Sync.MaxParticipants <= 0 {
		return fmt.Errorf("SYNC_MAX_PARTICIPANTS must be positive")
	}
	if cfg.Services.StatsSecret == "" && cfg.Server.Env != "test" {
		// The claims webhook rejects every call until this is set
		fmt.Println("Warning: STATS_WEBHOOK_SECRET is missing. Claim recording is disabled.")
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key string) []string {
	return getEnvAsListOr(key, nil)
}

func getEnvAsListOr(key string, fallback []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
