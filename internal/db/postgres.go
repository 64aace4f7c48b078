/**
 * @description
 * PostgreSQL connection manager using GORM.
 * Optional store for the contract route registry and the sync run log.
 * Callers skip it entirely when DATABASE_URL is empty.
 *
 * @dependencies
 * - gorm.io/gorm: ORM library
 * - gorm.io/driver/postgres: Postgres driver
 */

package db

import (
	"fmt"
	"time"

	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// ConnectPostgres opens the registry database and migrates its two tables.
// It returns (nil, nil) when no DATABASE_URL is configured.
func ConnectPostgres(cfg *config.Config) (*gorm.DB, error) {
	if cfg.DB.URL == "" {
		logger.Info("DATABASE_URL not set, using static contract routes only")
		return nil, nil
	}

	gormLogLevel := gormLogger.Error
	if cfg.Server.Env == "development" {
		gormLogLevel = gormLogger.Info
	} else if cfg.Server.Env == "staging" {
		gormLogLevel = gormLogger.Warn
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DB.URL,
		PreferSimpleProtocol: true, // disable prepared statements to avoid stmtcache collisions behind poolers
	}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// The registry sees a handful of writes per market; keep the pool small.
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&models.ContractRoute{}, &models.SyncRun{}); err != nil {
		return nil, fmt.Errorf("failed to migrate registry tables: %w", err)
	}

	logger.Info("✅ Connected to PostgreSQL")
	return db, nil
}
