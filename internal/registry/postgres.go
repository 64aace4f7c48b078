/**
 * @description
 * Persisted contract route registry backed by the `contract_routes` table.
 * Registrations are written when a market is mirrored on a contract, which
 * makes this the authoritative enumeration for full syncs.
 *
 * @dependencies
 * - gorm.io/gorm
 * - github.com/jackc/pgx/v5/pgconn: retryable error codes (the driver gorm postgres runs on)
 *
 * @notes
 * - Resolve prefers a persisted row and falls back to the static rules.
 * - Upserts retry on deadlock (40P01) and serialization failure (40001).
 */

package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxUpsertRetries = 5

type PostgresRegistry struct {
	db       *gorm.DB
	fallback *StaticRegistry
}

func NewPostgresRegistry(db *gorm.DB, fallback *StaticRegistry) *PostgresRegistry {
	return &PostgresRegistry{db: db, fallback: fallback}
}

// New picks the persisted registry when a database is available.
func New(db *gorm.DB, static *StaticRegistry) Registry {
	if db == nil {
		return static
	}
	return NewPostgresRegistry(db, static)
}

func (r *PostgresRegistry) Resolve(ctx context.Context, predictionID string) (Route, error) {
	var row models.ContractRoute
	err := r.db.WithContext(ctx).Where("prediction_id = ?", strings.TrimSpace(predictionID)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return r.fallback.Resolve(ctx, predictionID)
	}
	if err != nil {
		return Route{}, fmt.Errorf("failed to load route for %s: %w", predictionID, err)
	}
	return r.fromRow(row)
}

// ListRegistered merges persisted rows with the static seed list. Persisted rows win.
func (r *PostgresRegistry) ListRegistered(ctx context.Context) ([]Route, error) {
	var rows []models.ContractRoute
	if err := r.db.WithContext(ctx).Order("prediction_id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list routes: %w", err)
	}

	byID := make(map[string]Route, len(rows))
	for _, row := range rows {
		route, err := r.fromRow(row)
		if err != nil {
			return nil, err
		}
		byID[route.PredictionID] = route
	}

	seeded, err := r.fallback.ListRegistered(ctx)
	if err != nil {
		return nil, err
	}
	for _, route := range seeded {
		if _, ok := byID[route.PredictionID]; !ok {
			byID[route.PredictionID] = route
		}
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Route, 0, len(ids))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}

func (r *PostgresRegistry) Register(ctx context.Context, route Route) error {
	route, err := r.fallback.complete(route)
	if err != nil {
		return err
	}
	row := toRow(route)

	for attempt := 1; attempt <= maxUpsertRetries; attempt++ {
		err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "prediction_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"version", "contract_address", "onchain_id", "updated_at"}),
		}).Create(&row).Error
		if err == nil {
			return nil
		}

		if !isRetryable(err) || attempt == maxUpsertRetries {
			break
		}
		backoff := time.Duration(attempt*100+rand.Intn(100)) * time.Millisecond
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to register route for %s: %w", route.PredictionID, ctx.Err())
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed to register route for %s: %w", route.PredictionID, err)
}

func (r *PostgresRegistry) fromRow(row models.ContractRoute) (Route, error) {
	onchainID, err := ParseOnchainID(row.OnchainID)
	if err != nil {
		return Route{}, fmt.Errorf("route %s: %w", row.PredictionID, err)
	}
	route := Route{
		PredictionID: row.PredictionID,
		Version:      chain.Version(row.Version),
		OnchainID:    onchainID,
	}
	if common.IsHexAddress(row.ContractAddress) {
		route.Address = common.HexToAddress(row.ContractAddress)
	}
	return r.fallback.complete(route)
}

func toRow(route Route) models.ContractRoute {
	return models.ContractRoute{
		PredictionID:    route.PredictionID,
		Version:         string(route.Version),
		ContractAddress: strings.ToLower(route.Address.Hex()),
		OnchainID:       route.OnchainID.String(),
	}
}

// isRetryable reports deadlocks (40P01) and serialization failures (40001).
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40P01" || pgErr.Code == "40001"
}
