/**
 * @description
 * Price history ledger.
 * Appends one pool-ratio snapshot per stake to `price-history:<id>` and
 * publishes it on the live price channel.
 *
 * @dependencies
 * - github.com/shopspring/decimal
 * - backend/internal/store
 *
 * @notes
 * - The series is one JSON array rewritten on every append (read-modify-write,
 *   last writer wins). Two concurrent appends to the same prediction can lose
 *   one point. Acceptable for a display-only series.
 * - The series keeps the newest MaxPricePoints points; the oldest are dropped.
 * - An unreadable series is replaced by a fresh one on the next append.
 */

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

const MaxPricePoints = 1000

var hundred = decimal.NewFromInt(100)

// PriceUpdate is the payload published for every appended point.
type PriceUpdate struct {
	PredictionID string            `json:"predictionId"`
	Point        models.PricePoint `json:"point"`
}

type PriceHistory struct {
	kv        *store.KV
	metrics   *metrics.Metrics
	maxPoints int
	now       func() time.Time
}

func NewPriceHistory(kv *store.KV, m *metrics.Metrics) *PriceHistory {
	return &PriceHistory{kv: kv, metrics: m, maxPoints: MaxPricePoints, now: time.Now}
}

// ComputePrices returns integer YES/NO prices that always sum to 100.
// An empty pool prices at 50/50.
func ComputePrices(yesPool, noPool decimal.Decimal) (yesPrice, noPrice int) {
	total := yesPool.Add(noPool)
	if !total.IsPositive() {
		return 50, 50
	}
	yesPrice = int(yesPool.Mul(hundred).Div(total).Round(0).IntPart())
	return yesPrice, 100 - yesPrice
}

// Append records a snapshot and returns the stored point.
func (h *PriceHistory) Append(ctx context.Context, predictionID string, snap models.StakeSnapshot) (*models.PricePoint, error) {
	predictionID = strings.TrimSpace(predictionID)
	if predictionID == "" {
		return nil, fmt.Errorf("%w: predictionId is required", ErrValidation)
	}
	if snap.YesPool.IsNegative() || snap.NoPool.IsNegative() {
		return nil, fmt.Errorf("%w: pools must be non-negative", ErrValidation)
	}
	side := strings.ToLower(strings.TrimSpace(snap.BetSide))
	if side != "" && side != "yes" && side != "no" {
		return nil, fmt.Errorf("%w: betSide must be yes or no", ErrValidation)
	}

	yesPrice, noPrice := ComputePrices(snap.YesPool, snap.NoPool)
	point := models.PricePoint{
		Timestamp: h.now().UnixMilli(),
		YesPrice:  yesPrice,
		NoPrice:   noPrice,
		YesPool:   snap.YesPool,
		NoPool:    snap.NoPool,
		TotalPool: snap.YesPool.Add(snap.NoPool),
		BetAmount: snap.BetAmount,
		BetSide:   side,
	}
	if snap.Bettor != "" {
		point.Bettor = models.NormalizeAddress(snap.Bettor)
	}

	key := store.PriceHistoryKey(predictionID)
	var series []models.PricePoint
	found, err := h.kv.GetJSON(ctx, key, &series)
	if err != nil {
		if !found {
			return nil, fmt.Errorf("failed to load price history: %w", err)
		}
		logger.Warn("PriceHistory: discarding unreadable series for %s: %v", predictionID, err)
		series = nil
	}
	series = append(series, point)
	if over := len(series) - h.maxPoints; over > 0 {
		series = series[over:]
	}
	if err := h.kv.SetJSON(ctx, key, series, 0); err != nil {
		return nil, fmt.Errorf("failed to save price history: %w", err)
	}
	h.metrics.PriceAppended()

	if payload, err := json.Marshal(PriceUpdate{PredictionID: predictionID, Point: point}); err == nil {
		if err := h.kv.Publish(ctx, store.PriceUpdatesChannel, payload); err != nil {
			logger.Warn("PriceHistory: failed to publish update for %s: %v", predictionID, err)
		}
	}
	return &point, nil
}

// Get returns the newest limit points in chronological order. limit <= 0 returns all.
func (h *PriceHistory) Get(ctx context.Context, predictionID string, limit int) ([]models.PricePoint, error) {
	var series []models.PricePoint
	if _, err := h.kv.GetJSON(ctx, store.PriceHistoryKey(predictionID), &series); err != nil {
		return nil, err
	}
	if series == nil {
		return []models.PricePoint{}, nil
	}
	if limit > 0 && len(series) > limit {
		series = series[len(series)-limit:]
	}
	return series, nil
}
