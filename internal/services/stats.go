/**
 * @description
 * Reward claim aggregates and leaderboard.
 * Updated by the on-chain claim listener through a shared-secret webhook.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: WATCH/MULTI optimistic transactions
 * - github.com/shopspring/decimal: exact totals
 *
 * @notes
 * - Stats hash `daily-tasks:stats` fields: totalClaims, totalUsers, jackpotsHit
 *   (integers), totalDistributed, streakSum, avgStreak (decimal strings).
 * - Exact per-address totals live in `daily-tasks:claimed`; the leaderboard
 *   score is set from that total, so float rounding never accumulates.
 * - totalClaims is incremented before avgStreak is derived from it.
 */

package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

const (
	LeaderboardSize = 10

	fieldTotalClaims      = "totalClaims"
	fieldTotalUsers       = "totalUsers"
	fieldTotalDistributed = "totalDistributed"
	fieldStreakSum        = "streakSum"
	fieldAvgStreak        = "avgStreak"
	fieldJackpotsHit      = "jackpotsHit"

	maxClaimTxRetries = 10
	avgStreakPlaces   = 4
)

type RecordClaimRequest struct {
	Address   string          `json:"address" validate:"required,eth_addr"`
	Amount    decimal.Decimal `json:"amount"`
	Streak    int64           `json:"streak" validate:"gte=0"`
	IsJackpot bool            `json:"isJackpot"`
	Secret    string          `json:"secret"`
}

type StatsService struct {
	kv       *store.KV
	secret   string
	validate *validator.Validate
	metrics  *metrics.Metrics
}

func NewStatsService(kv *store.KV, secret string, m *metrics.Metrics) *StatsService {
	return &StatsService{kv: kv, secret: secret, validate: validator.New(), metrics: m}
}

// RecordClaim folds one claim into the aggregates. It rejects a wrong or
// unconfigured secret with ErrUnauthorized before touching any state.
func (s *StatsService) RecordClaim(ctx context.Context, req RecordClaimRequest) error {
	if s.secret == "" || subtle.ConstantTimeCompare([]byte(req.Secret), []byte(s.secret)) != 1 {
		return ErrUnauthorized
	}
	req.Address = strings.TrimSpace(req.Address)
	if err := s.validate.Struct(req); err != nil {
		return validationError(err)
	}
	if req.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be non-negative", ErrValidation)
	}

	address := models.NormalizeAddress(req.Address)
	txf := func(tx *redis.Tx) error {
		vals, err := tx.HMGet(ctx, store.DailyStatsKey,
			fieldTotalClaims, fieldTotalDistributed, fieldStreakSum, fieldAvgStreak).Result()
		if err != nil {
			return err
		}
		known, err := tx.SIsMember(ctx, store.ClaimantsKey, address).Result()
		if err != nil {
			return err
		}
		prevTotal, err := tx.HGet(ctx, store.ClaimedTotalsKey, address).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		oldClaims := parseInt(vals[0])
		totalClaims := oldClaims + 1
		distributed := parseDecimal(vals[1]).Add(req.Amount)
		streakSum := parseDecimal(vals[2])
		if vals[2] == nil && oldClaims > 0 {
			// Hash written before streakSum existed: rebuild it from the running mean.
			streakSum = parseDecimal(vals[3]).Mul(decimal.NewFromInt(oldClaims))
		}
		streakSum = streakSum.Add(decimal.NewFromInt(req.Streak))
		avgStreak := streakSum.DivRound(decimal.NewFromInt(totalClaims), avgStreakPlaces)
		addressTotal := parseDecimal(prevTotal).Add(req.Amount)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, store.DailyStatsKey,
				fieldTotalClaims, totalClaims,
				fieldTotalDistributed, distributed.String(),
				fieldStreakSum, streakSum.String(),
				fieldAvgStreak, avgStreak.String(),
			)
			if !known {
				pipe.SAdd(ctx, store.ClaimantsKey, address)
				pipe.HIncrBy(ctx, store.DailyStatsKey, fieldTotalUsers, 1)
			}
			if req.IsJackpot {
				pipe.HIncrBy(ctx, store.DailyStatsKey, fieldJackpotsHit, 1)
			}
			pipe.HSet(ctx, store.ClaimedTotalsKey, address, addressTotal.String())
			pipe.ZAdd(ctx, store.LeaderboardKey, redis.Z{Score: addressTotal.InexactFloat64(), Member: address})
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxClaimTxRetries; attempt++ {
		err := s.kv.Client.Watch(ctx, txf, store.DailyStatsKey, store.ClaimantsKey, store.ClaimedTotalsKey)
		if err == nil {
			s.metrics.ClaimRecorded()
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("failed to record claim: %w", err)
	}
	logger.Error("StatsService: claim for %s lost %d optimistic retries", address, maxClaimTxRetries)
	return fmt.Errorf("failed to record claim: too much contention")
}

// GetStats returns the aggregates plus the top LeaderboardSize addresses.
func (s *StatsService) GetStats(ctx context.Context) (*models.Stats, error) {
	fields, err := s.kv.HGetAll(ctx, store.DailyStatsKey)
	if err != nil {
		return nil, err
	}
	stats := &models.Stats{
		TotalUsers:       parseInt(fields[fieldTotalUsers]),
		TotalClaims:      parseInt(fields[fieldTotalClaims]),
		TotalDistributed: parseDecimal(fields[fieldTotalDistributed]),
		AvgStreak:        parseDecimal(fields[fieldAvgStreak]),
		JackpotsHit:      parseInt(fields[fieldJackpotsHit]),
		Leaderboard:      []models.LeaderboardEntry{},
	}

	top, err := s.kv.ZRevRange(ctx, store.LeaderboardKey, 0, LeaderboardSize-1)
	if err != nil {
		return nil, err
	}
	if len(top) == 0 {
		return stats, nil
	}

	members := make([]string, len(top))
	for i, m := range top {
		members[i] = m.Member
	}
	exact, err := s.kv.Client.HMGet(ctx, store.ClaimedTotalsKey, members...).Result()
	if err != nil {
		return nil, err
	}
	for i, m := range top {
		score := decimal.NewFromFloat(m.Score)
		if i < len(exact) && exact[i] != nil {
			score = parseDecimal(exact[i])
		}
		stats.Leaderboard = append(stats.Leaderboard, models.LeaderboardEntry{
			Rank:    i + 1,
			Address: m.Member,
			Score:   score,
		})
	}
	return stats, nil
}

// parseInt accepts the string, nil or int64 shapes go-redis returns.
func parseInt(v interface{}) int64 {
	switch t := v.(type) {
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			// Older writers stored counters via HINCRBYFLOAT.
			if f, ferr := decimal.NewFromString(t); ferr == nil {
				return f.IntPart()
			}
		}
		return n
	case int64:
		return t
	}
	return 0
}

func parseDecimal(v interface{}) decimal.Decimal {
	s, ok := v.(string)
	if !ok || s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
