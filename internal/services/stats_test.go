package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swipe-markets/backend/internal/store"
)

const statsSecret = "s3cret"

func newStatsService(t *testing.T) (*StatsService, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	return NewStatsService(env.kv, statsSecret, nil), env
}

func claim(addr string, amount string, streak int64) RecordClaimRequest {
	return RecordClaimRequest{
		Address: addr,
		Amount:  decimal.RequireFromString(amount),
		Streak:  streak,
		Secret:  statsSecret,
	}
}

func TestRecordClaimAggregates(t *testing.T) {
	svc, _ := newStatsService(t)
	ctx := context.Background()

	require.NoError(t, svc.RecordClaim(ctx, claim(alice.Hex(), "0.1", 1)))
	require.NoError(t, svc.RecordClaim(ctx, claim(lower(alice.Hex()), "0.2", 2)))
	jackpot := claim(bob.Hex(), "1.5", 4)
	jackpot.IsJackpot = true
	require.NoError(t, svc.RecordClaim(ctx, jackpot))

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalClaims)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(1), stats.JackpotsHit)
	assert.Equal(t, "1.8", stats.TotalDistributed.String())
	assert.Equal(t, "2.3333", stats.AvgStreak.String())

	require.Len(t, stats.Leaderboard, 2)
	assert.Equal(t, lower(bob.Hex()), stats.Leaderboard[0].Address)
	assert.Equal(t, 1, stats.Leaderboard[0].Rank)
	assert.Equal(t, lower(alice.Hex()), stats.Leaderboard[1].Address)
	assert.Equal(t, "0.3", stats.Leaderboard[1].Score.String())
}

func TestRecordClaimAverageStreakIsRunningMean(t *testing.T) {
	svc, _ := newStatsService(t)
	ctx := context.Background()
	streaks := []int64{3, 0, 7, 10, 5}

	var sum int64
	for i, s := range streaks {
		require.NoError(t, svc.RecordClaim(ctx, claim(alice.Hex(), "1", s)))
		sum += s

		stats, err := svc.GetStats(ctx)
		require.NoError(t, err)
		want := decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(int64(i+1)), 4)
		assert.True(t, want.Equal(stats.AvgStreak), "after %d claims: want %s got %s", i+1, want, stats.AvgStreak)
	}
}

func TestRecordClaimRebuildsMissingStreakSum(t *testing.T) {
	svc, env := newStatsService(t)
	env.mr.HSet(store.DailyStatsKey, "totalClaims", "2", "avgStreak", "3")

	require.NoError(t, svc.RecordClaim(context.Background(), claim(alice.Hex(), "1", 6)))

	assert.Equal(t, "12", env.mr.HGet(store.DailyStatsKey, "streakSum"))
	assert.Equal(t, "4", env.mr.HGet(store.DailyStatsKey, "avgStreak"))
	assert.Equal(t, "3", env.mr.HGet(store.DailyStatsKey, "totalClaims"))
}

func TestRecordClaimRejectsBadSecret(t *testing.T) {
	svc, env := newStatsService(t)
	ctx := context.Background()

	req := claim(alice.Hex(), "1", 1)
	req.Secret = "wrong"
	assert.ErrorIs(t, svc.RecordClaim(ctx, req), ErrUnauthorized)

	req.Secret = ""
	assert.ErrorIs(t, svc.RecordClaim(ctx, req), ErrUnauthorized)

	unconfigured := NewStatsService(env.kv, "", nil)
	assert.ErrorIs(t, unconfigured.RecordClaim(ctx, claim(alice.Hex(), "1", 1)), ErrUnauthorized)

	assert.Empty(t, env.mr.Keys())
}

func TestRecordClaimValidation(t *testing.T) {
	svc, env := newStatsService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.RecordClaim(ctx, claim("0xnope", "1", 1)), ErrValidation)
	assert.ErrorIs(t, svc.RecordClaim(ctx, claim(alice.Hex(), "-1", 1)), ErrValidation)
	assert.ErrorIs(t, svc.RecordClaim(ctx, claim(alice.Hex(), "1", -2)), ErrValidation)
	assert.Empty(t, env.mr.Keys())
}

func TestLeaderboardKeepsTopTen(t *testing.T) {
	svc, _ := newStatsService(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		addr := fmt.Sprintf("0x%040x", i)
		require.NoError(t, svc.RecordClaim(ctx, claim(addr, fmt.Sprintf("%d.25", i), 1)))
	}

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalUsers)
	require.Len(t, stats.Leaderboard, LeaderboardSize)
	for i, entry := range stats.Leaderboard {
		want := 12 - i
		assert.Equal(t, i+1, entry.Rank)
		assert.Equal(t, fmt.Sprintf("0x%040x", want), entry.Address)
		assert.Equal(t, fmt.Sprintf("%d.25", want), entry.Score.String())
	}
}

func TestGetStatsEmpty(t *testing.T) {
	svc, _ := newStatsService(t)
	stats, err := svc.GetStats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalClaims)
	assert.True(t, stats.TotalDistributed.IsZero())
	assert.NotNil(t, stats.Leaderboard)
	assert.Empty(t, stats.Leaderboard)
}
