package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

func TestComputePrices(t *testing.T) {
	cases := []struct {
		yes, no  int64
		yesPrice int
	}{
		{0, 0, 50},
		{1, 0, 100},
		{0, 1, 0},
		{1, 1, 50},
		{1, 2, 33},
		{2, 1, 67},
		{1, 199, 1},
		{333, 667, 33},
		{5, 995, 1},
	}
	for _, tc := range cases {
		yes, no := ComputePrices(dec(tc.yes), dec(tc.no))
		assert.Equal(t, tc.yesPrice, yes, "yes=%d no=%d", tc.yes, tc.no)
		assert.Equal(t, 100, yes+no)
	}
}

func TestComputePricesAlwaysSumToHundred(t *testing.T) {
	for yes := int64(0); yes < 60; yes += 7 {
		for no := int64(0); no < 60; no += 3 {
			y, n := ComputePrices(dec(yes), dec(no))
			assert.Equal(t, 100, y+n)
			assert.GreaterOrEqual(t, y, 0)
			assert.GreaterOrEqual(t, n, 0)
		}
	}
}

func newPriceHistory(t *testing.T) (*PriceHistory, *testEnv) {
	t.Helper()
	env := newTestEnv(t)
	h := NewPriceHistory(env.kv, nil)
	clock := time.UnixMilli(1_700_000_000_000)
	h.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return h, env
}

func TestAppendStoresPoint(t *testing.T) {
	h, _ := newPriceHistory(t)
	ctx := context.Background()
	amount := dec(5)

	point, err := h.Append(ctx, "42", models.StakeSnapshot{
		YesPool:   dec(75),
		NoPool:    dec(25),
		BetAmount: &amount,
		BetSide:   "YES",
		Bettor:    alice.Hex(),
	})
	require.NoError(t, err)
	assert.Equal(t, 75, point.YesPrice)
	assert.Equal(t, 25, point.NoPrice)
	assert.True(t, point.TotalPool.Equal(dec(100)))
	assert.Equal(t, "yes", point.BetSide)
	assert.Equal(t, lower(alice.Hex()), point.Bettor)

	series, err := h.Get(ctx, "42", 0)
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, point.Timestamp, series[0].Timestamp)
}

func TestAppendValidation(t *testing.T) {
	h, env := newPriceHistory(t)
	ctx := context.Background()

	_, err := h.Append(ctx, " ", models.StakeSnapshot{})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.Append(ctx, "1", models.StakeSnapshot{YesPool: dec(-1)})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = h.Append(ctx, "1", models.StakeSnapshot{BetSide: "maybe"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.False(t, env.mr.Exists(store.PriceHistoryKey("1")))
}

func TestAppendReplacesUnreadableSeries(t *testing.T) {
	h, env := newPriceHistory(t)
	ctx := context.Background()
	require.NoError(t, env.mr.Set(store.PriceHistoryKey("5"), "{not json"))

	point, err := h.Append(ctx, "5", models.StakeSnapshot{YesPool: dec(1), NoPool: dec(3)})
	require.NoError(t, err)
	assert.Equal(t, 25, point.YesPrice)

	_, err = h.Append(ctx, "5", models.StakeSnapshot{YesPool: dec(3), NoPool: dec(1)})
	require.NoError(t, err)

	series, err := h.Get(ctx, "5", 0)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 25, series[0].YesPrice)
	assert.Equal(t, 75, series[1].YesPrice)
}

func TestAppendKeepsNewestPoints(t *testing.T) {
	h, _ := newPriceHistory(t)
	assert.Equal(t, MaxPricePoints, h.maxPoints)
	h.maxPoints = 20
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		amount := decimal.NewFromInt(int64(i))
		_, err := h.Append(ctx, "7", models.StakeSnapshot{YesPool: dec(1), NoPool: dec(1), BetAmount: &amount})
		require.NoError(t, err)
	}

	series, err := h.Get(ctx, "7", 0)
	require.NoError(t, err)
	require.Len(t, series, 20)
	for i, p := range series {
		require.NotNil(t, p.BetAmount)
		assert.Equal(t, int64(i+5), p.BetAmount.IntPart())
		if i > 0 {
			assert.Greater(t, p.Timestamp, series[i-1].Timestamp)
		}
	}

	tail, err := h.Get(ctx, "7", 3)
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, int64(24), tail[2].BetAmount.IntPart())

	empty, err := h.Get(ctx, "missing", 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestAppendPublishesUpdate(t *testing.T) {
	h, env := newPriceHistory(t)
	ctx := context.Background()

	sub := env.client.Subscribe(ctx, store.PriceUpdatesChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	_, err = h.Append(ctx, "9", models.StakeSnapshot{YesPool: dec(3), NoPool: dec(1)})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var update PriceUpdate
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &update))
		assert.Equal(t, "9", update.PredictionID)
		assert.Equal(t, 75, update.Point.YesPrice)
	case <-time.After(2 * time.Second):
		t.Fatal("no price update published")
	}
}
