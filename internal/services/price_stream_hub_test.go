package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

func TestPriceStreamHubFiltersByPrediction(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewPriceStreamHub(ctx, env.client, store.PriceUpdatesChannel, nil)
	only7, unsub7 := hub.Subscribe("7")
	defer unsub7()
	all, unsubAll := hub.Subscribe("")
	defer unsubAll()

	// Wait for the hub's subscription before publishing.
	require.Eventually(t, func() bool {
		return env.mr.PubSubNumSub(store.PriceUpdatesChannel)[store.PriceUpdatesChannel] > 0
	}, 2*time.Second, 10*time.Millisecond)

	history := NewPriceHistory(env.kv, nil)
	_, err := history.Append(ctx, "8", models.StakeSnapshot{YesPool: dec(1), NoPool: dec(1)})
	require.NoError(t, err)
	_, err = history.Append(ctx, "7", models.StakeSnapshot{YesPool: dec(1), NoPool: dec(3)})
	require.NoError(t, err)

	select {
	case payload := <-only7:
		assert.Contains(t, string(payload), `"predictionId":"7"`)
	case <-time.After(2 * time.Second):
		t.Fatal("filtered subscriber got nothing")
	}

	got := 0
	timeout := time.After(2 * time.Second)
	for got < 2 {
		select {
		case <-all:
			got++
		case <-timeout:
			t.Fatalf("unfiltered subscriber got %d of 2 updates", got)
		}
	}
}

func TestPriceStreamHubUnsubscribeClosesChannel(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewPriceStreamHub(ctx, env.client, store.PriceUpdatesChannel, nil)
	ch, unsub := hub.Subscribe("1")
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
}

func TestNotifierPendingNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	n := NewNotifier(env.kv)

	require.NoError(t, n.NotifyResolution(ctx, ResolutionNotice{PredictionID: "1", Resolved: true}))
	require.NoError(t, n.NotifyResolution(ctx, ResolutionNotice{PredictionID: "2", Cancelled: true}))

	notices, err := n.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "2", notices[0].PredictionID)
	assert.Equal(t, "1", notices[1].PredictionID)
	assert.NotEqual(t, notices[0].ID, notices[1].ID)
	assert.NotZero(t, notices[0].DetectedAt)
}
