package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

func usdcState(yes, no int64, participants int) *chain.PredictionState {
	return &chain.PredictionState{
		Registered:       true,
		Creator:          strings.ToLower(alice.Hex()),
		YesPool:          dec(yes),
		NoPool:           dec(no),
		ParticipantCount: participants,
		Asset:            models.AssetUSDC,
	}
}

func legacyState(yes, no int64, participants int) *chain.PredictionState {
	return &chain.PredictionState{
		Registered:       true,
		Creator:          strings.ToLower(alice.Hex()),
		YesPool:          dec(yes),
		NoPool:           dec(no),
		SwipeYesPool:     decPtr(0),
		SwipeNoPool:      decPtr(0),
		ParticipantCount: participants,
		Asset:            models.AssetETH,
	}
}

func TestSyncOneNotRegisteredIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPrediction(t, &models.Prediction{ID: "pred_v2_9", Question: "Will it rain?"})

	before, err := env.mr.Get(store.PredictionKey("pred_v2_9"))
	require.NoError(t, err)
	keysBefore := env.mr.Keys()

	res := env.reconciler.SyncOne(ctx, "pred_v2_9")
	assert.True(t, res.Success)
	assert.False(t, res.Registered)
	assert.Equal(t, StatusNotRegistered, res.Status)

	after, err := env.mr.Get(store.PredictionKey("pred_v2_9"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, keysBefore, env.mr.Keys())

	// An id with no cached record must not get one.
	res = env.reconciler.SyncOne(ctx, "pred_v2_10")
	assert.Equal(t, StatusNotRegistered, res.Status)
	assert.False(t, env.mr.Exists(store.PredictionKey("pred_v2_10")))
}

func TestSyncOneUSDCPreservesNativeFieldsAndMetadata(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	original := &models.Prediction{
		ID:          "pred_v2_4",
		Question:    "Will ETH close above 5k?",
		Category:    "crypto",
		Description: "Resolves on the daily close",
		ImageURL:    "https://img.example/eth.png",
		NativePool: models.NativePool{
			YesTotalAmount: dec(7),
			NoTotalAmount:  dec(3),
			Resolved:       true,
			Outcome:        true,
		},
	}
	env.seedPrediction(t, original)

	env.reader.states["usdc/4"] = usdcState(3_000_000, 1_000_000, 2)
	env.reader.participants["usdc/4"] = []common.Address{alice, bob}
	env.reader.setPosition(chain.VersionUSDC, "4", alice, map[models.Asset]models.AssetPosition{
		models.AssetUSDC: {YesAmount: dec(3_000_000)},
	})
	env.reader.setPosition(chain.VersionUSDC, "4", bob, map[models.Asset]models.AssetPosition{
		models.AssetUSDC: {},
	})

	res := env.reconciler.SyncOne(ctx, "pred_v2_4")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, StatusSynced, res.Status)
	assert.True(t, res.Registered)
	assert.Equal(t, "3000000", res.YesPool.String())
	assert.Equal(t, 2, *res.ParticipantCount)
	assert.Equal(t, 1, res.PositionsUpdated)

	got, err := env.predictions.Get(ctx, "pred_v2_4")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, original.Question, got.Question)
	assert.Equal(t, original.Category, got.Category)
	assert.Equal(t, original.Description, got.Description)
	assert.Equal(t, original.ImageURL, got.ImageURL)
	assert.Equal(t, original.Deadline, got.Deadline)
	assert.True(t, got.Resolved)
	assert.True(t, got.Outcome)
	assert.False(t, got.Cancelled)
	assert.True(t, got.YesTotalAmount.Equal(dec(7)))

	assert.True(t, got.USDCPoolEnabled)
	assert.True(t, got.USDCYesTotalAmount.Equal(dec(3_000_000)))
	assert.True(t, got.USDCNoTotalAmount.Equal(dec(1_000_000)))
	assert.Equal(t, 2, got.USDCParticipantCount)
	assert.Equal(t, []string{strings.ToLower(alice.Hex()), strings.ToLower(bob.Hex())}, got.USDCParticipants)
	assert.False(t, got.USDCResolved)
	assert.NotZero(t, got.LastSyncedAt)

	alicePos, err := env.positions.Get(ctx, alice.Hex(), "pred_v2_4")
	require.NoError(t, err)
	assert.True(t, alicePos.Assets[models.AssetUSDC].YesAmount.Equal(dec(3_000_000)))

	bobPos, err := env.positions.Get(ctx, bob.Hex(), "pred_v2_4")
	require.NoError(t, err)
	assert.False(t, bobPos.Exists(), "zero positions are not written")
}

func TestSyncOneKeepsFieldsWrittenByOtherServices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	deadline := time.Now().Add(time.Hour).Unix()
	raw := fmt.Sprintf(`{"id":"pred_v2_4","question":"Q?","deadline":%d,"yesTotalAmount":"7","noTotalAmount":"3",`+
		`"status":"active","totalStakes":12,"participants":["0xaa"],"verified":true,"meta":{"pinned":1}}`, deadline)
	require.NoError(t, env.mr.Set(store.PredictionKey("pred_v2_4"), raw))

	env.reader.states["usdc/4"] = usdcState(3_000_000, 1_000_000, 0)

	res := env.reconciler.SyncOne(ctx, "pred_v2_4")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, StatusSynced, res.Status)

	stored, err := env.mr.Get(store.PredictionKey("pred_v2_4"))
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(stored), &doc))

	assert.JSONEq(t, `"active"`, string(doc["status"]))
	assert.JSONEq(t, `12`, string(doc["totalStakes"]))
	assert.JSONEq(t, `["0xaa"]`, string(doc["participants"]))
	assert.JSONEq(t, `true`, string(doc["verified"]))
	assert.JSONEq(t, `{"pinned":1}`, string(doc["meta"]))
	assert.JSONEq(t, `"3000000"`, string(doc["usdcYesTotalAmount"]))
	assert.JSONEq(t, `"7"`, string(doc["yesTotalAmount"]))
}

func TestSyncOneLegacyKeepsOtherAssets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPrediction(t, &models.Prediction{ID: "5", Question: "q"})

	// A USDC sub-record written earlier must survive a legacy sync.
	require.NoError(t, env.positions.Upsert(ctx, alice.Hex(), "5", models.AssetUSDC, models.AssetPosition{NoAmount: dec(10)}))

	env.reader.states["legacy/5"] = legacyState(100, 50, 1)
	env.reader.participants["legacy/5"] = []common.Address{alice}
	env.reader.setPosition(chain.VersionLegacy, "5", alice, map[models.Asset]models.AssetPosition{
		models.AssetETH:   {YesAmount: dec(100)},
		models.AssetSWIPE: {},
	})

	res := env.reconciler.SyncOne(ctx, "5")
	require.True(t, res.Success, res.Error)

	pos, err := env.positions.Get(ctx, alice.Hex(), "5")
	require.NoError(t, err)
	assert.Len(t, pos.Assets, 2)
	assert.True(t, pos.Assets[models.AssetETH].YesAmount.Equal(dec(100)))
	assert.True(t, pos.Assets[models.AssetUSDC].NoAmount.Equal(dec(10)))

	got, err := env.predictions.Get(ctx, "5")
	require.NoError(t, err)
	assert.True(t, got.YesTotalAmount.Equal(dec(100)))
	assert.False(t, got.USDCPoolEnabled)
}

func TestSyncOneMissingRecordFails(t *testing.T) {
	env := newTestEnv(t)
	env.reader.states["usdc/8"] = usdcState(1, 1, 0)

	res := env.reconciler.SyncOne(context.Background(), "pred_v2_8")
	assert.False(t, res.Success)
	assert.True(t, res.Registered)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Contains(t, res.Error, ErrRecordMissingLocally.Error())
	assert.False(t, env.mr.Exists(store.PredictionKey("pred_v2_8")))
}

func TestSyncOneUnroutable(t *testing.T) {
	env := newTestEnv(t)
	res := env.reconciler.SyncOne(context.Background(), "not-a-market")
	assert.False(t, res.Success)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestSyncOneCapsParticipants(t *testing.T) {
	env := newTestEnv(t)
	env.reconciler.maxParticipants = 2
	env.seedPrediction(t, &models.Prediction{ID: "pred_v2_1", Question: "q"})

	env.reader.states["usdc/1"] = usdcState(30, 0, 3)
	env.reader.participants["usdc/1"] = []common.Address{alice, bob, carol}
	for _, addr := range []common.Address{alice, bob, carol} {
		env.reader.setPosition(chain.VersionUSDC, "1", addr, map[models.Asset]models.AssetPosition{
			models.AssetUSDC: {YesAmount: dec(10)},
		})
	}

	res := env.reconciler.SyncOne(context.Background(), "pred_v2_1")
	require.True(t, res.Success)
	assert.Equal(t, 2, res.PositionsUpdated)
	assert.Equal(t, 1, res.ParticipantsDeferred)

	users, err := env.positions.Users(context.Background(), "pred_v2_1")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestSyncOnePartialWhenPositionReadsFail(t *testing.T) {
	env := newTestEnv(t)
	env.seedPrediction(t, &models.Prediction{ID: "pred_v2_2", Question: "q"})

	env.reader.states["usdc/2"] = usdcState(20, 0, 2)
	env.reader.participants["usdc/2"] = []common.Address{alice, bob}
	env.reader.positionErrs[alice] = chain.ErrTransientRead
	env.reader.setPosition(chain.VersionUSDC, "2", bob, map[models.Asset]models.AssetPosition{
		models.AssetUSDC: {YesAmount: dec(20)},
	})

	res := env.reconciler.SyncOne(context.Background(), "pred_v2_2")
	assert.True(t, res.Success)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Equal(t, 1, res.PositionsFailed)
	assert.Equal(t, 1, res.PositionsUpdated)

	got, err := env.predictions.Get(context.Background(), "pred_v2_2")
	require.NoError(t, err)
	assert.True(t, got.USDCYesTotalAmount.Equal(dec(20)))
}

func TestSyncManyIsolatesFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPrediction(t, &models.Prediction{ID: "1", Question: "a"})
	env.seedPrediction(t, &models.Prediction{ID: "2", Question: "b"})

	env.reader.states["legacy/1"] = legacyState(5, 5, 0)
	env.reader.states["legacy/2"] = legacyState(9, 9, 4)
	env.reader.participantErrs["legacy/2"] = errors.New("rpc timeout")

	bBefore, err := env.mr.Get(store.PredictionKey("2"))
	require.NoError(t, err)

	batch := env.reconciler.SyncMany(ctx, []string{"1", "2", "pred_v2_3"}, "test")
	require.Len(t, batch.Results, 3)
	assert.Equal(t, 3, batch.Total)

	assert.Equal(t, StatusSynced, batch.Results["1"].Status)
	assert.True(t, batch.Results["1"].Success)

	assert.Equal(t, StatusFailed, batch.Results["2"].Status)
	assert.False(t, batch.Results["2"].Success)
	assert.True(t, batch.Results["2"].Registered)

	assert.Equal(t, StatusNotRegistered, batch.Results["pred_v2_3"].Status)

	assert.Equal(t, 1, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 1, batch.NotRegistered)

	bAfter, err := env.mr.Get(store.PredictionKey("2"))
	require.NoError(t, err)
	assert.Equal(t, bBefore, bAfter)
}

func TestSyncManyStopsOnCancelledContext(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := env.reconciler.SyncMany(ctx, []string{"1", "2"}, "test")
	assert.Equal(t, 2, batch.Failed)
}

func TestSyncAllKnownUsesRegistry(t *testing.T) {
	env := newTestEnv(t, "1", "pred_v2_7")
	env.seedPrediction(t, &models.Prediction{ID: "1", Question: "a"})
	env.reader.states["legacy/1"] = legacyState(1, 2, 0)

	batch, err := env.reconciler.SyncAllKnown(context.Background(), "test")
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, StatusSynced, batch.Results["1"].Status)
	assert.Equal(t, StatusNotRegistered, batch.Results["pred_v2_7"].Status)
}

func TestSyncOneQueuesResolutionNoticeOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPrediction(t, &models.Prediction{ID: "6", Question: "Will it ship?"})

	state := legacyState(10, 0, 0)
	state.Resolved = true
	state.Outcome = true
	env.reader.states["legacy/6"] = state

	require.True(t, env.reconciler.SyncOne(ctx, "6").Success)
	require.True(t, env.reconciler.SyncOne(ctx, "6").Success)

	notices, err := NewNotifier(env.kv).Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "6", notices[0].PredictionID)
	assert.True(t, notices[0].Resolved)
	assert.Equal(t, models.AssetETH, notices[0].Asset)

	got, err := env.predictions.Get(ctx, "6")
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	active, err := env.mr.IsMember(store.ActivePredictionsKey, "6")
	require.NoError(t, err)
	assert.False(t, active, "resolved predictions leave the active set")
}

func TestCompareDetectsDrift(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedPrediction(t, &models.Prediction{ID: "pred_v2_5", Question: "q"})

	state := usdcState(10, 20, 0)
	state.Resolved = true
	env.reader.states["usdc/5"] = state

	report, err := env.reconciler.Compare(ctx, "pred_v2_5")
	require.NoError(t, err)
	assert.True(t, report.Registered)
	assert.True(t, report.NeedsSync)
	assert.False(t, report.ResolvedMatch)
	assert.False(t, report.PoolMatch)
	assert.True(t, report.CrossPoolDivergence)

	require.True(t, env.reconciler.SyncOne(ctx, "pred_v2_5").Success)

	report, err = env.reconciler.Compare(ctx, "pred_v2_5")
	require.NoError(t, err)
	assert.False(t, report.NeedsSync)
	assert.True(t, report.ResolvedMatch)
	assert.True(t, report.OutcomeMatch)
	assert.True(t, report.PoolMatch)
	assert.True(t, report.CrossPoolDivergence, "native pool is still open")
}

func TestCompareMissingLocallyAndUnregistered(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.reader.states["legacy/3"] = legacyState(1, 1, 0)

	report, err := env.reconciler.Compare(ctx, "3")
	require.NoError(t, err)
	assert.True(t, report.MissingLocally)
	assert.False(t, report.NeedsSync)

	report, err = env.reconciler.Compare(ctx, "4")
	require.NoError(t, err)
	assert.False(t, report.Registered)
	assert.False(t, report.NeedsSync)
}

func TestCheckDriftSyncsOnlyDrifted(t *testing.T) {
	env := newTestEnv(t, "pred_v2_1", "pred_v2_2")
	ctx := context.Background()

	env.seedPrediction(t, &models.Prediction{ID: "pred_v2_1", Question: "clean", USDCPool: models.USDCPool{
		USDCPoolEnabled:    true,
		USDCYesTotalAmount: dec(10),
		USDCNoTotalAmount:  dec(10),
	}})
	env.seedPrediction(t, &models.Prediction{ID: "pred_v2_2", Question: "stale"})
	env.reader.states["usdc/1"] = usdcState(10, 10, 0)
	env.reader.states["usdc/2"] = usdcState(40, 10, 0)

	cleanBefore, err := env.mr.Get(store.PredictionKey("pred_v2_1"))
	require.NoError(t, err)

	summary, err := env.reconciler.CheckDrift(ctx)
	require.NoError(t, err)
	assert.Equal(t, DriftSummary{Checked: 2, Drifted: 1, Synced: 1}, summary)

	cleanAfter, err := env.mr.Get(store.PredictionKey("pred_v2_1"))
	require.NoError(t, err)
	assert.Equal(t, cleanBefore, cleanAfter)

	stale, err := env.predictions.Get(ctx, "pred_v2_2")
	require.NoError(t, err)
	assert.True(t, stale.USDCYesTotalAmount.Equal(dec(40)))
}
