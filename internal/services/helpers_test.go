package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/swipe-markets/backend/internal/chain"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/registry"
	"github.com/swipe-markets/backend/internal/store"
)

var (
	legacyContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdcContract   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	alice          = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	bob            = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	carol          = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
)

// fakeReader serves canned contract state keyed by "<version>/<onchainId>".
type fakeReader struct {
	states          map[string]*chain.PredictionState
	participants    map[string][]common.Address
	participantErrs map[string]error
	positions       map[string]map[models.Asset]models.AssetPosition // "<version>/<id>/<addr>"
	positionErrs    map[common.Address]error
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		states:          map[string]*chain.PredictionState{},
		participants:    map[string][]common.Address{},
		participantErrs: map[string]error{},
		positions:       map[string]map[models.Asset]models.AssetPosition{},
		positionErrs:    map[common.Address]error{},
	}
}

func targetKey(t chain.Target) string {
	return fmt.Sprintf("%s/%s", t.Version, t.OnchainID)
}

func (f *fakeReader) GetPrediction(ctx context.Context, t chain.Target) (*chain.PredictionState, error) {
	s, ok := f.states[targetKey(t)]
	if !ok {
		return &chain.PredictionState{Registered: false, Asset: t.Version.PrimaryAsset()}, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeReader) GetParticipants(ctx context.Context, t chain.Target) ([]common.Address, error) {
	if err := f.participantErrs[targetKey(t)]; err != nil {
		return nil, err
	}
	return f.participants[targetKey(t)], nil
}

func (f *fakeReader) GetPosition(ctx context.Context, t chain.Target, user common.Address) (map[models.Asset]models.AssetPosition, error) {
	if err := f.positionErrs[user]; err != nil {
		return nil, err
	}
	pos, ok := f.positions[fmt.Sprintf("%s/%s", targetKey(t), user.Hex())]
	if !ok {
		return map[models.Asset]models.AssetPosition{}, nil
	}
	return pos, nil
}

func (f *fakeReader) setPosition(version chain.Version, onchainID string, user common.Address, pos map[models.Asset]models.AssetPosition) {
	f.positions[fmt.Sprintf("%s/%s/%s", version, onchainID, user.Hex())] = pos
}

type testEnv struct {
	mr          *miniredis.Miniredis
	client      *redis.Client
	kv          *store.KV
	predictions *store.PredictionStore
	positions   *store.PositionStore
	routes      *registry.StaticRegistry
	reader      *fakeReader
	reconciler  *Reconciler
}

func newTestEnv(t *testing.T, seed ...string) *testEnv {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	routes, err := registry.NewStaticRegistry("pred_v2_=usdc,=legacy", map[chain.Version]common.Address{
		chain.VersionLegacy: legacyContract,
		chain.VersionUSDC:   usdcContract,
	}, seed)
	require.NoError(t, err)

	kv := store.NewKV(client)
	env := &testEnv{
		mr:          mr,
		client:      client,
		kv:          kv,
		predictions: store.NewPredictionStore(kv),
		positions:   store.NewPositionStore(kv),
		routes:      routes,
		reader:      newFakeReader(),
	}
	env.reconciler = NewReconciler(ReconcilerOptions{
		Chain:       env.reader,
		Routes:      routes,
		Predictions: env.predictions,
		Positions:   env.positions,
		Notifier:    NewNotifier(kv),
	})
	return env
}

func (e *testEnv) seedPrediction(t *testing.T, p *models.Prediction) {
	t.Helper()
	if p.Deadline == 0 {
		p.Deadline = time.Now().Add(24 * time.Hour).Unix()
	}
	require.NoError(t, e.predictions.Save(context.Background(), p))
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}
