package registry

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/swipe-markets/backend/internal/chain"
)

var (
	legacyAddr = common.HexToAddress("0x1111111111111111111111111111111111111111")
	usdcAddr   = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func newTestRegistry(t *testing.T, seed ...string) *StaticRegistry {
	t.Helper()
	reg, err := NewStaticRegistry("=legacy,pred_v2_=usdc", map[chain.Version]common.Address{
		chain.VersionLegacy: legacyAddr,
		chain.VersionUSDC:   usdcAddr,
	}, seed)
	require.NoError(t, err)
	return reg
}

func TestResolveRoutesByLongestPrefix(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	route, err := reg.Resolve(ctx, "pred_v2_42")
	require.NoError(t, err)
	assert.Equal(t, chain.VersionUSDC, route.Version)
	assert.Equal(t, usdcAddr, route.Address)
	assert.Equal(t, "42", route.OnchainID.String())

	route, err = reg.Resolve(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, chain.VersionLegacy, route.Version)
	assert.Equal(t, legacyAddr, route.Address)
	assert.Equal(t, "7", route.OnchainID.String())
}

func TestResolveRejectsNonNumericRemainder(t *testing.T) {
	reg := newTestRegistry(t)
	for _, id := range []string{"pred_v2_", "pred_v2_abc", "abc", "-1", "+5", ""} {
		_, err := reg.Resolve(context.Background(), id)
		assert.True(t, errors.Is(err, ErrUnroutable), "id %q", id)
	}
}

func TestResolveWithoutContractIsUnroutable(t *testing.T) {
	reg, err := NewStaticRegistry("pred_v2_=usdc,=legacy", map[chain.Version]common.Address{
		chain.VersionLegacy: legacyAddr,
	}, nil)
	require.NoError(t, err)

	_, err = reg.Resolve(context.Background(), "pred_v2_1")
	assert.ErrorIs(t, err, ErrUnroutable)
}

func TestRegisterOverridesRules(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Register(ctx, Route{PredictionID: "99", Version: chain.VersionUSDC, OnchainID: big.NewInt(3)}))

	route, err := reg.Resolve(ctx, "99")
	require.NoError(t, err)
	assert.Equal(t, chain.VersionUSDC, route.Version)
	assert.Equal(t, usdcAddr, route.Address)
	assert.Equal(t, "3", route.OnchainID.String())
}

func TestRegisterValidates(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	assert.Error(t, reg.Register(ctx, Route{Version: chain.VersionUSDC, OnchainID: big.NewInt(1)}))
	assert.Error(t, reg.Register(ctx, Route{PredictionID: "x", Version: "v9", OnchainID: big.NewInt(1)}))
	assert.Error(t, reg.Register(ctx, Route{PredictionID: "x", Version: chain.VersionUSDC}))
}

func TestListRegisteredSeedsAndRegistrations(t *testing.T) {
	reg := newTestRegistry(t, "1", "pred_v2_2", "bogus", "1")
	ctx := context.Background()
	require.NoError(t, reg.Register(ctx, Route{PredictionID: "custom", Version: chain.VersionLegacy, OnchainID: big.NewInt(8)}))

	routes, err := reg.ListRegistered(ctx)
	require.NoError(t, err)

	ids := make([]string, 0, len(routes))
	for _, r := range routes {
		ids = append(ids, r.PredictionID)
	}
	assert.Equal(t, []string{"1", "pred_v2_2", "custom"}, ids)
}

func TestParseRules(t *testing.T) {
	_, err := parseRules("")
	assert.Error(t, err)

	_, err = parseRules("pred_v2_=usdc,pred_v2_=legacy")
	assert.Error(t, err)

	_, err = parseRules("pred=v3")
	assert.Error(t, err)

	rules, err := parseRules(" =legacy , pred_v2_=USDC ")
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "pred_v2_", rules[0].prefix)
	assert.Equal(t, chain.VersionUSDC, rules[0].version)
}
