/**
 * @description
 * Contract read client for the prediction pool contracts on Base.
 * Packs calls with the contract ABI, executes eth_call and normalizes the two
 * contract layouts (legacy ETH/SWIPE pool, USDC dual-pool) into one shape.
 *
 * @dependencies
 * - github.com/ethereum/go-ethereum (ethclient, accounts/abi, common)
 * - github.com/shopspring/decimal
 *
 * @notes
 * - An unregistered id is a normal result (Registered=false), never an error.
 * - Every RPC or decode failure is wrapped in ErrTransientRead so batch callers
 *   can skip the unit and continue.
 */

package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/models"
)

const defaultCallTimeout = 8 * time.Second

// Reader is the read surface the reconciler depends on.
type Reader interface {
	GetPrediction(ctx context.Context, t Target) (*PredictionState, error)
	GetPosition(ctx context.Context, t Target, user common.Address) (map[models.Asset]models.AssetPosition, error)
	GetParticipants(ctx context.Context, t Target) ([]common.Address, error)
}

type Client struct {
	caller  ethereum.ContractCaller
	abis    map[Version]abi.ABI
	timeout time.Duration
	metrics *metrics.Metrics
	closeFn func()
}

// Dial connects to the configured RPC endpoint.
func Dial(cfg *config.Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.Chain.RPCURL)
	if rpcURL == "" {
		return nil, fmt.Errorf("BASE_RPC_URL is required")
	}

	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Base RPC: %w", err)
	}

	c, err := NewClient(ec, cfg.Chain.CallTimeout)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeFn = ec.Close
	logger.Info("✅ Connected to Base RPC")
	return c, nil
}

// NewClient builds a client over any contract caller (ethclient in production).
func NewClient(caller ethereum.ContractCaller, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	abis := make(map[Version]abi.ABI, 2)
	for v, raw := range map[Version]string{VersionLegacy: legacyPoolABI, VersionUSDC: usdcPoolABI} {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s ABI: %w", v, err)
		}
		abis[v] = parsed
	}
	return &Client{caller: caller, abis: abis, timeout: timeout}, nil
}

// WithMetrics records call latency on m.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// Close closes the underlying RPC connection if the client owns one.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

func (c *Client) GetPrediction(ctx context.Context, t Target) (*PredictionState, error) {
	out, err := c.call(ctx, t, "getPrediction", t.OnchainID)
	if err != nil {
		if isRevert(err) {
			return &PredictionState{Registered: false, Asset: t.Version.PrimaryAsset()}, nil
		}
		return nil, err
	}

	switch t.Version {
	case VersionLegacy:
		return decodeLegacyPrediction(out)
	case VersionUSDC:
		return decodeUSDCPrediction(out)
	}
	return nil, fmt.Errorf("unsupported contract version %q", t.Version)
}

func (c *Client) GetPosition(ctx context.Context, t Target, user common.Address) (map[models.Asset]models.AssetPosition, error) {
	method := "getUserStakes"
	if t.Version == VersionUSDC {
		method = "getPosition"
	}
	out, err := c.call(ctx, t, method, t.OnchainID, user)
	if err != nil {
		return nil, err
	}

	if t.Version == VersionUSDC {
		return decodeUSDCPosition(out)
	}
	return decodeLegacyPosition(out)
}

func (c *Client) GetParticipants(ctx context.Context, t Target) ([]common.Address, error) {
	out, err := c.call(ctx, t, "getParticipants", t.OnchainID)
	if err != nil {
		return nil, err
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("%w: getParticipants returned %d values", ErrTransientRead, len(out))
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%w: getParticipants returned %T", ErrTransientRead, out[0])
	}
	return addrs, nil
}

func (c *Client) call(ctx context.Context, t Target, method string, args ...interface{}) ([]interface{}, error) {
	parsed, ok := c.abis[t.Version]
	if !ok {
		return nil, fmt.Errorf("unsupported contract version %q", t.Version)
	}
	if t.OnchainID == nil {
		return nil, fmt.Errorf("missing on-chain id for %s call", method)
	}

	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	to := t.Address
	start := time.Now()
	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	c.metrics.RPCCall(method, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %s(%s) on %s: %w", ErrTransientRead, method, t.OnchainID, t.Address.Hex(), err)
	}

	values, err := parsed.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to unpack %s result: %w", ErrTransientRead, method, err)
	}
	return values, nil
}

func decodeLegacyPrediction(out []interface{}) (*PredictionState, error) {
	d := decoder{values: out}
	creator := d.address(0)
	s := &PredictionState{
		Creator:          strings.ToLower(creator.Hex()),
		Deadline:         d.bigInt(1).Int64(),
		YesPool:          decimal.NewFromBigInt(d.bigInt(2), 0),
		NoPool:           decimal.NewFromBigInt(d.bigInt(3), 0),
		Resolved:         d.boolean(6),
		Cancelled:        d.boolean(7),
		Outcome:          d.boolean(8),
		ParticipantCount: int(d.bigInt(9).Int64()),
		Asset:            models.AssetETH,
	}
	swipeYes := decimal.NewFromBigInt(d.bigInt(4), 0)
	swipeNo := decimal.NewFromBigInt(d.bigInt(5), 0)
	s.SwipeYesPool, s.SwipeNoPool = &swipeYes, &swipeNo
	if d.err != nil {
		return nil, d.err
	}
	// The legacy contract has no explicit flag; an unset creator means no market.
	s.Registered = creator != (common.Address{})
	return s, nil
}

func decodeUSDCPrediction(out []interface{}) (*PredictionState, error) {
	d := decoder{values: out}
	s := &PredictionState{
		Registered:       d.boolean(0),
		Creator:          strings.ToLower(d.address(1).Hex()),
		Deadline:         d.bigInt(2).Int64(),
		YesPool:          decimal.NewFromBigInt(d.bigInt(3), 0),
		NoPool:           decimal.NewFromBigInt(d.bigInt(4), 0),
		Resolved:         d.boolean(5),
		Cancelled:        d.boolean(6),
		Outcome:          d.boolean(7),
		ParticipantCount: int(d.bigInt(8).Int64()),
		Asset:            models.AssetUSDC,
	}
	if d.err != nil {
		return nil, d.err
	}
	return s, nil
}

func decodeLegacyPosition(out []interface{}) (map[models.Asset]models.AssetPosition, error) {
	d := decoder{values: out}
	eth := models.AssetPosition{
		YesAmount: decimal.NewFromBigInt(d.bigInt(0), 0),
		NoAmount:  decimal.NewFromBigInt(d.bigInt(1), 0),
		Claimed:   d.boolean(4),
	}
	swipe := models.AssetPosition{
		YesAmount: decimal.NewFromBigInt(d.bigInt(2), 0),
		NoAmount:  decimal.NewFromBigInt(d.bigInt(3), 0),
		Claimed:   d.boolean(5),
	}
	if d.err != nil {
		return nil, d.err
	}
	return map[models.Asset]models.AssetPosition{
		models.AssetETH:   eth,
		models.AssetSWIPE: swipe,
	}, nil
}

func decodeUSDCPosition(out []interface{}) (map[models.Asset]models.AssetPosition, error) {
	d := decoder{values: out}
	yesEntry := decimal.NewFromBigInt(d.bigInt(2), 0)
	noEntry := decimal.NewFromBigInt(d.bigInt(3), 0)
	pos := models.AssetPosition{
		YesAmount:     decimal.NewFromBigInt(d.bigInt(0), 0),
		NoAmount:      decimal.NewFromBigInt(d.bigInt(1), 0),
		YesEntryPrice: &yesEntry,
		NoEntryPrice:  &noEntry,
		Claimed:       d.boolean(4),
		ExitedEarly:   d.boolean(5),
	}
	if d.err != nil {
		return nil, d.err
	}
	return map[models.Asset]models.AssetPosition{models.AssetUSDC: pos}, nil
}

// decoder pulls typed values out of an Unpack result, recording the first mismatch.
type decoder struct {
	values []interface{}
	err    error
}

func (d *decoder) at(i int) interface{} {
	if i >= len(d.values) {
		d.fail(fmt.Errorf("%w: expected at least %d outputs, got %d", ErrTransientRead, i+1, len(d.values)))
		return nil
	}
	return d.values[i]
}

func (d *decoder) bigInt(i int) *big.Int {
	v, ok := d.at(i).(*big.Int)
	if !ok || v == nil {
		d.fail(fmt.Errorf("%w: output %d is not uint256", ErrTransientRead, i))
		return new(big.Int)
	}
	return v
}

func (d *decoder) boolean(i int) bool {
	v, ok := d.at(i).(bool)
	if !ok {
		d.fail(fmt.Errorf("%w: output %d is not bool", ErrTransientRead, i))
	}
	return v
}

func (d *decoder) address(i int) common.Address {
	v, ok := d.at(i).(common.Address)
	if !ok {
		d.fail(fmt.Errorf("%w: output %d is not address", ErrTransientRead, i))
	}
	return v
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}
