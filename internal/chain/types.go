package chain

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/models"
)

// ErrTransientRead wraps RPC and decoding failures of a single contract call.
var ErrTransientRead = errors.New("transient contract read failure")

// Version selects a contract ABI.
type Version string

const (
	VersionLegacy Version = "legacy" // ETH/SWIPE dual-asset pool
	VersionUSDC   Version = "usdc"   // USDC dual-pool
)

func (v Version) Valid() bool {
	return v == VersionLegacy || v == VersionUSDC
}

// PrimaryAsset is the asset whose pool the contract's getPrediction reports.
func (v Version) PrimaryAsset() models.Asset {
	if v == VersionUSDC {
		return models.AssetUSDC
	}
	return models.AssetETH
}

// Target is one prediction on one contract deployment.
type Target struct {
	Version   Version
	Address   common.Address
	OnchainID *big.Int
}

// PredictionState is the normalized getPrediction result of either contract.
type PredictionState struct {
	Registered       bool
	Creator          string
	Deadline         int64
	YesPool          decimal.Decimal
	NoPool           decimal.Decimal
	SwipeYesPool     *decimal.Decimal // legacy only
	SwipeNoPool      *decimal.Decimal // legacy only
	Resolved         bool
	Cancelled        bool
	Outcome          bool
	ParticipantCount int
	Asset            models.Asset
}

// Resolution returns the pool's terminal flags in cache form.
func (s *PredictionState) Resolution() models.Resolution {
	return models.Resolution{Resolved: s.Resolved, Cancelled: s.Cancelled, Outcome: s.Outcome}
}

// ToUnits converts a smallest-unit amount into whole-token units.
func ToUnits(amount decimal.Decimal, asset models.Asset) decimal.Decimal {
	return amount.Shift(-asset.Decimals())
}

// FromUnits converts whole-token units into the asset's smallest unit.
func FromUnits(units decimal.Decimal, asset models.Asset) decimal.Decimal {
	return units.Shift(asset.Decimals()).Truncate(0)
}
