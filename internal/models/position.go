package models

import (
	"github.com/shopspring/decimal"
)

// Asset identifies the token a stake was made in.
type Asset string

const (
	AssetETH   Asset = "ETH"
	AssetSWIPE Asset = "SWIPE"
	AssetUSDC  Asset = "USDC"
)

// Assets lists every supported asset in storage order.
var Assets = []Asset{AssetETH, AssetSWIPE, AssetUSDC}

// Decimals is the on-chain precision of the asset's smallest unit.
func (a Asset) Decimals() int32 {
	if a == AssetUSDC {
		return 6
	}
	return 18
}

// Valid reports whether a is a supported asset.
func (a Asset) Valid() bool {
	switch a {
	case AssetETH, AssetSWIPE, AssetUSDC:
		return true
	}
	return false
}

// AssetPosition is one asset's stake in one prediction.
type AssetPosition struct {
	YesAmount     decimal.Decimal  `json:"yesAmount"`
	NoAmount      decimal.Decimal  `json:"noAmount"`
	Claimed       bool             `json:"claimed"`
	EntryPrice    *decimal.Decimal `json:"entryPrice,omitempty"`
	YesEntryPrice *decimal.Decimal `json:"yesEntryPrice,omitempty"`
	NoEntryPrice  *decimal.Decimal `json:"noEntryPrice,omitempty"`
	ExitedEarly   bool             `json:"exitedEarly,omitempty"` // USDC pool only
	UpdatedAt     int64            `json:"updatedAt,omitempty"`
}

// IsZero reports a position with no stake on either side.
func (a AssetPosition) IsZero() bool {
	return a.YesAmount.IsZero() && a.NoAmount.IsZero()
}

// IsWinner is derived, never stored.
func (a AssetPosition) IsWinner(r Resolution) bool {
	if !r.Resolved || r.Cancelled {
		return false
	}
	if r.Outcome {
		return a.YesAmount.IsPositive()
	}
	return a.NoAmount.IsPositive()
}

// UserPosition groups a user's per-asset stakes in one prediction.
type UserPosition struct {
	User         string                  `json:"user"`
	PredictionID string                  `json:"predictionId"`
	Assets       map[Asset]AssetPosition `json:"assets"`
}

// Exists is false for the empty sentinel returned when a user has no stake.
func (u *UserPosition) Exists() bool {
	return u != nil && len(u.Assets) > 0
}
