/**
 * @description
 * Price history model.
 * One point per stake event, stored as a bounded JSON array under
 * `price-history:<predictionId>`.
 */

package models

import (
	"github.com/shopspring/decimal"
)

// PricePoint is a pool-ratio snapshot. YesPrice + NoPrice is always 100.
type PricePoint struct {
	Timestamp int64            `json:"timestamp"` // unix milliseconds
	YesPrice  int              `json:"yesPrice"`
	NoPrice   int              `json:"noPrice"`
	YesPool   decimal.Decimal  `json:"yesPool"`
	NoPool    decimal.Decimal  `json:"noPool"`
	TotalPool decimal.Decimal  `json:"totalPool"`
	BetAmount *decimal.Decimal `json:"betAmount,omitempty"`
	BetSide   string           `json:"betSide,omitempty"` // "yes" or "no"
	Bettor    string           `json:"bettor,omitempty"`
}

// StakeSnapshot is the input for one price history append.
type StakeSnapshot struct {
	YesPool   decimal.Decimal  `json:"yesPool"`
	NoPool    decimal.Decimal  `json:"noPool"`
	BetAmount *decimal.Decimal `json:"betAmount,omitempty"`
	BetSide   string           `json:"betSide,omitempty"`
	Bettor    string           `json:"bettor,omitempty"`
}
