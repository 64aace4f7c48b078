/**
 * @description
 * Reward claim aggregates and leaderboard.
 * Stored in the `daily-tasks:stats` hash and `daily-tasks:leaderboard` sorted set.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact accumulation of distributed amounts
 */

package models

import (
	"github.com/shopspring/decimal"
)

// ClaimEvent is one reward claim reported by the on-chain event listener.
type ClaimEvent struct {
	Address   string          `json:"address"`
	Amount    decimal.Decimal `json:"amount"`
	Streak    int64           `json:"streak"`
	IsJackpot bool            `json:"isJackpot"`
}

// Stats is the aggregate view returned by the stats surface.
type Stats struct {
	TotalUsers       int64              `json:"totalUsers"`
	TotalClaims      int64              `json:"totalClaims"`
	TotalDistributed decimal.Decimal    `json:"totalDistributed"`
	AvgStreak        decimal.Decimal    `json:"avgStreak"`
	JackpotsHit      int64              `json:"jackpotsHit"`
	Leaderboard      []LeaderboardEntry `json:"leaderboard"`
}

// LeaderboardEntry ranks an address by cumulative claimed amount.
type LeaderboardEntry struct {
	Rank    int             `json:"rank"`
	Address string          `json:"address"`
	Score   decimal.Decimal `json:"score"`
}
