/**
 * @description
 * Prediction market records as cached in Redis under `prediction:<id>`.
 * A record carries two independently resolved pools: the native pool
 * (ETH, plus the optional SWIPE side pool) and the USDC dual-pool.
 *
 * @dependencies
 * - github.com/shopspring/decimal: exact smallest-unit amounts
 *
 * @notes
 * - NativePool and USDCPool are embedded so their fields flatten into the
 *   JSON document that admin tooling already reads.
 * - The two resolution states are allowed to disagree; Compare surfaces it.
 * - The record is shared with the web app and admin tooling. Keys this struct
 *   does not model are kept in Extra and written back unchanged.
 */

package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Prediction is one binary YES/NO market.
type Prediction struct {
	ID          string `json:"id"`
	Question    string `json:"question"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	Creator     string `json:"creator,omitempty"`
	Deadline    int64  `json:"deadline"` // unix seconds, immutable after creation
	CreatedAt   int64  `json:"createdAt,omitempty"`
	OGImageURL  string `json:"ogImageUrl,omitempty"`

	NativePool
	USDCPool

	LastSyncedAt int64 `json:"lastSyncedAt,omitempty"`

	// Extra holds keys written by other services, verbatim.
	Extra map[string]json.RawMessage `json:"-"`
}

type predictionFields Prediction

var modeledPredictionKeys = jsonKeys(reflect.TypeOf(predictionFields{}))

// jsonKeys lists the lower-cased JSON names of t, descending into embedded structs.
func jsonKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("json")
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			for k := range jsonKeys(f.Type) {
				keys[k] = true
			}
			continue
		}
		name, _, _ := strings.Cut(tag, ",")
		if name == "" {
			name = f.Name
		}
		keys[strings.ToLower(name)] = true
	}
	return keys
}

func (p *Prediction) UnmarshalJSON(data []byte) error {
	var fields predictionFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// encoding/json matches keys case-insensitively, so extras must too.
	for k := range raw {
		if modeledPredictionKeys[strings.ToLower(k)] {
			delete(raw, k)
		}
	}
	if len(raw) > 0 {
		fields.Extra = raw
	}
	*p = Prediction(fields)
	return nil
}

func (p Prediction) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(predictionFields(p))
	if err != nil || len(p.Extra) == 0 {
		return data, err
	}
	merged := make(map[string]json.RawMessage, len(p.Extra)+32)
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range p.Extra {
		if modeledPredictionKeys[strings.ToLower(k)] {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}

// NativePool is the ETH pool plus the optional SWIPE pool of the legacy contract.
type NativePool struct {
	YesTotalAmount      decimal.Decimal  `json:"yesTotalAmount"`
	NoTotalAmount       decimal.Decimal  `json:"noTotalAmount"`
	SwipeYesTotalAmount *decimal.Decimal `json:"swipeYesTotalAmount,omitempty"`
	SwipeNoTotalAmount  *decimal.Decimal `json:"swipeNoTotalAmount,omitempty"`
	ParticipantCount    int              `json:"participantCount,omitempty"`
	Resolved            bool             `json:"resolved"`
	Cancelled           bool             `json:"cancelled"`
	Outcome             bool             `json:"outcome"` // meaningful only if Resolved
}

// USDCPool mirrors the USDC dual-pool contract. The chain is authoritative.
type USDCPool struct {
	USDCPoolEnabled      bool            `json:"usdcPoolEnabled"`
	USDCYesTotalAmount   decimal.Decimal `json:"usdcYesTotalAmount"`
	USDCNoTotalAmount    decimal.Decimal `json:"usdcNoTotalAmount"`
	USDCParticipantCount int             `json:"usdcParticipantCount"`
	USDCParticipants     []string        `json:"usdcParticipants,omitempty"` // lower-cased, advisory
	USDCResolved         bool            `json:"usdcResolved"`
	USDCCancelled        bool            `json:"usdcCancelled"`
	USDCOutcome          bool            `json:"usdcOutcome"`
}

// Resolution is the terminal state of one pool.
type Resolution struct {
	Resolved  bool `json:"resolved"`
	Cancelled bool `json:"cancelled"`
	Outcome   bool `json:"outcome"`
}

// Settled reports whether the pool has left the open state.
func (r Resolution) Settled() bool {
	return r.Resolved || r.Cancelled
}

func (p NativePool) Resolution() Resolution {
	return Resolution{Resolved: p.Resolved, Cancelled: p.Cancelled, Outcome: p.Outcome}
}

func (p USDCPool) Resolution() Resolution {
	return Resolution{Resolved: p.USDCResolved, Cancelled: p.USDCCancelled, Outcome: p.USDCOutcome}
}

// ResolutionFor returns the resolution of the pool an asset is staked in.
func (p *Prediction) ResolutionFor(asset Asset) Resolution {
	if asset == AssetUSDC {
		return p.USDCPool.Resolution()
	}
	return p.NativePool.Resolution()
}

// IsActive is the authoritative "active" predicate. Set membership is only a hint.
func (p *Prediction) IsActive(now time.Time) bool {
	return !p.Resolved && !p.Cancelled && p.Deadline > now.Unix()
}

// NormalizeAddress lower-cases and trims an address for use in keys and sets.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
