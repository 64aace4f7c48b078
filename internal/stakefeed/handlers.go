/**
 * @description
 * Handlers for stake feed events.
 * A stake appends a price point and triggers a sync of the prediction; a
 * resolution or cancellation only triggers the sync. The contract, not the
 * event payload, is the source of truth for pools and resolution.
 *
 * @dependencies
 * - encoding/json
 * - github.com/shopspring/decimal
 */

package stakefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/metrics"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/services"
)

// Event types
const (
	EventTypeStake     = "stake"
	EventTypeResolved  = "resolved"
	EventTypeCancelled = "cancelled"
)

// BaseMessage is used to peek at the event type before full unmarshalling
type BaseMessage struct {
	Type string `json:"type"`
}

// StakeMessage is emitted once per stake transaction. Pools are the totals
// after the stake, in the asset's smallest unit.
type StakeMessage struct {
	Type         string           `json:"type"`
	PredictionID string           `json:"predictionId"`
	YesPool      decimal.Decimal  `json:"yesPool"`
	NoPool       decimal.Decimal  `json:"noPool"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	Side         string           `json:"side"`
	Bettor       string           `json:"bettor"`
	TxHash       string           `json:"txHash,omitempty"`
}

// ResolutionMessage is emitted for resolved and cancelled events.
type ResolutionMessage struct {
	Type         string `json:"type"`
	PredictionID string `json:"predictionId"`
	TxHash       string `json:"txHash,omitempty"`
}

type PriceRecorder interface {
	Append(ctx context.Context, predictionID string, snap models.StakeSnapshot) (*models.PricePoint, error)
}

type Syncer interface {
	SyncOne(ctx context.Context, predictionID string) services.SyncResult
}

// MessageHandler processes feed frames.
type MessageHandler struct {
	prices  PriceRecorder
	syncer  Syncer
	metrics *metrics.Metrics
	log     *logger.Scoped

	// inflight coalesces syncs: an event for an id already syncing only
	// schedules one more pass after the current one.
	mu       sync.Mutex
	inflight map[string]bool
	rerun    map[string]bool
}

func NewMessageHandler(prices PriceRecorder, syncer Syncer, m *metrics.Metrics) *MessageHandler {
	return &MessageHandler{
		prices:   prices,
		syncer:   syncer,
		metrics:  m,
		log:      logger.Named("stakefeed"),
		inflight: make(map[string]bool),
		rerun:    make(map[string]bool),
	}
}

// HandleMessage routes one raw frame. JSON arrays are handled item by item.
func (h *MessageHandler) HandleMessage(ctx context.Context, msg []byte) error {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil
	}

	switch msg[0] {
	case '{', '[':
	default:
		text := strings.ToUpper(string(msg))
		switch text {
		case "PING", "PONG":
			return nil
		default:
			h.log.Warn("ignoring non-JSON frame: %s", text)
			return nil
		}
	}

	if msg[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(msg, &batch); err != nil {
			return fmt.Errorf("failed to parse batched events: %w", err)
		}
		for _, raw := range batch {
			if err := h.HandleMessage(ctx, raw); err != nil {
				h.log.Warn("batch item failed: %v", err)
			}
		}
		return nil
	}

	var base BaseMessage
	if err := json.Unmarshal(msg, &base); err != nil {
		return fmt.Errorf("failed to parse event type: %w", err)
	}

	switch base.Type {
	case EventTypeStake:
		h.metrics.FeedEvent(base.Type)
		return h.handleStake(ctx, msg)
	case EventTypeResolved, EventTypeCancelled:
		h.metrics.FeedEvent(base.Type)
		return h.handleResolution(ctx, msg)
	case "subscribed", "":
		return nil
	default:
		h.metrics.FeedEvent("unknown")
		return nil
	}
}

func (h *MessageHandler) handleStake(ctx context.Context, msg []byte) error {
	var ev StakeMessage
	if err := json.Unmarshal(msg, &ev); err != nil {
		return fmt.Errorf("failed to parse stake: %w", err)
	}
	if strings.TrimSpace(ev.PredictionID) == "" {
		return fmt.Errorf("stake event without predictionId")
	}

	_, err := h.prices.Append(ctx, ev.PredictionID, models.StakeSnapshot{
		YesPool:   ev.YesPool,
		NoPool:    ev.NoPool,
		BetAmount: ev.Amount,
		BetSide:   ev.Side,
		Bettor:    ev.Bettor,
	})
	if err != nil {
		// The sync below still runs; the price series is display-only.
		h.log.Warn("price append failed for %s: %v", ev.PredictionID, err)
	}

	h.sync(ctx, ev.PredictionID)
	return nil
}

func (h *MessageHandler) handleResolution(ctx context.Context, msg []byte) error {
	var ev ResolutionMessage
	if err := json.Unmarshal(msg, &ev); err != nil {
		return fmt.Errorf("failed to parse %s event: %w", ev.Type, err)
	}
	if strings.TrimSpace(ev.PredictionID) == "" {
		return fmt.Errorf("%s event without predictionId", ev.Type)
	}
	h.sync(ctx, ev.PredictionID)
	return nil
}

func (h *MessageHandler) sync(ctx context.Context, predictionID string) {
	h.mu.Lock()
	if h.inflight[predictionID] {
		h.rerun[predictionID] = true
		h.mu.Unlock()
		return
	}
	h.inflight[predictionID] = true
	h.mu.Unlock()

	for {
		res := h.syncer.SyncOne(ctx, predictionID)
		if !res.Success {
			h.log.Warn("sync of %s after feed event failed: %s", predictionID, res.Error)
		}

		h.mu.Lock()
		if !h.rerun[predictionID] || ctx.Err() != nil {
			delete(h.inflight, predictionID)
			delete(h.rerun, predictionID)
			h.mu.Unlock()
			return
		}
		delete(h.rerun, predictionID)
		h.mu.Unlock()
	}
}
