/**
 * @description
 * Resolution notifications.
 * Queues a notice whenever a sync observes a pool leaving the open state.
 * Delivery (push tokens, webhooks) is handled by a separate consumer that pops
 * `notifications:pending`.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9
 * - github.com/google/uuid
 */

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/logger"
	"github.com/swipe-markets/backend/internal/models"
	"github.com/swipe-markets/backend/internal/store"
)

// maxPendingNotices caps the queue; the oldest notices fall off first.
const maxPendingNotices = 1000

// ResolutionNotice describes one observed resolution or cancellation.
type ResolutionNotice struct {
	ID           uuid.UUID    `json:"id"`
	PredictionID string       `json:"predictionId"`
	Question     string       `json:"question,omitempty"`
	Asset        models.Asset `json:"asset"`
	Resolved     bool         `json:"resolved"`
	Cancelled    bool         `json:"cancelled"`
	Outcome      bool         `json:"outcome"`
	DetectedAt   int64        `json:"detectedAt"`
}

type Notifier struct {
	kv  *store.KV
	now func() time.Time
}

func NewNotifier(kv *store.KV) *Notifier {
	return &Notifier{kv: kv, now: time.Now}
}

// NotifyResolution pushes a notice to the head of the pending queue.
func (n *Notifier) NotifyResolution(ctx context.Context, notice ResolutionNotice) error {
	if notice.ID == uuid.Nil {
		notice.ID = uuid.New()
	}
	if notice.DetectedAt == 0 {
		notice.DetectedAt = n.now().Unix()
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return err
	}

	_, err = n.kv.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, store.NotificationsKey, data)
		pipe.LTrim(ctx, store.NotificationsKey, 0, maxPendingNotices-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to queue resolution notice: %w", err)
	}

	logger.Info("Notifier: queued %s notice for %s (%s)", noticeKind(notice), notice.PredictionID, notice.Asset)
	return nil
}

// Pending returns up to limit queued notices, newest first.
func (n *Notifier) Pending(ctx context.Context, limit int) ([]ResolutionNotice, error) {
	if limit <= 0 || limit > maxPendingNotices {
		limit = 50
	}
	raws, err := n.kv.Client.LRange(ctx, store.NotificationsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]ResolutionNotice, 0, len(raws))
	for _, raw := range raws {
		var notice ResolutionNotice
		if err := store.DecodeJSON([]byte(raw), &notice); err != nil {
			logger.Warn("Notifier: skipping undecodable notice: %v", err)
			continue
		}
		out = append(out, notice)
	}
	return out, nil
}

func noticeKind(n ResolutionNotice) string {
	if n.Cancelled {
		return "cancellation"
	}
	return "resolution"
}
