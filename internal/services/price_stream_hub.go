package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/swipe-markets/backend/internal/metrics"
)

// PriceStreamHub multiplexes the price update channel to many SSE clients without
// spawning a Redis subscription per HTTP request.
type PriceStreamHub struct {
	redis       *redis.Client
	channelName string
	metrics     *metrics.Metrics

	mu          sync.RWMutex
	subscribers map[chan []byte]string // value: prediction id filter, "" for all
}

func NewPriceStreamHub(ctx context.Context, rdb *redis.Client, channel string, m *metrics.Metrics) *PriceStreamHub {
	hub := &PriceStreamHub{
		redis:       rdb,
		channelName: channel,
		metrics:     m,
		subscribers: make(map[chan []byte]string),
	}

	go hub.run(ctx)

	return hub
}

func (h *PriceStreamHub) run(ctx context.Context) {
	for {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		ch := pubsub.Channel(redis.WithChannelSize(4096))

	recv:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				h.broadcast([]byte(msg.Payload))
			}
		}

		_ = pubsub.Close()

		// Avoid tight loop if Redis connection drops
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (h *PriceStreamHub) broadcast(payload []byte) {
	var head struct {
		PredictionID string `json:"predictionId"`
	}
	_ = json.Unmarshal(payload, &head)

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub, filter := range h.subscribers {
		if filter != "" && filter != head.PredictionID {
			continue
		}
		select {
		case sub <- payload:
		default:
			// Subscriber is too slow; drop its oldest message to keep the hub responsive
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a listener for one prediction ("" for every prediction)
// and returns a channel plus cleanup function.
func (h *PriceStreamHub) Subscribe(predictionID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 256)

	h.mu.Lock()
	h.subscribers[ch] = predictionID
	h.mu.Unlock()
	h.metrics.StreamSubscribed(1)

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
			h.metrics.StreamSubscribed(-1)
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}
