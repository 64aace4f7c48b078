/**
 * @description
 * WebSocket client for the on-chain stake feed.
 * The indexer pushes one event per stake, resolution and cancellation it
 * observes on the prediction contracts.
 *
 * Key features:
 * - Connects to STAKE_FEED_URL and subscribes to the stake and resolution topics.
 * - Automatic reconnection with exponential backoff.
 * - Keep-alive pings and thread-safe writes.
 *
 * @dependencies
 * - github.com/gorilla/websocket
 * - backend/internal/config
 */

package stakefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/swipe-markets/backend/internal/config"
	"github.com/swipe-markets/backend/internal/logger"
)

const (
	WriteWait         = 10 * time.Second
	PongWait          = 60 * time.Second
	PingPeriod        = (PongWait * 9) / 10
	MaxConnectRetries = 5

	maxFrameSize = 1 << 20
)

// DefaultTopics are subscribed on every (re)connect.
var DefaultTopics = []string{"stakes", "resolutions"}

// Handler consumes raw frames read from the feed.
type Handler interface {
	HandleMessage(ctx context.Context, msg []byte) error
}

type SubscriptionMessage struct {
	Type   string   `json:"type"` // "subscribe"
	Topics []string `json:"topics"`
}

type Client struct {
	url     string
	topics  []string
	dialer  *websocket.Dialer
	handler Handler
	log     *logger.Scoped

	conn *websocket.Conn
	mu   sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	// reconnecting prevents simultaneous reconnection attempts
	reconnecting bool
	reconnectMu  sync.Mutex
}

func NewClient(cfg *config.Config, handler Handler) (*Client, error) {
	url := strings.TrimSpace(cfg.Services.StakeFeedURL)
	if url == "" {
		return nil, errors.New("STAKE_FEED_URL is required")
	}
	return &Client{
		url:     url,
		topics:  DefaultTopics,
		dialer:  websocket.DefaultDialer,
		handler: handler,
		log:     logger.Named("stakefeed"),
		done:    make(chan struct{}),
	}, nil
}

// Connect establishes the connection and starts the read and ping loops.
func (c *Client) Connect(ctx context.Context) error {
	return c.connectWithRetry(ctx)
}

func (c *Client) connectWithRetry(ctx context.Context) error {
	var err error
	backoff := 1 * time.Second

	for i := 0; i < MaxConnectRetries; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("client closed")
		default:
		}

		c.log.Info("Connecting to stake feed: %s (attempt %d)", c.url, i+1)
		var conn *websocket.Conn
		conn, _, err = c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.log.Info("✅ Connected to stake feed")

			if err := c.WriteJSON(SubscriptionMessage{Type: "subscribe", Topics: c.topics}); err != nil {
				c.log.Warn("subscribe failed: %v", err)
			}

			go c.readLoop(ctx, conn)
			go c.pingLoop(ctx, conn)
			return nil
		}

		c.log.Warn("Failed to connect: %v. Retrying in %v...", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("client closed")
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", MaxConnectRetries, err)
}

// WriteJSON sends a JSON message thread-safely.
func (c *Client) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("connection is nil")
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	return c.conn.WriteJSON(v)
}

// Close stops reconnection and closes the connection.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.conn.Close()
			c.conn = nil
		}
		c.mu.Unlock()
		c.reconnect(ctx)
	}()

	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("read error: %v", err)
			}
			return
		}

		// Frames are handled in order; a stake must land before the sync it triggers.
		if err := c.handler.HandleMessage(ctx, message); err != nil {
			c.log.Warn("Error handling message: %v", err)
		}
	}
}

func (c *Client) reconnect(ctx context.Context) {
	select {
	case <-c.done:
		return
	case <-ctx.Done():
		return
	default:
	}

	c.reconnectMu.Lock()
	if c.reconnecting {
		c.reconnectMu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectMu.Unlock()

	c.log.Warn("Connection lost, reconnecting...")
	go func() {
		defer func() {
			c.reconnectMu.Lock()
			c.reconnecting = false
			c.reconnectMu.Unlock()
		}()
		if err := c.connectWithRetry(ctx); err != nil {
			c.log.Error("Reconnection failed: %v", err)
		}
	}()
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.conn != conn {
				c.mu.Unlock()
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(WriteWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
