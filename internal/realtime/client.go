package realtime

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/mvalderrama/electrocaja/internal/events"
)

const (
	dialTimeout        = 10 * time.Second
	baseReconnectDelay = 2 * time.Second
	maxReconnectDelay  = 2 * time.Minute
)

// Client is a reconnecting websocket consumer used by headless terminals
// (the customer display, kiosk screens). Every message is fed into the
// reconciler; on each successful connect the server's snapshot replaces the
// local state, so missed deltas never need replaying.
type Client struct {
	url        string
	token      string
	reconciler *Reconciler
	log        zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	stopChan chan struct{}
	stopped  bool
}

// NewClient creates a client for the given hub URL. The session token is
// passed as a query parameter, matching the middleware's websocket fallback.
func NewClient(url, token string, reconciler *Reconciler, log zerolog.Logger) *Client {
	return &Client{
		url:        url,
		token:      token,
		reconciler: reconciler,
		log:        log.With().Str("component", "ws_client").Logger(),
		stopChan:   make(chan struct{}),
	}
}

// Start runs the connect/read/reconnect loop until Stop is called.
func (c *Client) Start() {
	go c.run()
}

// Stop shuts the client down.
func (c *Client) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	conn := c.conn
	c.mu.Unlock()

	close(c.stopChan)
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "shutting down")
	}
	c.reconciler.Stop()
}

func (c *Client) run() {
	attempt := 0
	for {
		select {
		case <-c.stopChan:
			return
		default:
		}

		connected, err := c.connectAndRead()
		if connected {
			// The backoff restarts once a connection was established, so a
			// drop after hours of uptime reconnects quickly instead of
			// inheriting the cap from a bad night.
			attempt = 0
		}
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Connection lost")
		}

		select {
		case <-c.stopChan:
			return
		case <-time.After(reconnectDelay(attempt)):
		}
		attempt++
	}
}

// reconnectDelay backs off exponentially, capped at maxReconnectDelay.
func reconnectDelay(attempt int) time.Duration {
	delay := time.Duration(float64(baseReconnectDelay) * math.Pow(2, float64(attempt)))
	if delay > maxReconnectDelay {
		return maxReconnectDelay
	}
	return delay
}

// connectAndRead reports whether a connection was established at all, so the
// caller can distinguish a failed dial from a dropped session.
func (c *Client) connectAndRead() (bool, error) {
	dialCtx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, c.url+"?token="+c.token, nil)
	cancel()
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.log.Info().Str("url", c.url).Msg("Connected to event hub")

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.Close(websocket.StatusInternalError, "read loop ended")
	}()

	ctx := context.Background()
	for {
		_, payload, err := conn.Read(ctx)
		if err != nil {
			return true, err
		}
		c.handleMessage(payload)
	}
}

func (c *Client) handleMessage(payload []byte) {
	var msg struct {
		Kind  string          `json:"kind"`
		Event json.RawMessage `json:"event"`
		State json.RawMessage `json:"state"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		c.log.Warn().Err(err).Msg("Malformed hub message")
		return
	}

	switch msg.Kind {
	case "resync":
		var state TerminalState
		if err := json.Unmarshal(msg.State, &state); err != nil {
			c.log.Warn().Err(err).Msg("Malformed resync snapshot")
			return
		}
		c.reconciler.Resync(state)

	case "event":
		var ev events.Event
		if err := json.Unmarshal(msg.Event, &ev); err != nil {
			c.log.Warn().Err(err).Msg("Malformed event")
			return
		}
		c.reconciler.Apply(&ev)

	default:
		c.log.Warn().Str("kind", msg.Kind).Msg("Unknown hub message kind")
	}
}
