// Package realtime distributes domain events to connected terminals over
// websockets and reconciles the event stream into terminal-side state.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/mvalderrama/electrocaja/internal/events"
)

// SnapshotFunc produces the full current state for a terminal. Sent on every
// connect: reconnecting terminals resync from the snapshot instead of
// replaying missed deltas.
type SnapshotFunc func() (interface{}, error)

// Hub fans the event stream out to websocket terminals.
type Hub struct {
	bus      *events.Bus
	snapshot SnapshotFunc
	log      zerolog.Logger

	mu    sync.Mutex
	conns map[*hubConn]bool
}

type hubConn struct {
	send chan []byte
}

// wireMessage is the envelope terminals receive. Kind is "resync" for the
// connect snapshot and "event" for stream deltas.
type wireMessage struct {
	Kind  string          `json:"kind"`
	Event *events.Event   `json:"event,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
}

// NewHub creates a hub and subscribes it to the full event stream.
func NewHub(bus *events.Bus, snapshot SnapshotFunc, log zerolog.Logger) *Hub {
	h := &Hub{
		bus:      bus,
		snapshot: snapshot,
		log:      log.With().Str("component", "ws_hub").Logger(),
		conns:    make(map[*hubConn]bool),
	}
	bus.SubscribeAll(h.broadcast)
	return h
}

// ConnCount returns the number of connected terminals.
func (h *Hub) ConnCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) broadcast(event *events.Event) {
	payload, err := json.Marshal(&wireMessage{Kind: "event", Event: event})
	if err != nil {
		h.log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to marshal event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		// Non-blocking send: a stalled terminal drops deltas and recovers
		// via resync on its next reconnect.
		select {
		case conn.send <- payload:
		default:
			h.log.Warn().Str("type", string(event.Type)).Msg("Terminal send buffer full, dropping event")
		}
	}
}

// ServeHTTP upgrades the request and streams events until the terminal
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Terminals are same-host or LAN; the auth middleware has already
		// validated the session token.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer ws.Close(websocket.StatusInternalError, "connection closed")

	conn := &hubConn{send: make(chan []byte, 64)}
	h.mu.Lock()
	h.conns[conn] = true
	n := len(h.conns)
	h.mu.Unlock()
	h.log.Info().Int("terminals", n).Msg("Terminal connected")

	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()

	ctx := r.Context()

	if err := h.sendResync(ctx, ws); err != nil {
		h.log.Warn().Err(err).Msg("Failed to send resync snapshot")
		return
	}

	// Reader goroutine: terminals don't send application data, but reading
	// is required to notice close frames.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			h.log.Info().Msg("Terminal disconnected")
			return
		case payload := <-conn.send:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				h.log.Warn().Err(err).Msg("Terminal write failed")
				return
			}
		case <-ping.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := ws.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) sendResync(ctx context.Context, ws *websocket.Conn) error {
	state, err := h.snapshot()
	if err != nil {
		return err
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(&wireMessage{Kind: "resync", State: stateJSON})
	if err != nil {
		return err
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, payload)
}
