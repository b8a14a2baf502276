// Package display maintains the customer-facing display state: the last
// sale amount, the exchange rate and a status line. The hardware bridge
// polls a compact msgpack snapshot over HTTP.
package display

import (
	"net/http"
	"sync"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mvalderrama/electrocaja/internal/events"
)

// State is the snapshot the display bridge renders. Encoded with msgpack:
// the bridge runs on a microcontroller-class board and parses the smallest
// payload it can get.
type State struct {
	StatusLine string `msgpack:"status_line" json:"status_line"`
	LastAmount string `msgpack:"last_amount" json:"last_amount"`
	Rate       string `msgpack:"rate" json:"rate"`
	Locked     bool   `msgpack:"locked" json:"locked"`
}

// StateManager handles thread-safe display state updates from the event
// stream.
type StateManager struct {
	log zerolog.Logger
	mu  sync.RWMutex
	st  State
}

// NewStateManager creates a display state manager and subscribes it to the
// events it renders.
func NewStateManager(bus *events.Bus, log zerolog.Logger) *StateManager {
	sm := &StateManager{
		log: log.With().Str("component", "display_state_manager").Logger(),
		st:  State{StatusLine: "ELECTRO CAJA"},
	}

	bus.Subscribe(events.SaleProcessed, sm.onSale)
	bus.Subscribe(events.RateUpdated, sm.onRate)
	bus.Subscribe(events.LockUsers, func(*events.Event) { sm.setLocked(true) })
	bus.Subscribe(events.UnlockUsers, func(*events.Event) { sm.setLocked(false) })
	bus.Subscribe(events.PendingDrawerAutoClosed, func(*events.Event) { sm.setLocked(true) })
	bus.Subscribe(events.SystemUnlocked, func(*events.Event) { sm.setLocked(false) })

	return sm
}

func (sm *StateManager) onSale(ev *events.Event) {
	data, ok := ev.Data.(*events.SaleProcessedData)
	if !ok {
		return
	}
	sm.mu.Lock()
	sm.st.LastAmount = data.Amount
	sm.st.StatusLine = "GRACIAS POR SU COMPRA"
	sm.mu.Unlock()
}

func (sm *StateManager) onRate(ev *events.Event) {
	data, ok := ev.Data.(*events.RateUpdatedData)
	if !ok {
		return
	}
	sm.mu.Lock()
	sm.st.Rate = data.Rate
	sm.mu.Unlock()
}

func (sm *StateManager) setLocked(locked bool) {
	sm.mu.Lock()
	sm.st.Locked = locked
	if locked {
		sm.st.StatusLine = "CAJA CERRADA"
	} else {
		sm.st.StatusLine = "ELECTRO CAJA"
	}
	sm.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (sm *StateManager) Snapshot() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.st
}

// ServeHTTP serves the msgpack snapshot for the display bridge.
func (sm *StateManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := msgpack.Marshal(sm.Snapshot())
	if err != nil {
		sm.log.Error().Err(err).Msg("Failed to encode display state")
		http.Error(w, "encode failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	_, _ = w.Write(payload)
}
