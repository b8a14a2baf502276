package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/events"
)

// TerminalState is the reconciled view a terminal keeps of the shared
// system state. It is replaced wholesale on resync and patched by deltas.
type TerminalState struct {
	Locked         bool     `json:"locked"`
	LockReason     string   `json:"lock_reason,omitempty"`
	DrawerOpen     bool     `json:"drawer_open"`
	DrawerID       string   `json:"drawer_id,omitempty"`
	PendingDrawers int      `json:"pending_drawers"`
	ActiveUsers    []string `json:"active_users"`
	Rate           string   `json:"rate,omitempty"`
}

// Toast is a user-facing notification derived from an event.
type Toast struct {
	Level   string `json:"level"` // info, warning, error
	Message string `json:"message"`
	Event   events.EventType
}

// ReconcilerConfig configures a terminal-side reconciler.
type ReconcilerConfig struct {
	// SelfUser is the session's user name. Events originating from this
	// user update state silently; the actor already saw the result locally.
	SelfUser string
	// DedupeWindow bounds content-based duplicate matching for events that
	// arrive without an id. Defaults to 2s.
	DedupeWindow time.Duration
	// LogoutGrace is the delay between a force-logout arriving and the
	// session actually dropping, so the user can read the notice.
	// Defaults to 3s.
	LogoutGrace time.Duration

	OnToast  func(Toast)
	OnLogout func()
}

// Reconciler applies the event stream to a TerminalState. It deduplicates
// redelivered events, suppresses the actor's own toasts, and keeps lock and
// unlock idempotent so repeated deltas can never double-apply.
type Reconciler struct {
	cfg ReconcilerConfig
	log zerolog.Logger

	mu            sync.Mutex
	state         TerminalState
	seenIDs       map[string]time.Time
	recent        []recentEvent
	logoutPending bool
	logoutTimer   *time.Timer
}

type recentEvent struct {
	key string
	at  time.Time
}

// NewReconciler creates a reconciler with an empty state.
func NewReconciler(cfg ReconcilerConfig, log zerolog.Logger) *Reconciler {
	if cfg.DedupeWindow <= 0 {
		cfg.DedupeWindow = 2 * time.Second
	}
	if cfg.LogoutGrace <= 0 {
		cfg.LogoutGrace = 3 * time.Second
	}
	return &Reconciler{
		cfg:     cfg,
		log:     log.With().Str("component", "reconciler").Logger(),
		seenIDs: make(map[string]time.Time),
	}
}

// State returns a copy of the current terminal state.
func (r *Reconciler) State() TerminalState {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := r.state
	cp.ActiveUsers = append([]string(nil), r.state.ActiveUsers...)
	return cp
}

// Resync replaces the state from a server snapshot and forgets the dedupe
// history: after a reconnect the stream restarts and old ids mean nothing.
func (r *Reconciler) Resync(state TerminalState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
	r.seenIDs = make(map[string]time.Time)
	r.recent = nil
	r.log.Info().Bool("locked", state.Locked).Msg("State resynced from snapshot")
}

// Apply reconciles one event into the terminal state. Duplicate deliveries
// are dropped entirely: neither state nor toasts fire twice.
func (r *Reconciler) Apply(ev *events.Event) {
	if ev == nil || !ev.Type.IsValid() {
		return
	}

	r.mu.Lock()
	if r.isDuplicateLocked(ev) {
		r.mu.Unlock()
		r.log.Debug().Str("type", string(ev.Type)).Str("id", ev.ID).Msg("Dropping duplicate event")
		return
	}

	toast, stateChanged := r.applyLocked(ev)
	r.mu.Unlock()

	if !stateChanged && toast == nil {
		return
	}

	// Self-origin events change state silently. Force-logout is the
	// exception: the admin's own terminal logs out too, notice included.
	if toast != nil && ev.Type != events.ForceLogout && ev.OriginUser != "" && ev.OriginUser == r.cfg.SelfUser {
		return
	}
	if toast != nil && r.cfg.OnToast != nil {
		r.cfg.OnToast(*toast)
	}
}

// isDuplicateLocked records the event and reports whether it was already
// seen. Events carry unique ids; if one is missing, an identical payload of
// the same type inside the dedupe window counts as the same event.
func (r *Reconciler) isDuplicateLocked(ev *events.Event) bool {
	now := time.Now()
	r.pruneLocked(now)

	if ev.ID != "" {
		if _, seen := r.seenIDs[ev.ID]; seen {
			return true
		}
		r.seenIDs[ev.ID] = now
		return false
	}

	key := contentKey(ev)
	for _, rec := range r.recent {
		if rec.key == key && now.Sub(rec.at) <= r.cfg.DedupeWindow {
			return true
		}
	}
	r.recent = append(r.recent, recentEvent{key: key, at: now})
	return false
}

func (r *Reconciler) pruneLocked(now time.Time) {
	horizon := 10 * r.cfg.DedupeWindow
	for id, at := range r.seenIDs {
		if now.Sub(at) > horizon {
			delete(r.seenIDs, id)
		}
	}
	kept := r.recent[:0]
	for _, rec := range r.recent {
		if now.Sub(rec.at) <= r.cfg.DedupeWindow {
			kept = append(kept, rec)
		}
	}
	r.recent = kept
}

func contentKey(ev *events.Event) string {
	data, _ := json.Marshal(ev.Data)
	return string(ev.Type) + "|" + string(data)
}

// applyLocked patches the state for one event and builds its toast.
// Returns a nil toast for silent updates and stateChanged=false for no-ops.
func (r *Reconciler) applyLocked(ev *events.Event) (*Toast, bool) {
	switch ev.Type {
	case events.DrawerOpened:
		data, _ := ev.Data.(*events.DrawerOpenedData)
		r.state.DrawerOpen = true
		if data != nil {
			r.state.DrawerID = data.DrawerID
		}
		return &Toast{Level: "info", Message: fmt.Sprintf("Drawer opened by %s", ev.OriginUser), Event: ev.Type}, true

	case events.DrawerClosed:
		r.state.DrawerOpen = false
		r.state.DrawerID = ""
		return &Toast{Level: "info", Message: fmt.Sprintf("Drawer closed by %s", ev.OriginUser), Event: ev.Type}, true

	case events.TransactionAdded:
		return &Toast{Level: "info", Message: "Transaction recorded", Event: ev.Type}, true

	case events.TransactionRemoved:
		return &Toast{Level: "warning", Message: "Transaction removed", Event: ev.Type}, true

	case events.SaleProcessed:
		return &Toast{Level: "info", Message: "Sale processed", Event: ev.Type}, true

	case events.StockReserved, events.StockReleased:
		// Stock deltas refresh inventory views silently.
		return nil, true

	case events.UsersUpdated:
		if data, ok := ev.Data.(*events.UsersUpdatedData); ok {
			r.state.ActiveUsers = append([]string(nil), data.ActiveUsers...)
		}
		return nil, true

	case events.LockUsers:
		reason := r.state.LockReason
		if data, ok := ev.Data.(*events.LockUsersData); ok {
			reason = data.Reason
		}
		// Idempotent on the flag: a second lock while locked never
		// re-toasts, but a new reason still lands so the banner is right.
		if r.state.Locked {
			if reason == r.state.LockReason {
				return nil, false
			}
			r.state.LockReason = reason
			return nil, true
		}
		r.state.Locked = true
		r.state.LockReason = reason
		return &Toast{Level: "warning", Message: "Terminals locked for cash count", Event: ev.Type}, true

	case events.UnlockUsers:
		if !r.state.Locked {
			return nil, false
		}
		r.state.Locked = false
		r.state.LockReason = ""
		return &Toast{Level: "info", Message: "Terminals unlocked", Event: ev.Type}, true

	case events.ForceLogout:
		msg := "Session terminated by administrator"
		if data, ok := ev.Data.(*events.ForceLogoutData); ok && data.Message != "" {
			msg = data.Message
		}
		r.scheduleLogoutLocked()
		return &Toast{Level: "error", Message: msg, Event: ev.Type}, true

	case events.RateUpdated:
		if data, ok := ev.Data.(*events.RateUpdatedData); ok {
			r.state.Rate = data.Rate
		}
		return &Toast{Level: "info", Message: "Exchange rate updated", Event: ev.Type}, true

	case events.PendingDrawerAutoClosed:
		if data, ok := ev.Data.(*events.PendingDrawerAutoClosedData); ok {
			r.state.PendingDrawers = len(data.Drawers)
		}
		if !r.state.Locked {
			r.state.Locked = true
			r.state.LockReason = "pending-physical-close"
		}
		return &Toast{Level: "warning", Message: "Drawers auto-closed at end of day, physical count required", Event: ev.Type}, true

	case events.PendingDrawerResolved:
		if data, ok := ev.Data.(*events.PendingDrawerResolvedData); ok {
			r.state.PendingDrawers = data.Remaining
		} else if r.state.PendingDrawers > 0 {
			r.state.PendingDrawers--
		}
		return &Toast{Level: "info", Message: "Pending drawer resolved", Event: ev.Type}, true

	case events.SystemUnlocked:
		if !r.state.Locked && r.state.PendingDrawers == 0 {
			return nil, false
		}
		r.state.Locked = false
		r.state.LockReason = ""
		r.state.PendingDrawers = 0
		return &Toast{Level: "info", Message: "System unlocked", Event: ev.Type}, true
	}

	return nil, false
}

// scheduleLogoutLocked arms the grace-period logout once. Repeated
// force-logout events while the timer runs do not reset it.
func (r *Reconciler) scheduleLogoutLocked() {
	if r.logoutPending {
		return
	}
	r.logoutPending = true
	r.logoutTimer = time.AfterFunc(r.cfg.LogoutGrace, func() {
		r.mu.Lock()
		r.logoutPending = false
		r.mu.Unlock()
		if r.cfg.OnLogout != nil {
			r.cfg.OnLogout()
		}
	})
}

// Stop cancels any pending logout timer.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logoutTimer != nil {
		r.logoutTimer.Stop()
		r.logoutPending = false
	}
}
