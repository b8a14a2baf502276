package realtime

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvalderrama/electrocaja/internal/events"
)

type reconcilerHarness struct {
	rec     *Reconciler
	toasts  []Toast
	logouts int
}

func newHarness(selfUser string, grace time.Duration) *reconcilerHarness {
	h := &reconcilerHarness{}
	h.rec = NewReconciler(ReconcilerConfig{
		SelfUser:    selfUser,
		LogoutGrace: grace,
		OnToast:     func(t Toast) { h.toasts = append(h.toasts, t) },
		OnLogout:    func() { h.logouts++ },
	}, zerolog.Nop())
	return h
}

func TestSelfOriginSuppressesToastButAppliesState(t *testing.T) {
	h := newHarness("maria", time.Second)

	h.rec.Apply(events.New(events.DrawerOpened, "maria", &events.DrawerOpenedData{DrawerID: "d-1"}))

	assert.True(t, h.rec.State().DrawerOpen, "state applies even for own events")
	assert.Empty(t, h.toasts, "no toast for the actor's own event")

	// The same event from another terminal's user does toast.
	h.rec.Apply(events.New(events.DrawerClosed, "pedro", &events.DrawerClosedData{DrawerID: "d-1"}))
	require.Len(t, h.toasts, 1)
	assert.Equal(t, events.DrawerClosed, h.toasts[0].Event)
	assert.False(t, h.rec.State().DrawerOpen)
}

func TestForceLogoutNeverSuppressed(t *testing.T) {
	h := newHarness("admin", 20*time.Millisecond)

	// Even when the admin themselves triggered it.
	h.rec.Apply(events.New(events.ForceLogout, "admin", &events.ForceLogoutData{
		Message:   "maintenance",
		AdminUser: "admin",
	}))

	require.Len(t, h.toasts, 1)
	assert.Equal(t, "maintenance", h.toasts[0].Message)

	// Logout fires after the grace period, not immediately.
	assert.Zero(t, h.logouts)
	require.Eventually(t, func() bool { return h.logouts == 1 }, time.Second, 5*time.Millisecond)
}

func TestForceLogoutGraceNotRestartedByDuplicates(t *testing.T) {
	h := newHarness("cashier", 30*time.Millisecond)

	h.rec.Apply(events.New(events.ForceLogout, "admin", &events.ForceLogoutData{}))
	time.Sleep(15 * time.Millisecond)
	h.rec.Apply(events.New(events.ForceLogout, "admin", &events.ForceLogoutData{}))

	require.Eventually(t, func() bool { return h.logouts >= 1 }, time.Second, 5*time.Millisecond)
	// A second distinct force-logout toasts again but only one logout runs
	// per armed timer.
	assert.Equal(t, 1, h.logouts)
}

func TestLockUnlockIdempotent(t *testing.T) {
	h := newHarness("pedro", time.Second)

	h.rec.Apply(events.New(events.LockUsers, "maria", &events.LockUsersData{Reason: "cash-count"}))
	assert.True(t, h.rec.State().Locked)
	require.Len(t, h.toasts, 1)

	// A second lock while locked is a no-op: no toast, no state change.
	h.rec.Apply(events.New(events.LockUsers, "maria", &events.LockUsersData{Reason: "cash-count"}))
	assert.Len(t, h.toasts, 1)
	assert.True(t, h.rec.State().Locked)

	h.rec.Apply(events.New(events.UnlockUsers, "maria", &events.UnlockUsersData{}))
	assert.False(t, h.rec.State().Locked)
	assert.Len(t, h.toasts, 2)

	// Unlock when already unlocked is equally silent.
	h.rec.Apply(events.New(events.UnlockUsers, "maria", &events.UnlockUsersData{}))
	assert.Len(t, h.toasts, 2)
}

func TestLockWhileLockedUpdatesReason(t *testing.T) {
	h := newHarness("pedro", time.Second)

	h.rec.Apply(events.New(events.LockUsers, "maria", &events.LockUsersData{Reason: "cash-count"}))
	require.Len(t, h.toasts, 1)
	assert.Equal(t, "cash-count", h.rec.State().LockReason)

	// A lock for a different cause while already locked keeps the banner
	// accurate without toasting twice.
	h.rec.Apply(events.New(events.LockUsers, "admin", &events.LockUsersData{Reason: "pending-physical-close"}))
	assert.Len(t, h.toasts, 1)
	assert.True(t, h.rec.State().Locked)
	assert.Equal(t, "pending-physical-close", h.rec.State().LockReason)
}

func TestDedupeByEventID(t *testing.T) {
	h := newHarness("pedro", time.Second)

	ev := events.New(events.TransactionAdded, "maria", &events.TransactionAddedData{
		TransactionID: "tx-1",
		Amount:        "10.00",
	})

	h.rec.Apply(ev)
	h.rec.Apply(ev) // redelivery
	h.rec.Apply(ev)

	assert.Len(t, h.toasts, 1, "redelivered event must not toast again")
}

func TestDedupeByContentWithinWindow(t *testing.T) {
	h := newHarness("pedro", time.Second)

	// Events without ids fall back to content matching.
	mk := func() *events.Event {
		ev := events.New(events.RateUpdated, "maria", &events.RateUpdatedData{Rate: "36.50"})
		ev.ID = ""
		return ev
	}

	h.rec.Apply(mk())
	h.rec.Apply(mk())
	assert.Len(t, h.toasts, 1)

	// Different content inside the window is a distinct event.
	ev := events.New(events.RateUpdated, "maria", &events.RateUpdatedData{Rate: "37.00"})
	ev.ID = ""
	h.rec.Apply(ev)
	assert.Len(t, h.toasts, 2)
	assert.Equal(t, "37.00", h.rec.State().Rate)
}

func TestResyncReplacesStateAndClearsDedupe(t *testing.T) {
	h := newHarness("pedro", time.Second)

	ev := events.New(events.LockUsers, "maria", &events.LockUsersData{Reason: "cash-count"})
	h.rec.Apply(ev)
	require.True(t, h.rec.State().Locked)

	h.rec.Resync(TerminalState{
		Locked:      false,
		DrawerOpen:  true,
		DrawerID:    "d-9",
		ActiveUsers: []string{"maria", "pedro"},
	})

	state := h.rec.State()
	assert.False(t, state.Locked)
	assert.Equal(t, "d-9", state.DrawerID)
	assert.Equal(t, []string{"maria", "pedro"}, state.ActiveUsers)

	// After resync the stream restarts: the old id may legitimately
	// reappear and must apply again.
	h.rec.Apply(ev)
	assert.True(t, h.rec.State().Locked)
}

func TestAutoCloseLifecycleState(t *testing.T) {
	h := newHarness("pedro", time.Second)

	h.rec.Apply(events.New(events.PendingDrawerAutoClosed, "", &events.PendingDrawerAutoClosedData{
		Drawers: []events.PendingDrawerInfo{
			{DrawerID: "d-1"}, {DrawerID: "d-2"},
		},
		ClosedAt: time.Now(),
	}))
	state := h.rec.State()
	assert.True(t, state.Locked)
	assert.Equal(t, 2, state.PendingDrawers)

	h.rec.Apply(events.New(events.PendingDrawerResolved, "supervisor", &events.PendingDrawerResolvedData{
		DrawerID: "d-1", ResolvedBy: "supervisor", Remaining: 1,
	}))
	assert.Equal(t, 1, h.rec.State().PendingDrawers)
	assert.True(t, h.rec.State().Locked)

	h.rec.Apply(events.New(events.PendingDrawerResolved, "supervisor", &events.PendingDrawerResolvedData{
		DrawerID: "d-2", ResolvedBy: "supervisor", Remaining: 0,
	}))
	h.rec.Apply(events.New(events.SystemUnlocked, "supervisor", &events.SystemUnlockedData{}))

	state = h.rec.State()
	assert.False(t, state.Locked)
	assert.Zero(t, state.PendingDrawers)
}

func TestUsersUpdatedSilently(t *testing.T) {
	h := newHarness("pedro", time.Second)

	h.rec.Apply(events.New(events.UsersUpdated, "maria", &events.UsersUpdatedData{
		ActiveUsers: []string{"maria", "pedro"},
	}))

	assert.Equal(t, []string{"maria", "pedro"}, h.rec.State().ActiveUsers)
	assert.Empty(t, h.toasts, "presence changes do not toast")
}
