// Package events defines the closed set of domain events and the in-process
// bus that distributes them. Every cross-terminal state change in the system
// flows through one of these event types; the wire protocol carries the same
// names, so the set here is the single source of truth for both sides.
package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a domain event. The set is closed: producers may only
// emit types declared here, and consumers switch exhaustively over them.
type EventType string

const (
	// Drawer lifecycle
	DrawerOpened EventType = "drawer-opened"
	DrawerClosed EventType = "drawer-closed"

	// Drawer transactions
	TransactionAdded   EventType = "transaction-added"
	TransactionRemoved EventType = "transaction-removed"
	SaleProcessed      EventType = "sale-processed"

	// Stock
	StockReserved EventType = "stock-reserved"
	StockReleased EventType = "stock-released"

	// Sessions and access control
	UsersUpdated EventType = "users-updated"
	ForceLogout  EventType = "force-logout"
	LockUsers    EventType = "lock-users"
	UnlockUsers  EventType = "unlock-users"

	// Exchange rate
	RateUpdated EventType = "rate-updated"

	// Auto-close lifecycle
	PendingDrawerAutoClosed EventType = "pending-drawer-auto-closed"
	PendingDrawerResolved   EventType = "pending-drawer-resolved"
	SystemUnlocked          EventType = "system-unlocked"
)

// AllEventTypes lists every declared event type.
func AllEventTypes() []EventType {
	return []EventType{
		DrawerOpened,
		DrawerClosed,
		TransactionAdded,
		TransactionRemoved,
		SaleProcessed,
		StockReserved,
		StockReleased,
		UsersUpdated,
		ForceLogout,
		LockUsers,
		UnlockUsers,
		RateUpdated,
		PendingDrawerAutoClosed,
		PendingDrawerResolved,
		SystemUnlocked,
	}
}

// IsValid reports whether t is a declared event type.
func (t EventType) IsValid() bool {
	for _, known := range AllEventTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Event is a single domain event as it travels over the bus and the wire.
//
// ID is unique per emission and is what receivers deduplicate on.
// OriginUser names the session that caused the event; receivers use it to
// suppress their own toast notifications while still applying the state
// change. ForceLogout is the one type where origin never suppresses anything.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	OriginUser string    `json:"origin_user,omitempty"`
	Data       EventData `json:"data,omitempty"`
}

// New builds an event with a fresh ID and the current timestamp.
func New(eventType EventType, originUser string, data EventData) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		OriginUser: originUser,
		Data:       data,
	}
}
