package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventData is implemented by every typed event payload. Payloads carry
// decimal amounts as strings; they are parsed at the edges, never stored
// as floats.
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// DrawerOpenedData contains data for DrawerOpened events
type DrawerOpenedData struct {
	DrawerID       string `json:"drawer_id"`
	BusinessDate   string `json:"business_date"`
	OpenedBy       string `json:"opened_by"`
	OpeningLocal   string `json:"opening_local"`
	OpeningForeign string `json:"opening_foreign"`
	OpeningMobile  string `json:"opening_mobile"`
}

func (d *DrawerOpenedData) EventType() EventType { return DrawerOpened }

// DrawerClosedData contains data for DrawerClosed events
type DrawerClosedData struct {
	DrawerID   string `json:"drawer_id"`
	ClosedBy   string `json:"closed_by"`
	Discrepant bool   `json:"discrepant"`
}

func (d *DrawerClosedData) EventType() EventType { return DrawerClosed }

// TransactionAddedData contains data for TransactionAdded events
type TransactionAddedData struct {
	TransactionID string `json:"transaction_id"`
	DrawerID      string `json:"drawer_id"`
	Kind          string `json:"kind"`
	Category      string `json:"category"`
	Instrument    string `json:"instrument"`
	Amount        string `json:"amount"`
	CreatedBy     string `json:"created_by"`
}

func (d *TransactionAddedData) EventType() EventType { return TransactionAdded }

// TransactionRemovedData contains data for TransactionRemoved events
type TransactionRemovedData struct {
	TransactionID string `json:"transaction_id"`
	DrawerID      string `json:"drawer_id"`
	Kind          string `json:"kind"`
	Instrument    string `json:"instrument"`
	Amount        string `json:"amount"`
}

func (d *TransactionRemovedData) EventType() EventType { return TransactionRemoved }

// SaleProcessedData contains data for SaleProcessed events
type SaleProcessedData struct {
	SaleID      string `json:"sale_id"`
	DrawerID    string `json:"drawer_id"`
	Instrument  string `json:"instrument"`
	Amount      string `json:"amount"`
	ItemCount   int    `json:"item_count"`
	ProcessedBy string `json:"processed_by"`
}

func (d *SaleProcessedData) EventType() EventType { return SaleProcessed }

// StockDeltaData is shared by StockReserved and StockReleased events.
// Kind distinguishes the two when the payload is reused.
type StockDeltaData struct {
	ItemID    string `json:"item_id"`
	ItemName  string `json:"item_name"`
	Quantity  int    `json:"quantity"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
	SessionID string `json:"session_id,omitempty"`
	released  bool
}

func (d *StockDeltaData) EventType() EventType {
	if d.released {
		return StockReleased
	}
	return StockReserved
}

// NewStockReleasedData marks a stock delta as a release.
func NewStockReleasedData(d StockDeltaData) *StockDeltaData {
	d.released = true
	return &d
}

// UsersUpdatedData contains data for UsersUpdated events
type UsersUpdatedData struct {
	ActiveUsers []string `json:"active_users"`
}

func (d *UsersUpdatedData) EventType() EventType { return UsersUpdated }

// ForceLogoutData contains data for ForceLogout events
type ForceLogoutData struct {
	Message   string `json:"message,omitempty"`
	AdminUser string `json:"admin_user,omitempty"`
}

func (d *ForceLogoutData) EventType() EventType { return ForceLogout }

// LockUsersData contains data for LockUsers events
type LockUsersData struct {
	Reason      string `json:"reason,omitempty"`
	LockingUser string `json:"locking_user,omitempty"`
}

func (d *LockUsersData) EventType() EventType { return LockUsers }

// UnlockUsersData contains data for UnlockUsers events
type UnlockUsersData struct {
	Reason string `json:"reason,omitempty"`
}

func (d *UnlockUsersData) EventType() EventType { return UnlockUsers }

// RateUpdatedData contains data for RateUpdated events
type RateUpdatedData struct {
	Rate      string `json:"rate"`
	UpdatedBy string `json:"updated_by,omitempty"`
}

func (d *RateUpdatedData) EventType() EventType { return RateUpdated }

// PendingDrawerInfo identifies one drawer moved to PENDING_PHYSICAL_CLOSE
// by the end-of-day sweep.
type PendingDrawerInfo struct {
	DrawerID        string `json:"drawer_id"`
	BusinessDate    string `json:"business_date"`
	ResponsibleUser string `json:"responsible_user,omitempty"`
}

// PendingDrawerAutoClosedData contains data for PendingDrawerAutoClosed events
type PendingDrawerAutoClosedData struct {
	Drawers  []PendingDrawerInfo `json:"drawers"`
	ClosedAt time.Time           `json:"closed_at"`
	Reason   string              `json:"reason,omitempty"`
}

func (d *PendingDrawerAutoClosedData) EventType() EventType { return PendingDrawerAutoClosed }

// PendingDrawerResolvedData contains data for PendingDrawerResolved events
type PendingDrawerResolvedData struct {
	DrawerID   string `json:"drawer_id"`
	ResolvedBy string `json:"resolved_by"`
	Remaining  int    `json:"remaining"`
}

func (d *PendingDrawerResolvedData) EventType() EventType { return PendingDrawerResolved }

// SystemUnlockedData contains data for SystemUnlocked events
type SystemUnlockedData struct {
	Reason string `json:"reason,omitempty"`
}

func (d *SystemUnlockedData) EventType() EventType { return SystemUnlocked }

// MarshalJSON customizes JSON serialization for Event
func (e *Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if e.Data != nil {
		dataBytes, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		aux.Data = dataBytes
	}

	return json.Marshal(aux)
}

// UnmarshalJSON customizes JSON deserialization for Event.
// The payload is decoded into the concrete type matching the event type;
// unknown types are rejected rather than passed through, keeping the
// event set closed at the wire boundary.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	aux := &struct {
		Data json.RawMessage `json:"data"`
		*Alias
	}{
		Alias: (*Alias)(e),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	if !e.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", e.Type)
	}

	if len(aux.Data) == 0 || string(aux.Data) == "null" {
		return nil
	}

	var eventData EventData
	switch e.Type {
	case DrawerOpened:
		eventData = &DrawerOpenedData{}
	case DrawerClosed:
		eventData = &DrawerClosedData{}
	case TransactionAdded:
		eventData = &TransactionAddedData{}
	case TransactionRemoved:
		eventData = &TransactionRemovedData{}
	case SaleProcessed:
		eventData = &SaleProcessedData{}
	case StockReserved:
		eventData = &StockDeltaData{}
	case StockReleased:
		eventData = &StockDeltaData{released: true}
	case UsersUpdated:
		eventData = &UsersUpdatedData{}
	case ForceLogout:
		eventData = &ForceLogoutData{}
	case LockUsers:
		eventData = &LockUsersData{}
	case UnlockUsers:
		eventData = &UnlockUsersData{}
	case RateUpdated:
		eventData = &RateUpdatedData{}
	case PendingDrawerAutoClosed:
		eventData = &PendingDrawerAutoClosedData{}
	case PendingDrawerResolved:
		eventData = &PendingDrawerResolvedData{}
	case SystemUnlocked:
		eventData = &SystemUnlockedData{}
	}

	if err := json.Unmarshal(aux.Data, eventData); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	e.Data = eventData

	return nil
}
