package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTrip(t *testing.T) {
	ev := New(TransactionAdded, "maria", &TransactionAddedData{
		TransactionID: "tx-1",
		DrawerID:      "drawer-1",
		Kind:          "INCOME",
		Category:      "sale",
		Instrument:    "LOCAL_CASH",
		Amount:        "150.00",
		CreatedBy:     "maria",
	})

	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, TransactionAdded, decoded.Type)
	assert.Equal(t, "maria", decoded.OriginUser)

	data, ok := decoded.Data.(*TransactionAddedData)
	require.True(t, ok, "payload should decode to TransactionAddedData")
	assert.Equal(t, "150.00", data.Amount)
	assert.Equal(t, "LOCAL_CASH", data.Instrument)
}

func TestEventUnmarshalRejectsUnknownType(t *testing.T) {
	raw := []byte(`{"id":"x","type":"drawer-exploded","timestamp":"2026-01-05T10:00:00Z"}`)

	var ev Event
	err := json.Unmarshal(raw, &ev)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestEventUnmarshalNoPayload(t *testing.T) {
	raw := []byte(`{"id":"x","type":"unlock-users","timestamp":"2026-01-05T10:00:00Z"}`)

	var ev Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	assert.Equal(t, UnlockUsers, ev.Type)
	assert.Nil(t, ev.Data)
}

func TestStockDeltaEventType(t *testing.T) {
	reserved := &StockDeltaData{ItemID: "i-1", Quantity: 2}
	assert.Equal(t, StockReserved, reserved.EventType())

	released := NewStockReleasedData(StockDeltaData{ItemID: "i-1", Quantity: 2})
	assert.Equal(t, StockReleased, released.EventType())

	// The release flag survives a wire round trip via the type switch.
	raw, err := json.Marshal(New(StockReleased, "", released))
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, StockReleased, decoded.Data.EventType())
}

func TestAllEventTypesAreValid(t *testing.T) {
	for _, et := range AllEventTypes() {
		assert.True(t, et.IsValid(), "event type %s", et)
	}
	assert.False(t, EventType("made-up").IsValid())
}
