package display

import (
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mvalderrama/electrocaja/internal/events"
)

func TestStateManagerFollowsEvents(t *testing.T) {
	bus := events.NewBus()
	sm := NewStateManager(bus, zerolog.Nop())

	assert.Equal(t, "ELECTRO CAJA", sm.Snapshot().StatusLine)

	bus.Emit(events.New(events.SaleProcessed, "maria", &events.SaleProcessedData{
		SaleID: "s1", Amount: "120.50", Instrument: "LOCAL_CASH", ItemCount: 2, ProcessedBy: "maria",
	}))
	st := sm.Snapshot()
	assert.Equal(t, "120.50", st.LastAmount)
	assert.Equal(t, "GRACIAS POR SU COMPRA", st.StatusLine)

	bus.Emit(events.New(events.RateUpdated, "admin", &events.RateUpdatedData{Rate: "36.50", UpdatedBy: "admin"}))
	assert.Equal(t, "36.50", sm.Snapshot().Rate)

	bus.Emit(events.New(events.LockUsers, "maria", &events.LockUsersData{Reason: "cash-count", LockingUser: "maria"}))
	st = sm.Snapshot()
	assert.True(t, st.Locked)
	assert.Equal(t, "CAJA CERRADA", st.StatusLine)

	bus.Emit(events.New(events.UnlockUsers, "maria", &events.UnlockUsersData{Reason: "count-complete"}))
	st = sm.Snapshot()
	assert.False(t, st.Locked)
	assert.Equal(t, "ELECTRO CAJA", st.StatusLine)
}

func TestStateManagerServesMsgpack(t *testing.T) {
	bus := events.NewBus()
	sm := NewStateManager(bus, zerolog.Nop())

	rec := httptest.NewRecorder()
	sm.ServeHTTP(rec, httptest.NewRequest("GET", "/display", nil))

	require.Equal(t, 200, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

	var decoded State
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal(t, "ELECTRO CAJA", decoded.StatusLine)
}
