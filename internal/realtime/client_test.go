package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestConnectAndReadAppliesSnapshotAndReportsEstablished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		require.NoError(t, err)
		snapshot := `{"kind":"resync","state":{"locked":true,"lock_reason":"cash-count","drawer_open":true,"drawer_id":"d-1","pending_drawers":0,"active_users":["maria"]}}`
		require.NoError(t, conn.Write(r.Context(), websocket.MessageText, []byte(snapshot)))
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	}))
	defer srv.Close()

	rec := NewReconciler(ReconcilerConfig{}, zerolog.Nop())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewClient(url, "token-1", rec, zerolog.Nop())

	connected, err := c.connectAndRead()
	assert.True(t, connected, "a session that dropped still counts as established")
	require.Error(t, err, "read loop ends with the close error")

	state := rec.State()
	assert.True(t, state.Locked)
	assert.Equal(t, "cash-count", state.LockReason)
	assert.Equal(t, "d-1", state.DrawerID)
}

func TestConnectAndReadFailedDial(t *testing.T) {
	rec := NewReconciler(ReconcilerConfig{}, zerolog.Nop())
	c := NewClient("ws://127.0.0.1:1/ws", "token-1", rec, zerolog.Nop())

	connected, err := c.connectAndRead()
	assert.False(t, connected)
	require.Error(t, err)
}

func TestReconnectDelayBacksOffAndCaps(t *testing.T) {
	assert.Equal(t, 2*time.Second, reconnectDelay(0))
	assert.Equal(t, 4*time.Second, reconnectDelay(1))
	assert.Equal(t, maxReconnectDelay, reconnectDelay(20))
}
