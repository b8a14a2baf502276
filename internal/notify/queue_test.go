package notify

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvalderrama/electrocaja/internal/database"
)

type fakeSender struct {
	fail  bool
	calls int
}

func (f *fakeSender) Send(ctx context.Context, n *Notification) error {
	f.calls++
	if f.fail {
		return errors.New("gateway unreachable")
	}
	return nil
}

func newTestQueue(t *testing.T, sender Sender) *Queue {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewQueue(db.Conn(), sender, 3, zerolog.Nop())
}

func TestDrainDeliversPending(t *testing.T) {
	sender := &fakeSender{}
	q := newTestQueue(t, sender)

	n, err := q.Enqueue(KindWhatsAppMessage, "+58412000000", "ticket ready")
	require.NoError(t, err)

	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 1, sender.calls)

	got, err := q.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDelivered, got.Status)
	assert.Equal(t, 1, got.Attempts)
}

func TestFailedDeliveryBacksOff(t *testing.T) {
	sender := &fakeSender{fail: true}
	q := newTestQueue(t, sender)

	n, err := q.Enqueue(KindWhatsAppMessage, "+58412000000", "hello")
	require.NoError(t, err)

	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 1, sender.calls)

	got, err := q.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRetrying, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastError)
	assert.Greater(t, got.NextAttemptAt, got.CreatedAt)

	// Not due yet: another drain must not re-attempt it.
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 1, sender.calls)
}

func TestRetryBudgetExhausts(t *testing.T) {
	sender := &fakeSender{fail: true}
	q := newTestQueue(t, sender)

	n, err := q.Enqueue(KindWhatsAppReport, "+58412000000", "daily report")
	require.NoError(t, err)

	// Force the message due again after each failure so three attempts run
	// back to back.
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Drain(context.Background()))
		_, err := q.db.Exec("UPDATE notifications SET next_attempt_at = 0 WHERE id = ? AND status = ?", n.ID, StatusRetrying)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, sender.calls)

	got, err := q.Get(n.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExhausted, got.Status)
	assert.Equal(t, 3, got.Attempts)

	// Exhausted messages never come back.
	require.NoError(t, q.Drain(context.Background()))
	assert.Equal(t, 3, sender.calls)
}

func TestRetryDelayGrows(t *testing.T) {
	assert.Less(t, retryDelay(1), retryDelay(2))
	assert.Less(t, retryDelay(2), retryDelay(3))
	assert.Equal(t, retryDelay(20), retryDelay(30), "delay is capped")
}
