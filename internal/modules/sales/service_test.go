package sales

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/events"
	"github.com/mvalderrama/electrocaja/internal/modules/cashbox"
	"github.com/mvalderrama/electrocaja/internal/modules/inventory"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
	"github.com/mvalderrama/electrocaja/internal/money"
)

type testEnv struct {
	db        *database.DB
	sales     *Service
	cashbox   *cashbox.Service
	inventory *inventory.Service
	emitted   *[]*events.Event
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "pos.db"),
		Profile: database.ProfileLedger,
		Name:    "pos",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	bus := events.NewBus()
	var emitted []*events.Event
	bus.SubscribeAll(func(ev *events.Event) { emitted = append(emitted, ev) })

	drawerRepo := cashbox.NewRepository(db.Conn(), log)
	ledgerRepo := ledger.NewRepository(db.Conn(), log)
	cashboxService := cashbox.NewService(drawerRepo, ledgerRepo, bus, log)
	inventoryService := inventory.NewService(db.Conn(), bus, log)

	return &testEnv{
		db:        db,
		sales:     NewService(db.Conn(), cashboxService, bus, log),
		cashbox:   cashboxService,
		inventory: inventoryService,
		emitted:   &emitted,
	}
}

func (e *testEnv) emittedTypes() []events.EventType {
	types := make([]events.EventType, 0, len(*e.emitted))
	for _, ev := range *e.emitted {
		types = append(types, ev.Type)
	}
	return types
}

func (e *testEnv) reservationCount(t *testing.T, sessionID string) int {
	t.Helper()
	var count int
	require.NoError(t, e.db.QueryRow(
		"SELECT COUNT(*) FROM stock_reservations WHERE session_id = ?", sessionID,
	).Scan(&count))
	return count
}

func TestProcessConsumesReservationsAndRecordsIncome(t *testing.T) {
	e := newTestEnv(t)

	d, err := e.cashbox.OpenDrawer(cashbox.OpenDrawerRequest{
		OpenedBy:     "maria",
		OpeningLocal: money.MustParse("100.00"),
	})
	require.NoError(t, err)

	item, err := e.inventory.UpsertItem("", "Cargador USB", 10)
	require.NoError(t, err)
	_, err = e.inventory.Reserve(item.ID, "session-1", "maria", 3)
	require.NoError(t, err)

	saleID, err := e.sales.Process(Request{
		SessionID:   "session-1",
		Instrument:  domain.LocalCash,
		Amount:      money.MustParse("45.00"),
		ProcessedBy: "maria",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saleID)

	after, err := e.inventory.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, after.Quantity)
	assert.Equal(t, 0, after.Reserved)
	assert.Equal(t, 0, e.reservationCount(t, "session-1"))

	transactions, err := e.cashbox.ListTransactions(d.ID)
	require.NoError(t, err)
	require.Len(t, transactions, 1)
	assert.Equal(t, domain.KindIncome, transactions[0].Kind)
	assert.Equal(t, "sale", transactions[0].Category)
	assert.Equal(t, "45.00", money.Format(transactions[0].Amount))

	assert.Contains(t, e.emittedTypes(), events.TransactionAdded)
	assert.Contains(t, e.emittedTypes(), events.SaleProcessed)
}

// A sale that the drawer rejects must not touch stock. Reservations and
// quantities stay exactly as they were so the cashier can retry once a
// drawer is open again.
func TestProcessWithoutOpenDrawerLeavesStockIntact(t *testing.T) {
	e := newTestEnv(t)

	item, err := e.inventory.UpsertItem("", "Bombillo LED", 10)
	require.NoError(t, err)
	_, err = e.inventory.Reserve(item.ID, "session-1", "maria", 3)
	require.NoError(t, err)

	_, err = e.sales.Process(Request{
		SessionID:   "session-1",
		Instrument:  domain.LocalCash,
		Amount:      money.MustParse("45.00"),
		ProcessedBy: "maria",
	})
	require.Error(t, err)

	after, err := e.inventory.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, after.Quantity)
	assert.Equal(t, 3, after.Reserved)
	assert.Equal(t, 1, e.reservationCount(t, "session-1"))

	assert.NotContains(t, e.emittedTypes(), events.TransactionAdded)
	assert.NotContains(t, e.emittedTypes(), events.SaleProcessed)
}

func TestProcessWhileCountLockedLeavesStockIntact(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.cashbox.OpenDrawer(cashbox.OpenDrawerRequest{
		OpenedBy:     "maria",
		OpeningLocal: money.MustParse("100.00"),
	})
	require.NoError(t, err)

	item, err := e.inventory.UpsertItem("", "Regleta", 5)
	require.NoError(t, err)
	_, err = e.inventory.Reserve(item.ID, "session-1", "maria", 2)
	require.NoError(t, err)

	_, err = e.cashbox.StartCount("maria")
	require.NoError(t, err)

	_, err = e.sales.Process(Request{
		SessionID:   "session-1",
		Instrument:  domain.LocalCash,
		Amount:      money.MustParse("20.00"),
		ProcessedBy: "maria",
	})
	require.Error(t, err)

	after, err := e.inventory.GetItem(item.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, after.Quantity)
	assert.Equal(t, 2, after.Reserved)
	assert.Equal(t, 1, e.reservationCount(t, "session-1"))
}

func TestProcessRejectsNonPositiveAmount(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.sales.Process(Request{
		SessionID:   "session-1",
		Instrument:  domain.LocalCash,
		Amount:      money.MustParse("0.00"),
		ProcessedBy: "maria",
	})
	require.Error(t, err)
}
