package cashbox

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/events"
	"github.com/mvalderrama/electrocaja/internal/modules/ledger"
	"github.com/mvalderrama/electrocaja/internal/money"
)

type testEnv struct {
	service *Service
	ledger  *ledger.Repository
	bus     *events.Bus
	emitted *[]*events.Event
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

	repo := NewRepository(db.Conn(), log)
	ledgerRepo := ledger.NewRepository(db.Conn(), log)
	return &testEnv{
		service: NewService(repo, ledgerRepo, bus, log),
		ledger:  ledgerRepo,
		bus:     bus,
		emitted: &emitted,
	}
}

func (e *testEnv) emittedTypes() []events.EventType {
	types := make([]events.EventType, 0, len(*e.emitted))
	for _, ev := range *e.emitted {
		types = append(types, ev.Type)
	}
	return types
}

func openTestDrawer(t *testing.T, e *testEnv) *Drawer {
	t.Helper()
	d, err := e.service.OpenDrawer(OpenDrawerRequest{
		OpenedBy:       "maria",
		OpeningLocal:   money.MustParse("100.00"),
		OpeningForeign: money.MustParse("50.00"),
		OpeningMobile:  money.MustParse("0.00"),
	})
	require.NoError(t, err)
	return d
}

func counts(local, foreign, mobile string) map[domain.Instrument]decimal.Decimal {
	return map[domain.Instrument]decimal.Decimal{
		domain.LocalCash:     money.MustParse(local),
		domain.ForeignCash:   money.MustParse(foreign),
		domain.MobilePayment: money.MustParse(mobile),
	}
}

func TestOpenDrawerRejectsSecondOpen(t *testing.T) {
	e := newTestEnv(t)
	openTestDrawer(t, e)

	_, err := e.service.OpenDrawer(OpenDrawerRequest{OpenedBy: "pedro"})
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)
}

func TestTransactionsMoveExpectedTotals(t *testing.T) {
	e := newTestEnv(t)
	d := openTestDrawer(t, e)

	_, err := e.service.AddTransaction(d.ID, NewTransactionRequest{
		Kind:       domain.KindIncome,
		Category:   "sale",
		Instrument: domain.LocalCash,
		Amount:     money.MustParse("250.00"),
		CreatedBy:  "maria",
	})
	require.NoError(t, err)

	_, err = e.service.AddTransaction(d.ID, NewTransactionRequest{
		Kind:       domain.KindExpense,
		Category:   "supplies",
		Instrument: domain.LocalCash,
		Amount:     money.MustParse("40.00"),
		CreatedBy:  "maria",
	})
	require.NoError(t, err)

	_, err = e.service.AddTransaction(d.ID, NewTransactionRequest{
		Kind:       domain.KindIncome,
		Category:   "sale",
		Instrument: domain.MobilePayment,
		Amount:     money.MustParse("75.50"),
		CreatedBy:  "maria",
	})
	require.NoError(t, err)

	d, err = e.service.GetDrawer(d.ID)
	require.NoError(t, err)

	// opening 100 + 250 income - 40 expense
	assert.Equal(t, "310.00", money.Format(d.ExpectedFor(domain.LocalCash)))
	assert.Equal(t, "50.00", money.Format(d.ExpectedFor(domain.ForeignCash)))
	assert.Equal(t, "75.50", money.Format(d.ExpectedFor(domain.MobilePayment)))
}

func TestRemoveTransactionReversesTotals(t *testing.T) {
	e := newTestEnv(t)
	d := openTestDrawer(t, e)

	tx, err := e.service.AddTransaction(d.ID, NewTransactionRequest{
		Kind:       domain.KindIncome,
		Category:   "sale",
		Instrument: domain.ForeignCash,
		Amount:     money.MustParse("20.00"),
		CreatedBy:  "maria",
	})
	require.NoError(t, err)

	_, err = e.service.RemoveTransaction(d.ID, tx.ID, "maria")
	require.NoError(t, err)

	d, err = e.service.GetDrawer(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", money.Format(d.ExpectedFor(domain.ForeignCash)))

	assert.Contains(t, e.emittedTypes(), events.TransactionRemoved)
}

func TestCleanCountClosesDrawer(t *testing.T) {
	e := newTestEnv(t)
	d := openTestDrawer(t, e)

	_, err := e.service.StartCount("maria")
	require.NoError(t, err)
	assert.Contains(t, e.emittedTypes(), events.LockUsers)

	// Counting in progress freezes the drawer
	_, err = e.service.AddTransaction(d.ID, NewTransactionRequest{
		Kind:       domain.KindIncome,
		Category:   "sale",
		Instrument: domain.LocalCash,
		Amount:     money.MustParse("1.00"),
		CreatedBy:  "pedro",
	})
	require.Error(t, err)

	session, err := e.service.SubmitCounts("maria", counts("100.00", "50.00", "0.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, session.Status)
	assert.False(t, session.Discrepant)

	d, err = e.service.GetDrawer(d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawerClosed, d.Status)

	adjustments, err := e.ledger.ListByDrawer(d.ID)
	require.NoError(t, err)
	assert.Empty(t, adjustments)

	types := e.emittedTypes()
	assert.Contains(t, types, events.DrawerClosed)
	assert.Contains(t, types, events.UnlockUsers)
}

func TestCountWithinToleranceIsClean(t *testing.T) {
	e := newTestEnv(t)
	openTestDrawer(t, e)

	_, err := e.service.StartCount("maria")
	require.NoError(t, err)

	// One cent off on local cash: inside the tolerance, no authorization.
	session, err := e.service.SubmitCounts("maria", counts("99.99", "50.00", "0.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, session.Status)
	assert.False(t, session.Discrepant)
}

func TestDiscrepantCountRequiresAuthorization(t *testing.T) {
	e := newTestEnv(t)
	d := openTestDrawer(t, e)

	_, err := e.service.StartCount("maria")
	require.NoError(t, err)

	// Local cash is 5.00 short, foreign 2.50 over.
	session, err := e.service.SubmitCounts("maria", counts("95.00", "52.50", "0.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingAuthorization, session.Status)
	assert.True(t, session.Discrepant)

	// No cancellation once a discrepancy is on the table.
	err = e.service.CancelCount("maria")
	require.Error(t, err)

	// Drawer is still open and nothing was written yet.
	d, err = e.service.GetDrawer(d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawerOpen, d.Status)

	session, err = e.service.AuthorizeCount("supervisor")
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, session.Status)

	d, err = e.service.GetDrawer(d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawerClosed, d.Status)

	adjustments, err := e.ledger.ListByDrawer(d.ID)
	require.NoError(t, err)
	require.Len(t, adjustments, 2)

	byInstrument := map[domain.Instrument]*ledger.Adjustment{}
	for _, a := range adjustments {
		byInstrument[a.Instrument] = a
		assert.Equal(t, "supervisor", a.AuthorizedBy)
	}
	require.Contains(t, byInstrument, domain.LocalCash)
	assert.Equal(t, domain.KindExpense, byInstrument[domain.LocalCash].Direction)
	assert.Equal(t, "5.00", money.Format(byInstrument[domain.LocalCash].Amount))

	require.Contains(t, byInstrument, domain.ForeignCash)
	assert.Equal(t, domain.KindIncome, byInstrument[domain.ForeignCash].Direction)
	assert.Equal(t, "2.50", money.Format(byInstrument[domain.ForeignCash].Amount))
}

func TestPartialCountRejected(t *testing.T) {
	e := newTestEnv(t)
	openTestDrawer(t, e)

	_, err := e.service.StartCount("maria")
	require.NoError(t, err)

	partial := map[domain.Instrument]decimal.Decimal{
		domain.LocalCash: money.MustParse("100.00"),
	}
	_, err = e.service.SubmitCounts("maria", partial, nil)
	require.Error(t, err)
	assert.IsType(t, &ValidationError{}, err)

	// Session survives the rejection and accepts a full submission.
	session, err := e.service.SubmitCounts("maria", counts("100.00", "50.00", "0.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, session.Status)
}

func TestAuthorizeWithoutDiscrepancyFails(t *testing.T) {
	e := newTestEnv(t)
	openTestDrawer(t, e)

	_, err := e.service.StartCount("maria")
	require.NoError(t, err)

	_, err = e.service.AuthorizeCount("supervisor")
	require.Error(t, err)
}

func TestCancelBeforeSubmitUnlocks(t *testing.T) {
	e := newTestEnv(t)
	openTestDrawer(t, e)

	_, err := e.service.StartCount("maria")
	require.NoError(t, err)

	require.NoError(t, e.service.CancelCount("maria"))
	assert.Contains(t, e.emittedTypes(), events.UnlockUsers)
	assert.Nil(t, e.service.ActiveSession())
}

func TestAutoCloseAndResolvePending(t *testing.T) {
	e := newTestEnv(t)
	d := openTestDrawer(t, e)

	frozen, err := e.service.AutoClosePending("end-of-day")
	require.NoError(t, err)
	require.Len(t, frozen, 1)

	d, err = e.service.GetDrawer(d.ID)
	require.NoError(t, err)
	assert.Equal(t, DrawerPendingPhysicalClose, d.Status)
	require.NotNil(t, d.ResponsibleUser)
	assert.Equal(t, "maria", *d.ResponsibleUser)

	// Pending drawers block a new open.
	_, err = e.service.OpenDrawer(OpenDrawerRequest{OpenedBy: "pedro"})
	require.Error(t, err)

	// Short 10.00 on local cash at resolution: adjustment under the resolver.
	resolved, err := e.service.ResolvePending(d.ID, "supervisor", counts("90.00", "50.00", "0.00"), nil)
	require.NoError(t, err)
	assert.Equal(t, DrawerClosed, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, "supervisor", *resolved.ResolvedBy)

	adjustments, err := e.ledger.ListByDrawer(d.ID)
	require.NoError(t, err)
	require.Len(t, adjustments, 1)
	assert.Equal(t, domain.KindExpense, adjustments[0].Direction)
	assert.Equal(t, "10.00", money.Format(adjustments[0].Amount))

	types := e.emittedTypes()
	assert.Contains(t, types, events.PendingDrawerAutoClosed)
	assert.Contains(t, types, events.PendingDrawerResolved)
	assert.Contains(t, types, events.SystemUnlocked)

	// With all pending drawers resolved a new drawer can open again.
	_, err = e.service.OpenDrawer(OpenDrawerRequest{OpenedBy: "pedro"})
	require.NoError(t, err)
}
