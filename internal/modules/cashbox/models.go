// Package cashbox implements the cash drawer lifecycle and the end-of-day
// reconciliation (arqueo): expected totals per instrument, discrepancy
// detection against the counting tolerance, and the authorization flow that
// posts compensating ledger adjustments.
package cashbox

import (
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/domain"
)

// DrawerStatus is the lifecycle state of a drawer.
type DrawerStatus string

const (
	// DrawerOpen accepts transactions.
	DrawerOpen DrawerStatus = "OPEN"
	// DrawerClosed is terminal; the drawer was counted and reconciled.
	DrawerClosed DrawerStatus = "CLOSED"
	// DrawerPendingPhysicalClose is set by the end-of-day sweep: the books
	// are frozen but the physical count has not happened yet.
	DrawerPendingPhysicalClose DrawerStatus = "PENDING_PHYSICAL_CLOSE"
)

// Drawer is one cash drawer for one business date.
// Money fields are decimals; they round-trip through TEXT columns as
// 2-digit strings.
type Drawer struct {
	ID           string
	BusinessDate string
	Status       DrawerStatus
	OpenedBy     string
	OpenedAt     int64
	ClosedBy     *string
	ClosedAt     *int64

	OpeningLocal   decimal.Decimal
	OpeningForeign decimal.Decimal
	OpeningMobile  decimal.Decimal

	IncomeLocal    decimal.Decimal
	IncomeForeign  decimal.Decimal
	ExpenseLocal   decimal.Decimal
	ExpenseForeign decimal.Decimal
	MobileTotal    decimal.Decimal

	AutoClosedAt    *int64
	AutoCloseReason *string
	ResponsibleUser *string
	ResolvedBy      *string
	ResolvedAt      *int64
}

// ExpectedFor returns the expected closing balance for one instrument:
// opening plus recorded income minus recorded expense. The mobile instrument
// has no expense leg; its running total already nets deposits and reversals.
func (d *Drawer) ExpectedFor(instrument domain.Instrument) decimal.Decimal {
	switch instrument {
	case domain.LocalCash:
		return d.OpeningLocal.Add(d.IncomeLocal).Sub(d.ExpenseLocal)
	case domain.ForeignCash:
		return d.OpeningForeign.Add(d.IncomeForeign).Sub(d.ExpenseForeign)
	case domain.MobilePayment:
		return d.OpeningMobile.Add(d.MobileTotal)
	}
	return decimal.Zero
}

// Transaction is a single income or expense entry against an open drawer.
type Transaction struct {
	ID         string
	DrawerID   string
	Kind       domain.TransactionKind
	Category   string
	Instrument domain.Instrument
	Amount     decimal.Decimal
	Note       *string
	CreatedBy  string
	CreatedAt  int64
}

// CashCount is the persisted result of counting one instrument during an
// arqueo. Difference is counted minus expected, signed.
type CashCount struct {
	ID           string
	DrawerID     string
	Instrument   domain.Instrument
	Expected     decimal.Decimal
	Counted      decimal.Decimal
	Difference   decimal.Decimal
	Note         *string
	AuthorizedBy *string
	CreatedAt    int64
}

// OpenDrawerRequest carries the opening amounts for each instrument.
type OpenDrawerRequest struct {
	OpenedBy       string
	OpeningLocal   decimal.Decimal
	OpeningForeign decimal.Decimal
	OpeningMobile  decimal.Decimal
}

// NewTransactionRequest is a validated request to record a drawer transaction.
type NewTransactionRequest struct {
	Kind       domain.TransactionKind
	Category   string
	Instrument domain.Instrument
	Amount     decimal.Decimal
	Note       *string
	CreatedBy  string
}
