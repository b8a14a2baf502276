package cashbox

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Repository handles drawer, transaction and cash count persistence in pos.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new cashbox repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "cashbox").Logger(),
	}
}

// DB exposes the underlying connection for cross-repository transactions.
func (r *Repository) DB() *sql.DB {
	return r.db
}

const drawerColumns = `id, business_date, status, opened_by, opened_at, closed_by, closed_at,
	opening_local, opening_foreign, opening_mobile,
	income_local, income_foreign, expense_local, expense_foreign, mobile_total,
	auto_closed_at, auto_close_reason, responsible_user, resolved_by, resolved_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDrawer(row rowScanner) (*Drawer, error) {
	var d Drawer
	var openingLocal, openingForeign, openingMobile string
	var incomeLocal, incomeForeign, expenseLocal, expenseForeign, mobileTotal string

	err := row.Scan(
		&d.ID, &d.BusinessDate, &d.Status, &d.OpenedBy, &d.OpenedAt, &d.ClosedBy, &d.ClosedAt,
		&openingLocal, &openingForeign, &openingMobile,
		&incomeLocal, &incomeForeign, &expenseLocal, &expenseForeign, &mobileTotal,
		&d.AutoClosedAt, &d.AutoCloseReason, &d.ResponsibleUser, &d.ResolvedBy, &d.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}

	fields := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&d.OpeningLocal, openingLocal},
		{&d.OpeningForeign, openingForeign},
		{&d.OpeningMobile, openingMobile},
		{&d.IncomeLocal, incomeLocal},
		{&d.IncomeForeign, incomeForeign},
		{&d.ExpenseLocal, expenseLocal},
		{&d.ExpenseForeign, expenseForeign},
		{&d.MobileTotal, mobileTotal},
	}
	for _, f := range fields {
		v, err := money.Parse(f.raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt money column on drawer %s: %w", d.ID, err)
		}
		*f.dst = v
	}

	return &d, nil
}

// CreateDrawer inserts a new open drawer for the given business date.
func (r *Repository) CreateDrawer(req OpenDrawerRequest, businessDate string) (*Drawer, error) {
	d := &Drawer{
		ID:             uuid.New().String(),
		BusinessDate:   businessDate,
		Status:         DrawerOpen,
		OpenedBy:       req.OpenedBy,
		OpenedAt:       time.Now().Unix(),
		OpeningLocal:   money.Round(req.OpeningLocal),
		OpeningForeign: money.Round(req.OpeningForeign),
		OpeningMobile:  money.Round(req.OpeningMobile),
	}

	_, err := r.db.Exec(`
		INSERT INTO drawers (id, business_date, status, opened_by, opened_at,
			opening_local, opening_foreign, opening_mobile)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.BusinessDate, d.Status, d.OpenedBy, d.OpenedAt,
		money.Format(d.OpeningLocal), money.Format(d.OpeningForeign), money.Format(d.OpeningMobile),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create drawer: %w", err)
	}
	return d, nil
}

// GetDrawer fetches a drawer by id. Returns nil if not found.
func (r *Repository) GetDrawer(id string) (*Drawer, error) {
	row := r.db.QueryRow("SELECT "+drawerColumns+" FROM drawers WHERE id = ?", id)
	d, err := scanDrawer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drawer %s: %w", id, err)
	}
	return d, nil
}

// GetOpenDrawer returns the currently open drawer, or nil when none is open.
// At most one drawer may be open at a time.
func (r *Repository) GetOpenDrawer() (*Drawer, error) {
	row := r.db.QueryRow("SELECT " + drawerColumns + " FROM drawers WHERE status = 'OPEN' LIMIT 1")
	d, err := scanDrawer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get open drawer: %w", err)
	}
	return d, nil
}

// ListOpenDrawers returns all drawers currently in OPEN status.
// Used by the end-of-day sweep.
func (r *Repository) ListOpenDrawers() ([]*Drawer, error) {
	return r.listByStatus(DrawerOpen)
}

// ListPendingDrawers returns drawers frozen by the auto-close sweep that
// still need a physical count.
func (r *Repository) ListPendingDrawers() ([]*Drawer, error) {
	return r.listByStatus(DrawerPendingPhysicalClose)
}

func (r *Repository) listByStatus(status DrawerStatus) ([]*Drawer, error) {
	rows, err := r.db.Query("SELECT "+drawerColumns+" FROM drawers WHERE status = ? ORDER BY opened_at", status)
	if err != nil {
		return nil, fmt.Errorf("failed to list drawers by status %s: %w", status, err)
	}
	defer rows.Close()

	var drawers []*Drawer
	for rows.Next() {
		d, err := scanDrawer(rows)
		if err != nil {
			return nil, err
		}
		drawers = append(drawers, d)
	}
	return drawers, rows.Err()
}

// ListDrawerHistory returns closed and pending drawers, newest first.
func (r *Repository) ListDrawerHistory(limit int) ([]*Drawer, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		"SELECT "+drawerColumns+" FROM drawers WHERE status != 'OPEN' ORDER BY opened_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list drawer history: %w", err)
	}
	defer rows.Close()

	var drawers []*Drawer
	for rows.Next() {
		d, err := scanDrawer(rows)
		if err != nil {
			return nil, err
		}
		drawers = append(drawers, d)
	}
	return drawers, rows.Err()
}

// MarkPendingPhysicalCloseTx freezes an open drawer inside an existing
// transaction. The drawer stops accepting transactions but keeps its totals
// until the physical count resolves it.
func (r *Repository) MarkPendingPhysicalCloseTx(tx *sql.Tx, drawerID, reason, responsibleUser string) error {
	now := time.Now().Unix()
	res, err := tx.Exec(`
		UPDATE drawers
		SET status = ?, auto_closed_at = ?, auto_close_reason = ?, responsible_user = ?
		WHERE id = ? AND status = 'OPEN'`,
		DrawerPendingPhysicalClose, now, reason, responsibleUser, drawerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark drawer %s pending: %w", drawerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("drawer %s is not open", drawerID)
	}
	return nil
}

// CloseDrawerTx marks a drawer CLOSED inside an existing transaction.
func (r *Repository) CloseDrawerTx(tx *sql.Tx, drawerID, closedBy string) error {
	now := time.Now().Unix()
	res, err := tx.Exec(`
		UPDATE drawers SET status = ?, closed_by = ?, closed_at = ?
		WHERE id = ? AND status IN ('OPEN', 'PENDING_PHYSICAL_CLOSE')`,
		DrawerClosed, closedBy, now, drawerID,
	)
	if err != nil {
		return fmt.Errorf("failed to close drawer %s: %w", drawerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("drawer %s cannot be closed from its current status", drawerID)
	}
	return nil
}

// MarkResolvedTx records who resolved a pending drawer. Called in the same
// transaction that closes it.
func (r *Repository) MarkResolvedTx(tx *sql.Tx, drawerID, resolvedBy string) error {
	_, err := tx.Exec(
		"UPDATE drawers SET resolved_by = ?, resolved_at = ? WHERE id = ?",
		resolvedBy, time.Now().Unix(), drawerID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark drawer %s resolved: %w", drawerID, err)
	}
	return nil
}

// AddTransactionTx inserts a transaction and bumps the drawer's running
// totals in one shot. Must run inside a transaction so the totals can never
// drift from the entries.
func (r *Repository) AddTransactionTx(tx *sql.Tx, drawerID string, req NewTransactionRequest) (*Transaction, error) {
	t := &Transaction{
		ID:         uuid.New().String(),
		DrawerID:   drawerID,
		Kind:       req.Kind,
		Category:   req.Category,
		Instrument: req.Instrument,
		Amount:     money.Round(req.Amount),
		Note:       req.Note,
		CreatedBy:  req.CreatedBy,
		CreatedAt:  time.Now().Unix(),
	}

	_, err := tx.Exec(`
		INSERT INTO drawer_transactions (id, drawer_id, kind, category, instrument, amount, note, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DrawerID, t.Kind, t.Category, t.Instrument, money.Format(t.Amount), t.Note, t.CreatedBy, t.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	if err := r.applyTotalsTx(tx, drawerID, t.Kind, t.Instrument, t.Amount); err != nil {
		return nil, err
	}
	return t, nil
}

// RemoveTransactionTx deletes a transaction and reverses its effect on the
// drawer totals. Returns the removed transaction.
func (r *Repository) RemoveTransactionTx(tx *sql.Tx, drawerID, transactionID string) (*Transaction, error) {
	row := tx.QueryRow(`
		SELECT id, drawer_id, kind, category, instrument, amount, note, created_by, created_at
		FROM drawer_transactions WHERE id = ? AND drawer_id = ?`,
		transactionID, drawerID,
	)

	var t Transaction
	var amount string
	err := row.Scan(&t.ID, &t.DrawerID, &t.Kind, &t.Category, &t.Instrument, &amount, &t.Note, &t.CreatedBy, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("transaction %s not found on drawer %s", transactionID, drawerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", transactionID, err)
	}
	if t.Amount, err = money.Parse(amount); err != nil {
		return nil, fmt.Errorf("corrupt amount on transaction %s: %w", t.ID, err)
	}

	if _, err := tx.Exec("DELETE FROM drawer_transactions WHERE id = ?", t.ID); err != nil {
		return nil, fmt.Errorf("failed to delete transaction %s: %w", t.ID, err)
	}

	// Reverse the running total with the opposite sign.
	if err := r.applyTotalsTx(tx, drawerID, t.Kind, t.Instrument, t.Amount.Neg()); err != nil {
		return nil, err
	}
	return &t, nil
}

// applyTotalsTx adds a signed amount to the correct running-total column.
func (r *Repository) applyTotalsTx(tx *sql.Tx, drawerID string, kind domain.TransactionKind, instrument domain.Instrument, amount decimal.Decimal) error {
	var column string
	switch {
	case instrument == domain.MobilePayment:
		// Mobile keeps one net total: expenses subtract from it.
		column = "mobile_total"
		if kind == domain.KindExpense {
			amount = amount.Neg()
		}
	case instrument == domain.LocalCash && kind == domain.KindIncome:
		column = "income_local"
	case instrument == domain.LocalCash && kind == domain.KindExpense:
		column = "expense_local"
	case instrument == domain.ForeignCash && kind == domain.KindIncome:
		column = "income_foreign"
	case instrument == domain.ForeignCash && kind == domain.KindExpense:
		column = "expense_foreign"
	default:
		return fmt.Errorf("no totals column for %s/%s", instrument, kind)
	}

	var current string
	if err := tx.QueryRow("SELECT "+column+" FROM drawers WHERE id = ?", drawerID).Scan(&current); err != nil {
		return fmt.Errorf("failed to read drawer totals: %w", err)
	}
	cur, err := money.Parse(current)
	if err != nil {
		return fmt.Errorf("corrupt totals column %s on drawer %s: %w", column, drawerID, err)
	}

	updated := money.Format(cur.Add(amount))
	if _, err := tx.Exec("UPDATE drawers SET "+column+" = ? WHERE id = ?", updated, drawerID); err != nil {
		return fmt.Errorf("failed to update drawer totals: %w", err)
	}
	return nil
}

// ListTransactions returns all transactions for a drawer, oldest first.
func (r *Repository) ListTransactions(drawerID string) ([]*Transaction, error) {
	rows, err := r.db.Query(`
		SELECT id, drawer_id, kind, category, instrument, amount, note, created_by, created_at
		FROM drawer_transactions WHERE drawer_id = ? ORDER BY created_at`,
		drawerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var result []*Transaction
	for rows.Next() {
		var t Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.DrawerID, &t.Kind, &t.Category, &t.Instrument, &amount, &t.Note, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		if t.Amount, err = money.Parse(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on transaction %s: %w", t.ID, err)
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// InsertCashCountTx persists one instrument's count result.
func (r *Repository) InsertCashCountTx(tx *sql.Tx, c *CashCount) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt == 0 {
		c.CreatedAt = time.Now().Unix()
	}
	_, err := tx.Exec(`
		INSERT INTO cash_counts (id, drawer_id, instrument, expected, counted, difference, note, authorized_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.DrawerID, c.Instrument,
		money.Format(c.Expected), money.Format(c.Counted), money.Format(c.Difference),
		c.Note, c.AuthorizedBy, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cash count: %w", err)
	}
	return nil
}

// ListCashCounts returns the persisted counts for a drawer.
func (r *Repository) ListCashCounts(drawerID string) ([]*CashCount, error) {
	rows, err := r.db.Query(`
		SELECT id, drawer_id, instrument, expected, counted, difference, note, authorized_by, created_at
		FROM cash_counts WHERE drawer_id = ? ORDER BY created_at`,
		drawerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list cash counts: %w", err)
	}
	defer rows.Close()

	var result []*CashCount
	for rows.Next() {
		var c CashCount
		var expected, counted, difference string
		if err := rows.Scan(&c.ID, &c.DrawerID, &c.Instrument, &expected, &counted, &difference, &c.Note, &c.AuthorizedBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		for _, f := range []struct {
			dst *decimal.Decimal
			raw string
		}{{&c.Expected, expected}, {&c.Counted, counted}, {&c.Difference, difference}} {
			v, err := money.Parse(f.raw)
			if err != nil {
				return nil, fmt.Errorf("corrupt money column on cash count %s: %w", c.ID, err)
			}
			*f.dst = v
		}
		result = append(result, &c)
	}
	return result, rows.Err()
}
