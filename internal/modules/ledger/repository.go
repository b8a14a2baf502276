// Package ledger persists the compensating adjustments produced by cash
// reconciliation. Adjustments are the audit trail for counted-vs-expected
// differences; they are only ever written as an all-or-nothing batch.
package ledger

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

// Adjustment is one compensating ledger entry. Direction is INCOME when the
// count found more than expected and EXPENSE when it found less; Amount is
// always the absolute difference.
type Adjustment struct {
	ID           string
	DrawerID     string
	CountID      string
	Instrument   domain.Instrument
	Direction    domain.TransactionKind
	Amount       decimal.Decimal
	AuthorizedBy string
	CreatedAt    int64
}

// Repository handles ledger adjustment persistence in pos.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "ledger").Logger(),
	}
}

// InsertBatchTx writes a batch of adjustments inside an existing transaction.
// Callers wrap this together with the cash count inserts and the drawer close
// so a failure retries the whole batch, never a partial one.
func (r *Repository) InsertBatchTx(tx *sql.Tx, adjustments []*Adjustment) error {
	now := time.Now().Unix()
	for _, a := range adjustments {
		if a.ID == "" {
			a.ID = uuid.New().String()
		}
		if a.CreatedAt == 0 {
			a.CreatedAt = now
		}
		_, err := tx.Exec(`
			INSERT INTO ledger_adjustments (id, drawer_id, count_id, instrument, direction, amount, authorized_by, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.DrawerID, a.CountID, a.Instrument, a.Direction,
			money.Format(a.Amount), a.AuthorizedBy, a.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert adjustment for %s: %w", a.Instrument, err)
		}
	}
	return nil
}

// ListByDrawer returns all adjustments recorded against a drawer.
func (r *Repository) ListByDrawer(drawerID string) ([]*Adjustment, error) {
	rows, err := r.db.Query(`
		SELECT id, drawer_id, count_id, instrument, direction, amount, authorized_by, created_at
		FROM ledger_adjustments WHERE drawer_id = ? ORDER BY created_at`,
		drawerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list adjustments: %w", err)
	}
	defer rows.Close()

	var result []*Adjustment
	for rows.Next() {
		var a Adjustment
		var amount string
		if err := rows.Scan(&a.ID, &a.DrawerID, &a.CountID, &a.Instrument, &a.Direction, &amount, &a.AuthorizedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		if a.Amount, err = money.Parse(amount); err != nil {
			return nil, fmt.Errorf("corrupt amount on adjustment %s: %w", a.ID, err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}
