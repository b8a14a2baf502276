// Package sales turns reserved stock into drawer income. A sale consumes
// the session's reservations, decrements stock, records the income on the
// open drawer and announces sale-processed.
package sales

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/domain"
	"github.com/mvalderrama/electrocaja/internal/events"
	"github.com/mvalderrama/electrocaja/internal/modules/cashbox"
	"github.com/mvalderrama/electrocaja/internal/money"
)

// Request is one sale to process.
type Request struct {
	SessionID   string
	Instrument  domain.Instrument
	Amount      decimal.Decimal
	ProcessedBy string
}

// Service orchestrates sale processing across stock and the drawer.
type Service struct {
	db      *sql.DB
	cashbox *cashbox.Service
	bus     *events.Bus
	log     zerolog.Logger
}

// NewService creates a new sales service.
func NewService(db *sql.DB, cashboxService *cashbox.Service, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		db:      db,
		cashbox: cashboxService,
		bus:     bus,
		log:     log.With().Str("service", "sales").Logger(),
	}
}

// Process completes a sale. The session's reservations become consumed
// stock, then the payment lands on the open drawer as income under the
// "sale" category.
func (s *Service) Process(req Request) (string, error) {
	if req.Amount.IsZero() || req.Amount.IsNegative() {
		return "", fmt.Errorf("sale amount must be positive")
	}

	// One transaction for the whole sale: if the drawer rejects the income
	// (no open drawer, totals frozen by a count), the reservations and stock
	// stay exactly as they were.
	itemCount := 0
	var transaction *cashbox.Transaction
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var txErr error
		transaction, txErr = s.cashbox.AddTransactionTx(tx, "", cashbox.NewTransactionRequest{
			Kind:       domain.KindIncome,
			Category:   "sale",
			Instrument: req.Instrument,
			Amount:     req.Amount,
			CreatedBy:  req.ProcessedBy,
		})
		if txErr != nil {
			return txErr
		}

		rows, err := tx.Query(
			"SELECT id, item_id, quantity FROM stock_reservations WHERE session_id = ?",
			req.SessionID,
		)
		if err != nil {
			return err
		}
		type held struct {
			id, itemID string
			quantity   int
		}
		var holds []held
		for rows.Next() {
			var h held
			if err := rows.Scan(&h.id, &h.itemID, &h.quantity); err != nil {
				rows.Close()
				return err
			}
			holds = append(holds, h)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, h := range holds {
			if _, err := tx.Exec(
				"UPDATE stock_items SET quantity = quantity - ?, reserved = reserved - ? WHERE id = ?",
				h.quantity, h.quantity, h.itemID,
			); err != nil {
				return err
			}
			if _, err := tx.Exec("DELETE FROM stock_reservations WHERE id = ?", h.id); err != nil {
				return err
			}
			itemCount += h.quantity
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to process sale: %w", err)
	}

	s.cashbox.EmitTransactionAdded(transaction, req.ProcessedBy)

	saleID := uuid.New().String()
	s.log.Info().Str("sale_id", saleID).Int("items", itemCount).Msg("Sale processed")
	s.bus.Emit(events.New(events.SaleProcessed, req.ProcessedBy, &events.SaleProcessedData{
		SaleID:      saleID,
		DrawerID:    transaction.DrawerID,
		Instrument:  string(req.Instrument),
		Amount:      money.Format(req.Amount),
		ItemCount:   itemCount,
		ProcessedBy: req.ProcessedBy,
	}))
	return saleID, nil
}
