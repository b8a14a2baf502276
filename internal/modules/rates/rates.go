// Package rates stores the local/foreign exchange rate used by the
// terminals for display conversion. The rate is informational: amounts are
// always recorded in the instrument they were tendered in.
package rates

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/mvalderrama/electrocaja/internal/events"
	"github.com/mvalderrama/electrocaja/internal/money"
)

const rateKey = "exchange_rate"

// Service reads and updates the exchange rate and announces changes.
type Service struct {
	db  *sql.DB
	bus *events.Bus
	log zerolog.Logger
}

// NewService creates a new rates service.
func NewService(db *sql.DB, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		bus: bus,
		log: log.With().Str("service", "rates").Logger(),
	}
}

// Current returns the stored rate, or zero when none is set yet.
func (s *Service) Current() (decimal.Decimal, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM settings WHERE key = ?", rateKey).Scan(&value)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read exchange rate: %w", err)
	}
	return money.Parse(value)
}

// Update stores a new rate and broadcasts rate-updated.
func (s *Service) Update(rate decimal.Decimal, updatedBy string) error {
	if rate.IsNegative() || rate.IsZero() {
		return fmt.Errorf("exchange rate must be positive")
	}

	_, err := s.db.Exec(`
		INSERT INTO settings (key, value, updated_by, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_by = excluded.updated_by, updated_at = excluded.updated_at`,
		rateKey, money.Format(rate), updatedBy, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store exchange rate: %w", err)
	}

	s.log.Info().Str("rate", money.Format(rate)).Str("by", updatedBy).Msg("Exchange rate updated")
	s.bus.Emit(events.New(events.RateUpdated, updatedBy, &events.RateUpdatedData{
		Rate:      money.Format(rate),
		UpdatedBy: updatedBy,
	}))
	return nil
}
