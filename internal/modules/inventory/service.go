// Package inventory tracks stock items and short-lived reservations made
// while a sale is being rung up. Reservations hold units against concurrent
// terminals; they are released on cancel or converted on sale.
package inventory

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/database"
	"github.com/mvalderrama/electrocaja/internal/events"
)

// Item is one stock line. Available units are quantity minus reserved.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Reserved int    `json:"reserved"`
}

// Available returns the units not held by reservations.
func (i *Item) Available() int {
	return i.Quantity - i.Reserved
}

// Reservation holds units for one terminal session.
type Reservation struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	SessionID string `json:"session_id"`
	Quantity  int    `json:"quantity"`
	CreatedBy string `json:"created_by"`
	CreatedAt int64  `json:"created_at"`
}

// Service manages stock and reservations.
type Service struct {
	db  *sql.DB
	bus *events.Bus
	log zerolog.Logger
}

// NewService creates a new inventory service.
func NewService(db *sql.DB, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		db:  db,
		bus: bus,
		log: log.With().Str("service", "inventory").Logger(),
	}
}

// ListItems returns all stock items.
func (s *Service) ListItems() ([]*Item, error) {
	rows, err := s.db.Query("SELECT id, name, quantity, reserved FROM stock_items ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list stock items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var i Item
		if err := rows.Scan(&i.ID, &i.Name, &i.Quantity, &i.Reserved); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	return items, rows.Err()
}

// GetItem returns one item, nil when not found.
func (s *Service) GetItem(id string) (*Item, error) {
	var i Item
	err := s.db.QueryRow("SELECT id, name, quantity, reserved FROM stock_items WHERE id = ?", id).
		Scan(&i.ID, &i.Name, &i.Quantity, &i.Reserved)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stock item %s: %w", id, err)
	}
	return &i, nil
}

// UpsertItem creates or updates a stock line.
func (s *Service) UpsertItem(id, name string, quantity int) (*Item, error) {
	if id == "" {
		id = uuid.New().String()
	}
	_, err := s.db.Exec(`
		INSERT INTO stock_items (id, name, quantity) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, quantity = excluded.quantity`,
		id, name, quantity,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert stock item: %w", err)
	}
	return s.GetItem(id)
}

// Reserve holds units of an item for a session. Fails when fewer units are
// available than requested; partial holds are never taken.
func (s *Service) Reserve(itemID, sessionID, createdBy string, quantity int) (*Reservation, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("reservation quantity must be positive")
	}

	var res *Reservation
	var item Item
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		err := tx.QueryRow("SELECT id, name, quantity, reserved FROM stock_items WHERE id = ?", itemID).
			Scan(&item.ID, &item.Name, &item.Quantity, &item.Reserved)
		if err == sql.ErrNoRows {
			return fmt.Errorf("stock item %s not found", itemID)
		}
		if err != nil {
			return err
		}
		if item.Available() < quantity {
			return fmt.Errorf("only %d of %s available", item.Available(), item.Name)
		}

		res = &Reservation{
			ID:        uuid.New().String(),
			ItemID:    itemID,
			SessionID: sessionID,
			Quantity:  quantity,
			CreatedBy: createdBy,
			CreatedAt: time.Now().Unix(),
		}
		if _, err := tx.Exec(
			"INSERT INTO stock_reservations (id, item_id, session_id, quantity, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			res.ID, res.ItemID, res.SessionID, res.Quantity, res.CreatedBy, res.CreatedAt,
		); err != nil {
			return err
		}

		item.Reserved += quantity
		_, err = tx.Exec("UPDATE stock_items SET reserved = ? WHERE id = ?", item.Reserved, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.bus.Emit(events.New(events.StockReserved, createdBy, &events.StockDeltaData{
		ItemID:    item.ID,
		ItemName:  item.Name,
		Quantity:  quantity,
		Available: item.Available(),
		Reserved:  item.Reserved,
		SessionID: sessionID,
	}))
	return res, nil
}

// Release frees a reservation's units.
func (s *Service) Release(reservationID, releasedBy string) error {
	var item Item
	var quantity int
	var sessionID string

	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var itemID string
		err := tx.QueryRow("SELECT item_id, session_id, quantity FROM stock_reservations WHERE id = ?", reservationID).
			Scan(&itemID, &sessionID, &quantity)
		if err == sql.ErrNoRows {
			return fmt.Errorf("reservation %s not found", reservationID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec("DELETE FROM stock_reservations WHERE id = ?", reservationID); err != nil {
			return err
		}

		err = tx.QueryRow("SELECT id, name, quantity, reserved FROM stock_items WHERE id = ?", itemID).
			Scan(&item.ID, &item.Name, &item.Quantity, &item.Reserved)
		if err != nil {
			return err
		}
		item.Reserved -= quantity
		if item.Reserved < 0 {
			item.Reserved = 0
		}
		_, err = tx.Exec("UPDATE stock_items SET reserved = ? WHERE id = ?", item.Reserved, item.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.bus.Emit(events.New(events.StockReleased, releasedBy, events.NewStockReleasedData(events.StockDeltaData{
		ItemID:    item.ID,
		ItemName:  item.Name,
		Quantity:  quantity,
		Available: item.Available(),
		Reserved:  item.Reserved,
		SessionID: sessionID,
	})))
	return nil
}

// ReleaseSession frees every reservation a session holds. Called when a
// terminal disconnects mid-sale.
func (s *Service) ReleaseSession(sessionID string) error {
	rows, err := s.db.Query("SELECT id FROM stock_reservations WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to list session reservations: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.Release(id, ""); err != nil {
			s.log.Warn().Err(err).Str("reservation", id).Msg("Failed to release reservation")
		}
	}
	return nil
}
