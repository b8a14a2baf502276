// Package services tracks device repair tickets. Each ticket carries a
// public token so customers can check progress without an account.
package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status values follow the physical flow of a device through the shop.
const (
	StatusReceived  = "RECEIVED"
	StatusInRepair  = "IN_REPAIR"
	StatusReady     = "READY"
	StatusDelivered = "DELIVERED"
)

var validStatus = map[string]bool{
	StatusReceived:  true,
	StatusInRepair:  true,
	StatusReady:     true,
	StatusDelivered: true,
}

// Ticket is one repair order.
type Ticket struct {
	ID            string  `json:"id"`
	PublicToken   string  `json:"public_token"`
	CustomerName  string  `json:"customer_name"`
	CustomerPhone *string `json:"customer_phone"`
	Device        string  `json:"device"`
	Issue         *string `json:"issue"`
	Status        string  `json:"status"`
	Technician    *string `json:"technician"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

// StatusEvent is one entry in a ticket's history.
type StatusEvent struct {
	ID        string  `json:"id"`
	ServiceID string  `json:"service_id"`
	Status    string  `json:"status"`
	Note      *string `json:"note"`
	CreatedBy *string `json:"created_by"`
	CreatedAt int64   `json:"created_at"`
}

// Repository handles repair ticket persistence in pos.db.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new services repository.
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repository", "services").Logger(),
	}
}

// newPublicToken generates an unguessable customer-facing token.
func newPublicToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate public token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Create opens a ticket in RECEIVED status.
func (r *Repository) Create(customerName, device string, customerPhone, issue, createdBy *string) (*Ticket, error) {
	token, err := newPublicToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	t := &Ticket{
		ID:            uuid.New().String(),
		PublicToken:   token,
		CustomerName:  customerName,
		CustomerPhone: customerPhone,
		Device:        device,
		Issue:         issue,
		Status:        StatusReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err = r.db.Exec(`
		INSERT INTO repair_services (id, public_token, customer_name, customer_phone, device, issue, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.PublicToken, t.CustomerName, t.CustomerPhone, t.Device, t.Issue, t.Status, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create repair ticket: %w", err)
	}

	if err := r.appendEvent(t.ID, StatusReceived, nil, createdBy); err != nil {
		r.log.Warn().Err(err).Str("ticket", t.ID).Msg("Failed to record initial status event")
	}
	return t, nil
}

const ticketColumns = "id, public_token, customer_name, customer_phone, device, issue, status, technician, created_at, updated_at"

func scanTicket(row interface{ Scan(...interface{}) error }) (*Ticket, error) {
	var t Ticket
	err := row.Scan(&t.ID, &t.PublicToken, &t.CustomerName, &t.CustomerPhone, &t.Device, &t.Issue, &t.Status, &t.Technician, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Get fetches a ticket by id, nil when not found.
func (r *Repository) Get(id string) (*Ticket, error) {
	t, err := scanTicket(r.db.QueryRow("SELECT "+ticketColumns+" FROM repair_services WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repair ticket %s: %w", id, err)
	}
	return t, nil
}

// GetByToken fetches a ticket by its public token, nil when not found.
func (r *Repository) GetByToken(token string) (*Ticket, error) {
	t, err := scanTicket(r.db.QueryRow("SELECT "+ticketColumns+" FROM repair_services WHERE public_token = ?", token))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get repair ticket by token: %w", err)
	}
	return t, nil
}

// List returns tickets, newest first, optionally filtered by status.
func (r *Repository) List(status string) ([]*Ticket, error) {
	query := "SELECT " + ticketColumns + " FROM repair_services"
	var args []interface{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list repair tickets: %w", err)
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// UpdateStatus moves a ticket to a new status and records the change.
func (r *Repository) UpdateStatus(id, status string, technician, note, updatedBy *string) (*Ticket, error) {
	if !validStatus[status] {
		return nil, fmt.Errorf("unknown ticket status %q", status)
	}

	res, err := r.db.Exec(
		"UPDATE repair_services SET status = ?, technician = COALESCE(?, technician), updated_at = ? WHERE id = ?",
		status, technician, time.Now().Unix(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("repair ticket %s not found", id)
	}

	if err := r.appendEvent(id, status, note, updatedBy); err != nil {
		r.log.Warn().Err(err).Str("ticket", id).Msg("Failed to record status event")
	}
	return r.Get(id)
}

// History returns a ticket's status events, oldest first.
func (r *Repository) History(id string) ([]*StatusEvent, error) {
	rows, err := r.db.Query(
		"SELECT id, service_id, status, note, created_by, created_at FROM repair_service_events WHERE service_id = ? ORDER BY created_at",
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket history: %w", err)
	}
	defer rows.Close()

	var history []*StatusEvent
	for rows.Next() {
		var e StatusEvent
		if err := rows.Scan(&e.ID, &e.ServiceID, &e.Status, &e.Note, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, &e)
	}
	return history, rows.Err()
}

func (r *Repository) appendEvent(serviceID, status string, note, createdBy *string) error {
	_, err := r.db.Exec(
		"INSERT INTO repair_service_events (id, service_id, status, note, created_by, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.New().String(), serviceID, status, note, createdBy, time.Now().Unix(),
	)
	return err
}
