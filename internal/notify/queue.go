// Package notify delivers outbound messages (WhatsApp today) through a
// persistent retry queue in cache.db. Deliveries are attempted a bounded
// number of times with backoff; a message that keeps failing is marked
// EXHAUSTED and kept for inspection instead of retrying forever.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification statuses.
const (
	StatusPending   = "PENDING"
	StatusRetrying  = "RETRYING"
	StatusDelivered = "DELIVERED"
	StatusExhausted = "EXHAUSTED"
)

// Notification kinds.
const (
	KindWhatsAppMessage = "whatsapp_message"
	KindWhatsAppReport  = "whatsapp_report"
)

// Notification is one queued outbound message.
type Notification struct {
	ID            string  `json:"id"`
	Kind          string  `json:"kind"`
	Recipient     string  `json:"recipient"`
	Body          string  `json:"body"`
	Status        string  `json:"status"`
	Attempts      int     `json:"attempts"`
	MaxAttempts   int     `json:"max_attempts"`
	LastError     *string `json:"last_error"`
	NextAttemptAt int64   `json:"next_attempt_at"`
	CreatedAt     int64   `json:"created_at"`
	UpdatedAt     int64   `json:"updated_at"`
}

// Sender delivers one message. Implementations must be safe for concurrent
// use; the queue calls them from the drain loop.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}

// Queue is the persistent retry queue.
type Queue struct {
	db          *sql.DB
	sender      Sender
	maxAttempts int
	log         zerolog.Logger
}

// NewQueue creates a queue backed by cache.db.
func NewQueue(db *sql.DB, sender Sender, maxAttempts int, log zerolog.Logger) *Queue {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Queue{
		db:          db,
		sender:      sender,
		maxAttempts: maxAttempts,
		log:         log.With().Str("component", "notify_queue").Logger(),
	}
}

// Enqueue adds a message for delivery on the next drain.
func (q *Queue) Enqueue(kind, recipient, body string) (*Notification, error) {
	now := time.Now().Unix()
	n := &Notification{
		ID:            uuid.New().String(),
		Kind:          kind,
		Recipient:     recipient,
		Body:          body,
		Status:        StatusPending,
		MaxAttempts:   q.maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	_, err := q.db.Exec(`
		INSERT INTO notifications (id, kind, recipient, body, status, attempts, max_attempts, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)`,
		n.ID, n.Kind, n.Recipient, n.Body, n.Status, n.MaxAttempts, n.NextAttemptAt, n.CreatedAt, n.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue notification: %w", err)
	}
	return n, nil
}

// Drain attempts every due message once. Failures reschedule with backoff
// until the attempt budget runs out.
func (q *Queue) Drain(ctx context.Context) error {
	due, err := q.listDue(time.Now().Unix(), 50)
	if err != nil {
		return err
	}

	for _, n := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		q.attempt(ctx, n)
	}
	return nil
}

func (q *Queue) attempt(ctx context.Context, n *Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := q.sender.Send(sendCtx, n)
	cancel()

	if err == nil {
		q.markDelivered(n)
		return
	}
	q.markFailed(n, err)
}

func (q *Queue) markDelivered(n *Notification) {
	_, err := q.db.Exec(
		"UPDATE notifications SET status = ?, attempts = attempts + 1, updated_at = ? WHERE id = ?",
		StatusDelivered, time.Now().Unix(), n.ID,
	)
	if err != nil {
		q.log.Error().Err(err).Str("notification", n.ID).Msg("Failed to mark delivered")
		return
	}
	q.log.Info().Str("notification", n.ID).Str("kind", n.Kind).Msg("Notification delivered")
}

func (q *Queue) markFailed(n *Notification, sendErr error) {
	attempts := n.Attempts + 1
	now := time.Now()

	status := StatusRetrying
	nextAttempt := now.Add(retryDelay(attempts)).Unix()
	if attempts >= n.MaxAttempts {
		status = StatusExhausted
		nextAttempt = 0
	}

	errStr := sendErr.Error()
	_, err := q.db.Exec(
		"UPDATE notifications SET status = ?, attempts = ?, last_error = ?, next_attempt_at = ?, updated_at = ? WHERE id = ?",
		status, attempts, errStr, nextAttempt, now.Unix(), n.ID,
	)
	if err != nil {
		q.log.Error().Err(err).Str("notification", n.ID).Msg("Failed to record delivery failure")
		return
	}

	if status == StatusExhausted {
		q.log.Error().
			Str("notification", n.ID).
			Int("attempts", attempts).
			Str("last_error", errStr).
			Msg("Notification exhausted its retry budget")
	} else {
		q.log.Warn().
			Str("notification", n.ID).
			Int("attempt", attempts).
			Msg("Notification delivery failed, will retry")
	}
}

// retryDelay backs off 30s, 60s, 120s, ...
func retryDelay(attempts int) time.Duration {
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
	}
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}

func (q *Queue) listDue(now int64, limit int) ([]*Notification, error) {
	rows, err := q.db.Query(`
		SELECT id, kind, recipient, body, status, attempts, max_attempts, last_error, next_attempt_at, created_at, updated_at
		FROM notifications
		WHERE status IN (?, ?) AND next_attempt_at <= ?
		ORDER BY next_attempt_at LIMIT ?`,
		StatusPending, StatusRetrying, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due notifications: %w", err)
	}
	defer rows.Close()

	var due []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Body, &n.Status, &n.Attempts, &n.MaxAttempts, &n.LastError, &n.NextAttemptAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		due = append(due, &n)
	}
	return due, rows.Err()
}

// List returns recent notifications for the admin view, newest first.
func (q *Queue) List(limit int) ([]*Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.Query(`
		SELECT id, kind, recipient, body, status, attempts, max_attempts, last_error, next_attempt_at, created_at, updated_at
		FROM notifications ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var result []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Body, &n.Status, &n.Attempts, &n.MaxAttempts, &n.LastError, &n.NextAttemptAt, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &n)
	}
	return result, rows.Err()
}

// Get fetches one notification, nil when not found.
func (q *Queue) Get(id string) (*Notification, error) {
	row := q.db.QueryRow(`
		SELECT id, kind, recipient, body, status, attempts, max_attempts, last_error, next_attempt_at, created_at, updated_at
		FROM notifications WHERE id = ?`, id)
	var n Notification
	err := row.Scan(&n.ID, &n.Kind, &n.Recipient, &n.Body, &n.Status, &n.Attempts, &n.MaxAttempts, &n.LastError, &n.NextAttemptAt, &n.CreatedAt, &n.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification %s: %w", id, err)
	}
	return &n, nil
}
