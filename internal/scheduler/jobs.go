package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/auth"
	"github.com/mvalderrama/electrocaja/internal/modules/cashbox"
	"github.com/mvalderrama/electrocaja/internal/notify"
)

// AutoCloseSchedule runs the end-of-day sweep just before midnight so no
// drawer crosses a business date while still open.
const AutoCloseSchedule = "55 23 * * *"

// NotifyDrainSchedule retries queued notifications every minute.
const NotifyDrainSchedule = "* * * * *"

// AutoCloseJob freezes drawers left open at end of day and notifies the
// responsible users over the message queue.
type AutoCloseJob struct {
	cashbox *cashbox.Service
	queue   *notify.Queue
	users   *auth.UserRepository
	log     zerolog.Logger
}

// NewAutoCloseJob creates the end-of-day sweep job.
func NewAutoCloseJob(cashboxService *cashbox.Service, queue *notify.Queue, users *auth.UserRepository, log zerolog.Logger) *AutoCloseJob {
	return &AutoCloseJob{
		cashbox: cashboxService,
		queue:   queue,
		users:   users,
		log:     log.With().Str("job", "auto_close").Logger(),
	}
}

// Name implements Job.
func (j *AutoCloseJob) Name() string { return "auto_close_drawers" }

// Run implements Job.
func (j *AutoCloseJob) Run() error {
	frozen, err := j.cashbox.AutoClosePending("end-of-day")
	if err != nil {
		return err
	}
	if len(frozen) == 0 {
		j.log.Debug().Msg("No open drawers at end of day")
		return nil
	}

	j.log.Warn().Int("drawers", len(frozen)).Msg("Drawers auto-closed at end of day")

	if j.queue == nil {
		return nil
	}
	for _, d := range frozen {
		user, err := j.users.GetByName(d.OpenedBy)
		if err != nil || user == nil || user.Phone == nil {
			j.log.Warn().Str("user", d.OpenedBy).Msg("No phone on file for auto-close notification")
			continue
		}
		body := fmt.Sprintf(
			"Drawer %s (opened %s) was auto-closed at end of day. A physical count is required before the next open.",
			d.ID, time.Unix(d.OpenedAt, 0).Format("15:04"),
		)
		if _, err := j.queue.Enqueue(notify.KindWhatsAppMessage, *user.Phone, body); err != nil {
			j.log.Error().Err(err).Str("drawer", d.ID).Msg("Failed to queue auto-close notification")
		}
	}
	return nil
}

// NotifyDrainJob flushes the notification retry queue.
type NotifyDrainJob struct {
	queue *notify.Queue
	log   zerolog.Logger
}

// NewNotifyDrainJob creates the queue drain job.
func NewNotifyDrainJob(queue *notify.Queue, log zerolog.Logger) *NotifyDrainJob {
	return &NotifyDrainJob{
		queue: queue,
		log:   log.With().Str("job", "notify_drain").Logger(),
	}
}

// Name implements Job.
func (j *NotifyDrainJob) Name() string { return "notify_drain" }

// Run implements Job.
func (j *NotifyDrainJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()
	return j.queue.Drain(ctx)
}
