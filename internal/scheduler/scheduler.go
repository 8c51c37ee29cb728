package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

var schedulerTracer = otel.Tracer("salon.internal.scheduler")

// ReminderStore is the slice of the appointments repository the scheduler
// needs.
type ReminderStore interface {
	ListDueReminders(ctx context.Context, from, to time.Time) ([]*appointments.Appointment, error)
	MarkReminderSent(ctx context.Context, tenantID string, id int64, at time.Time) error
}

// ReminderSender delivers the reminder email.
type ReminderSender interface {
	SendAppointmentReminder(ctx context.Context, appt *appointments.Appointment) error
}

// Scheduler periodically scans for confirmed appointments entering the
// reminder window and sends each customer one reminder. An appointment is
// marked only after a successful send, so a failed send is retried on the
// next sweep.
type Scheduler struct {
	store    ReminderStore
	sender   ReminderSender
	interval time.Duration
	window   time.Duration
	now      func() time.Time
	logger   *logging.Logger
	done     chan struct{}
}

// New wires the scheduler. now may be nil, in which case the system clock is
// used.
func New(store ReminderStore, sender ReminderSender, interval, window time.Duration, now func() time.Time, logger *logging.Logger) *Scheduler {
	if store == nil {
		panic("scheduler: reminder store required")
	}
	if sender == nil {
		panic("scheduler: reminder sender required")
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if window <= 0 {
		window = 24 * time.Hour
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		store:    store,
		sender:   sender,
		interval: interval,
		window:   window,
		now:      now,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	s.logger.Info("reminder scheduler started", "interval", s.interval.String(), "window", s.window.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Wait blocks until the loop started by Start has exited.
func (s *Scheduler) Wait() {
	<-s.done
}

// Sweep sends reminders for every appointment starting within the window
// that has not been reminded yet. One failed send does not stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	ctx, span := schedulerTracer.Start(ctx, "scheduler.sweep")
	defer span.End()

	now := s.now().UTC()
	due, err := s.store.ListDueReminders(ctx, now, now.Add(s.window))
	if err != nil {
		s.logger.Error("reminder scan failed", "error", err)
		return
	}
	span.SetAttributes(attribute.Int("salon.reminders_due", len(due)))

	sent := 0
	for _, appt := range due {
		if err := s.sender.SendAppointmentReminder(ctx, appt); err != nil {
			s.logger.Error("reminder send failed",
				"tenant_id", appt.TenantID,
				"appointment_id", appt.ID,
				"error", err,
			)
			continue
		}
		if err := s.store.MarkReminderSent(ctx, appt.TenantID, appt.ID, now); err != nil {
			s.logger.Error("reminder mark failed",
				"tenant_id", appt.TenantID,
				"appointment_id", appt.ID,
				"error", err,
			)
			continue
		}
		sent++
	}
	if len(due) > 0 {
		s.logger.Info("reminder sweep complete", "due", len(due), "sent", sent)
	}
}
