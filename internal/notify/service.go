package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// ErrNoRecipient is returned when the customer has no email address on file.
var ErrNoRecipient = errors.New("notify: customer has no email address")

// DB is the query subset the service needs to resolve recipients.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Service builds and sends appointment emails. Lookup failures and send
// failures surface as errors; callers on webhook and scheduler paths log
// them instead of failing their own work.
type Service struct {
	db     DB
	sender EmailSender
	logger *logging.Logger
}

// NewService wires the notification service.
func NewService(db DB, sender EmailSender, logger *logging.Logger) *Service {
	if db == nil {
		panic("notify: db required")
	}
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{db: db, sender: sender, logger: logger}
}

// SendAppointmentConfirmation emails the customer that the appointment is
// confirmed and paid.
func (s *Service) SendAppointmentConfirmation(ctx context.Context, appt *appointments.Appointment) error {
	email, name, err := s.recipient(ctx, appt.TenantID, appt.CustomerID)
	if err != nil {
		return err
	}
	msg := EmailMessage{
		To:      email,
		ToName:  name,
		Subject: "Your appointment is confirmed",
		Body: fmt.Sprintf(
			"Hi %s,\n\nYour appointment on %s at %s is confirmed. We look forward to seeing you!\n",
			name, appt.Date.Format("Monday 2 January 2006"), appt.StartTime.String(),
		),
	}
	return s.sender.Send(ctx, msg)
}

// SendAppointmentReminder emails the customer ahead of the appointment.
func (s *Service) SendAppointmentReminder(ctx context.Context, appt *appointments.Appointment) error {
	email, name, err := s.recipient(ctx, appt.TenantID, appt.CustomerID)
	if err != nil {
		return err
	}
	msg := EmailMessage{
		To:      email,
		ToName:  name,
		Subject: "Reminder: upcoming appointment",
		Body: fmt.Sprintf(
			"Hi %s,\n\nThis is a reminder of your appointment on %s at %s.\n",
			name, appt.Date.Format("Monday 2 January 2006"), appt.StartTime.String(),
		),
	}
	return s.sender.Send(ctx, msg)
}

// SendCancellationNotice emails the customer after a cancellation, including
// the refund amount when one was issued.
func (s *Service) SendCancellationNotice(ctx context.Context, appt *appointments.Appointment, refundNote string) error {
	email, name, err := s.recipient(ctx, appt.TenantID, appt.CustomerID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nYour appointment on %s at %s has been cancelled.\n",
		name, appt.Date.Format("Monday 2 January 2006"), appt.StartTime.String(),
	)
	if refundNote != "" {
		body += refundNote + "\n"
	}
	return s.sender.Send(ctx, EmailMessage{
		To:      email,
		ToName:  name,
		Subject: "Your appointment has been cancelled",
		Body:    body,
	})
}

func (s *Service) recipient(ctx context.Context, tenantID string, customerID int64) (string, string, error) {
	query := `SELECT email, first_name || ' ' || last_name FROM customers WHERE tenant_id = $1 AND id = $2`
	var email *string
	var name string
	err := s.db.QueryRow(ctx, query, tenantID, customerID).Scan(&email, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrNoRecipient
		}
		return "", "", fmt.Errorf("notify: customer lookup failed: %w", err)
	}
	if email == nil || *email == "" {
		return "", "", ErrNoRecipient
	}
	return *email, name, nil
}
