package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/fagerlund/salon-platform/internal/appointments"
)

type captureSender struct {
	sent []EmailMessage
	err  error
}

func (c *captureSender) Send(ctx context.Context, msg EmailMessage) error {
	c.sent = append(c.sent, msg)
	return c.err
}

func testAppointment() *appointments.Appointment {
	return &appointments.Appointment{
		ID:         42,
		TenantID:   "t-1",
		CustomerID: 9,
		Date:       time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		StartTime:  14 * 60,
		EndTime:    15 * 60,
	}
}

func TestSendAppointmentConfirmation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	email := "kari@example.no"
	mock.ExpectQuery(`SELECT email, .* FROM customers`).
		WithArgs("t-1", int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"email", "name"}).AddRow(&email, "Kari Nordmann"))

	sender := &captureSender{}
	svc := NewService(mock, sender, nil)
	if err := svc.SendAppointmentConfirmation(context.Background(), testAppointment()); err != nil {
		t.Fatalf("SendAppointmentConfirmation: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.To != "kari@example.no" || msg.ToName != "Kari Nordmann" {
		t.Fatalf("wrong recipient: %+v", msg)
	}
	if !strings.Contains(msg.Body, "Monday 15 June 2026") || !strings.Contains(msg.Body, "14:00") {
		t.Fatalf("body missing appointment details: %q", msg.Body)
	}
}

func TestSendSkipsCustomerWithoutEmail(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT email, .* FROM customers`).
		WithArgs("t-1", int64(9)).
		WillReturnRows(pgxmock.NewRows([]string{"email", "name"}).AddRow((*string)(nil), "Kari Nordmann"))

	sender := &captureSender{}
	svc := NewService(mock, sender, nil)
	err = svc.SendAppointmentReminder(context.Background(), testAppointment())
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("no email expected without a recipient")
	}
}

func TestSendUnknownCustomer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT email, .* FROM customers`).
		WithArgs("t-1", int64(9)).
		WillReturnError(pgx.ErrNoRows)

	svc := NewService(mock, &captureSender{}, nil)
	if err := svc.SendCancellationNotice(context.Background(), testAppointment(), ""); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}
