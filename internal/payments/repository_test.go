package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
)

func paymentRows(id int64, amount, status, gateway string) *pgxmock.Rows {
	now := time.Now()
	apptID := int64(42)
	method := "online"
	paymentID := "pi_123"
	sessionID := "cs_456"
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "order_id", "appointment_id", "payment_method", "amount",
		"currency", "status", "payment_gateway", "gateway_payment_id", "gateway_session_id",
		"error_message", "paid_at", "processed_at", "created_at", "updated_at",
	}).AddRow(
		id, "t-1", (*int64)(nil), &apptID, &method, amount,
		"NOK", status, &gateway, &paymentID, &sessionID,
		(*string)(nil), &now, (*time.Time)(nil), now, now,
	)
}

func TestLatestCompletedForAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM payments`).
		WithArgs("t-1", int64(42)).
		WillReturnRows(paymentRows(7, "500.00", "completed", "stripe"))

	repo := NewRepository(mock)
	p, err := repo.LatestCompletedForAppointment(context.Background(), "t-1", 42)
	if err != nil {
		t.Fatalf("LatestCompletedForAppointment: %v", err)
	}
	if p == nil || p.ID != 7 {
		t.Fatalf("expected payment 7, got %+v", p)
	}
	if p.Amount.String() != "500" {
		t.Fatalf("expected amount 500, got %s", p.Amount)
	}
	if p.Gateway != GatewayStripe || p.Status != StatusCompleted {
		t.Fatalf("unexpected gateway/status: %s/%s", p.Gateway, p.Status)
	}
}

func TestLatestCompletedForAppointmentNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM payments`).
		WithArgs("t-1", int64(42)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(mock)
	p, err := repo.LatestCompletedForAppointment(context.Background(), "t-1", 42)
	if err != nil {
		t.Fatalf("unpaid appointment must not error: %v", err)
	}
	if p != nil {
		t.Fatalf("expected nil payment, got %+v", p)
	}
}

func TestGetBySessionNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM payments`).
		WithArgs("t-1", "cs_missing").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(mock)
	if _, err := repo.GetBySession(context.Background(), "t-1", "cs_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateStatusScopedToTenant(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectExec(`UPDATE payments`).
		WithArgs("completed", "pi_789", int64(7), "t-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	repo := NewRepository(mock)
	if err := repo.UpdateStatus(context.Background(), "t-1", 7, StatusCompleted, "pi_789"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	mock.ExpectExec(`UPDATE payments`).
		WithArgs("refunded", "", int64(7), "t-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.MarkRefunded(context.Background(), "t-2", 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("wrong tenant must get ErrNotFound, got %v", err)
	}
}
