package refunds

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
)

func TestInsertRecordsFailedAttempts(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`INSERT INTO refunds`).
		WithArgs("t-1", int64(42), int64(7), "250", "stripe",
			"failed", "", "card declined", "customer cancelled").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(3)))

	repo := NewRepository(mock)
	id, err := repo.Insert(context.Background(), InsertInput{
		TenantID:      "t-1",
		AppointmentID: 42,
		PaymentID:     7,
		Amount:        decimal.RequireFromString("250"),
		Method:        "stripe",
		Status:        StatusFailed,
		ErrorMessage:  "card declined",
		Reason:        "customer cancelled",
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if id != 3 {
		t.Fatalf("expected ledger id 3, got %d", id)
	}
}

func TestHasCompleted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("t-1", int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	repo := NewRepository(mock)
	done, err := repo.HasCompleted(context.Background(), "t-1", 7)
	if err != nil {
		t.Fatalf("HasCompleted: %v", err)
	}
	if !done {
		t.Fatal("expected completed refund to be found")
	}
}

func TestListForTenantFiltersByAppointment(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	now := time.Now()
	gatewayID := "re_1"
	mock.ExpectQuery(`SELECT .* FROM refunds`).
		WithArgs("t-1", int64(42), 50).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "tenant_id", "appointment_id", "payment_id", "amount", "refund_method",
			"status", "gateway_refund_id", "error_message", "reason", "created_at",
		}).AddRow(
			int64(3), "t-1", int64(42), int64(7), "250.00", "stripe",
			Status("completed"), &gatewayID, (*string)(nil), (*string)(nil), now,
		))

	repo := NewRepository(mock)
	list, err := repo.ListForTenant(context.Background(), "t-1", 42, 0)
	if err != nil {
		t.Fatalf("ListForTenant: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 refund, got %d", len(list))
	}
	if list[0].GatewayRefundID != "re_1" || !list[0].Amount.Equal(decimal.RequireFromString("250")) {
		t.Fatalf("unexpected refund row: %+v", list[0])
	}
}
