package appointments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

var testDate = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

func overlapRows(id int64, start, end int, customer string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "customer_id", "employee_id", "appointment_date",
		"start_minute", "end_minute", "status", "customer_name",
	}).AddRow(id, "t-1", int64(7), int64(3), testDate, start, end, "confirmed", customer)
}

func emptyOverlapRows() *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "tenant_id", "customer_id", "employee_id", "appointment_date",
		"start_minute", "end_minute", "status", "customer_name",
	})
}

func TestFindConflictFreeSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnRows(emptyOverlapRows())

	detector := NewDetector(NewRepository(mock))
	existing, err := detector.FindConflict(context.Background(), "t-1", 3, testDate, 600, 645, 0)
	if err != nil {
		t.Fatalf("FindConflict: %v", err)
	}
	if existing != nil {
		t.Fatalf("expected free slot, got conflict with %d", existing.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestBookReturnsConflictWithDetails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnRows(overlapRows(42, 630, 690, "Kari Nordmann"))

	repo := NewRepository(mock)
	svc := NewService(repo, NewDetector(repo), nil)

	_, err = svc.Book(context.Background(), &BookingInput{
		TenantID:   "t-1",
		CustomerID: 9,
		EmployeeID: 3,
		Date:       testDate,
		StartTime:  600,
		EndTime:    645,
	})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Existing.ID != 42 {
		t.Fatalf("expected conflicting appointment 42, got %d", conflict.Existing.ID)
	}
	if conflict.Existing.CustomerName != "Kari Nordmann" {
		t.Fatalf("expected customer name on conflict, got %q", conflict.Existing.CustomerName)
	}
	if conflict.Existing.TimeRange() != "10:30-11:30" {
		t.Fatalf("expected time range on conflict, got %s", conflict.Existing.TimeRange())
	}
}

func TestBookPersistsWhenFree(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnRows(emptyOverlapRows())
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs("t-1", int64(9), int64(3), testDate, 600, 645, "pending", "", (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(77), now, now))

	repo := NewRepository(mock)
	svc := NewService(repo, NewDetector(repo), nil)

	appt, err := svc.Book(context.Background(), &BookingInput{
		TenantID:   "t-1",
		CustomerID: 9,
		EmployeeID: 3,
		Date:       testDate,
		StartTime:  600,
		EndTime:    645,
	})
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if appt.ID != 77 {
		t.Fatalf("expected id 77, got %d", appt.ID)
	}
	if appt.Status != StatusPending {
		t.Fatalf("expected pending status, got %s", appt.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// Rescheduling onto a slot held by another booking is rejected with the
// existing appointment attached; rescheduling onto the appointment's own
// current slot must not self-conflict.
func TestRescheduleConflictAndSelfSlot(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	repo := NewRepository(mock)
	svc := NewService(repo, NewDetector(repo), nil)
	now := time.Now()

	apptRows := func() *pgxmock.Rows {
		return pgxmock.NewRows([]string{
			"id", "tenant_id", "customer_id", "employee_id", "appointment_date",
			"start_minute", "end_minute", "status", "cancellation_reason", "canceled_by",
			"canceled_at", "is_late_cancellation", "notes", "recurrence_rule_id",
			"reminder_sent_at", "created_at", "updated_at",
		}).AddRow(int64(5), "t-1", int64(9), int64(3), testDate, 600, 645, "confirmed",
			nil, nil, nil, false, nil, nil, nil, now, now)
	}

	// Occupied target slot -> conflict.
	mock.ExpectQuery(`SELECT .* FROM appointments WHERE id`).
		WithArgs(int64(5), "t-1").
		WillReturnRows(apptRows())
	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 780, 720, int64(5)).
		WillReturnRows(overlapRows(42, 720, 780, "Ola Hansen"))

	_, err = svc.Reschedule(context.Background(), "t-1", 5, 3, testDate, 720, 780)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
	if conflict.Existing.TimeRange() != "12:00-13:00" {
		t.Fatalf("conflict missing time range, got %s", conflict.Existing.TimeRange())
	}

	// Same appointment, own slot: the overlap query excludes id 5 and the
	// update proceeds.
	mock.ExpectQuery(`SELECT .* FROM appointments WHERE id`).
		WithArgs(int64(5), "t-1").
		WillReturnRows(apptRows())
	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(5)).
		WillReturnRows(emptyOverlapRows())
	mock.ExpectExec(`UPDATE appointments`).
		WithArgs(int64(3), testDate, 600, 645, int64(5), "t-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`SELECT .* FROM appointments WHERE id`).
		WithArgs(int64(5), "t-1").
		WillReturnRows(apptRows())

	if _, err := svc.Reschedule(context.Background(), "t-1", 5, 3, testDate, 600, 645); err != nil {
		t.Fatalf("self-slot reschedule should not conflict: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// Two requests can pass the overlap check for the same slot; the exclusion
// constraint rejects the loser's insert and the caller still gets a conflict
// with the winning appointment attached.
func TestBookRaceLoserGetsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnRows(emptyOverlapRows())
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs("t-1", int64(9), int64(3), testDate, 600, 645, "pending", "", (*int64)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23P01", ConstraintName: "appointments_no_overlap"})
	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnRows(overlapRows(42, 600, 660, "Kari Nordmann"))

	repo := NewRepository(mock)
	svc := NewService(repo, NewDetector(repo), nil)

	_, err = svc.Book(context.Background(), &BookingInput{
		TenantID:   "t-1",
		CustomerID: 9,
		EmployeeID: 3,
		Date:       testDate,
		StartTime:  600,
		EndTime:    645,
	})

	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError after losing the race, got %v", err)
	}
	if conflict.Existing.ID != 42 || conflict.Existing.CustomerName != "Kari Nordmann" {
		t.Fatalf("conflict missing winner details: %+v", conflict.Existing)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

// When the winner cannot be fetched after a lost race, the caller still gets
// a conflict-class error rather than a raw constraint violation.
func TestBookRaceWithoutWinnerLookupIsSlotTaken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnRows(emptyOverlapRows())
	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs("t-1", int64(9), int64(3), testDate, 600, 645, "pending", "", (*int64)(nil)).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectQuery(`SELECT .* FROM appointments a`).
		WithArgs("t-1", int64(3), testDate, 645, 600, int64(0)).
		WillReturnError(errors.New("connection reset"))

	repo := NewRepository(mock)
	svc := NewService(repo, NewDetector(repo), nil)

	_, err = svc.Book(context.Background(), &BookingInput{
		TenantID:   "t-1",
		CustomerID: 9,
		EmployeeID: 3,
		Date:       testDate,
		StartTime:  600,
		EndTime:    645,
	})
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT .* FROM appointments WHERE id`).
		WithArgs(int64(404), "t-1").
		WillReturnError(pgx.ErrNoRows)

	repo := NewRepository(mock)
	if _, err := repo.GetByID(context.Background(), "t-1", 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
