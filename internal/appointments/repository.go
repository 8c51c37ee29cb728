package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the repository needs. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments and recurrence rules.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("appointments: db required")
	}
	return &Repository{db: db}
}

const appointmentColumns = `
	id, tenant_id, customer_id, employee_id, appointment_date,
	start_minute, end_minute, status, cancellation_reason, canceled_by,
	canceled_at, is_late_cancellation, notes, recurrence_rule_id,
	reminder_sent_at, created_at, updated_at
`

// Create inserts a new appointment row. A lost race against a concurrent
// booking surfaces as ErrSlotTaken via the exclusion constraint.
func (r *Repository) Create(ctx context.Context, in *BookingInput) (*Appointment, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	status := in.Status
	if status == "" {
		status = StatusPending
	}

	query := `
		INSERT INTO appointments
			(tenant_id, customer_id, employee_id, appointment_date,
			 start_minute, end_minute, status, notes, recurrence_rule_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`
	appt := &Appointment{
		TenantID:         in.TenantID,
		CustomerID:       in.CustomerID,
		EmployeeID:       in.EmployeeID,
		Date:             in.Date,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Status:           status,
		Notes:            in.Notes,
		RecurrenceRuleID: in.recurrenceRuleID,
	}
	err := r.db.QueryRow(ctx, query,
		in.TenantID,
		in.CustomerID,
		in.EmployeeID,
		in.Date,
		int(in.StartTime),
		int(in.EndTime),
		string(status),
		in.Notes,
		in.recurrenceRuleID,
	).Scan(&appt.ID, &appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("appointments: insert failed: %w", err)
	}
	return appt, nil
}

// GetByID fetches an appointment scoped to the tenant.
func (r *Repository) GetByID(ctx context.Context, tenantID string, id int64) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 AND tenant_id = $2`
	appt, err := scanAppointment(r.db.QueryRow(ctx, query, id, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: select failed: %w", err)
	}
	return appt, nil
}

// FindOverlapping returns the first non-canceled appointment for the employee
// on the date whose half-open interval intersects [start, end), excluding
// excludeID when non-zero. The customer name is joined in for conflict
// messages. Returns nil when the slot is free.
func (r *Repository) FindOverlapping(ctx context.Context, tenantID string, employeeID int64, date time.Time, start, end TimeOfDay, excludeID int64) (*Appointment, error) {
	query := `
		SELECT a.id, a.tenant_id, a.customer_id, a.employee_id, a.appointment_date,
		       a.start_minute, a.end_minute, a.status,
		       COALESCE(c.first_name || ' ' || c.last_name, '')
		FROM appointments a
		LEFT JOIN customers c ON c.id = a.customer_id AND c.tenant_id = a.tenant_id
		WHERE a.tenant_id = $1
		  AND a.employee_id = $2
		  AND a.appointment_date = $3
		  AND a.status <> 'canceled'
		  AND a.start_minute < $4
		  AND a.end_minute > $5
		  AND ($6 = 0 OR a.id <> $6)
		ORDER BY a.start_minute
		LIMIT 1
	`
	var (
		appt          Appointment
		startMin      int
		endMin        int
		statusLiteral string
	)
	err := r.db.QueryRow(ctx, query, tenantID, employeeID, date, int(end), int(start), excludeID).Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.CustomerID,
		&appt.EmployeeID,
		&appt.Date,
		&startMin,
		&endMin,
		&statusLiteral,
		&appt.CustomerName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("appointments: overlap query failed: %w", err)
	}
	appt.StartTime = TimeOfDay(startMin)
	appt.EndTime = TimeOfDay(endMin)
	appt.Status = Status(statusLiteral)
	return &appt, nil
}

// CancelInput carries the terminal-state fields written by a cancellation.
type CancelInput struct {
	Status             Status
	CanceledBy         CanceledBy
	Reason             string
	IsLateCancellation bool
	CanceledAt         time.Time
}

// Cancel moves an appointment into canceled or no_show and records who, when
// and why.
func (r *Repository) Cancel(ctx context.Context, tenantID string, id int64, in CancelInput) error {
	query := `
		UPDATE appointments
		SET status = $1, canceled_by = $2, cancellation_reason = $3,
		    is_late_cancellation = $4, canceled_at = $5, updated_at = now()
		WHERE id = $6 AND tenant_id = $7
	`
	ct, err := r.db.Exec(ctx, query,
		string(in.Status), string(in.CanceledBy), in.Reason,
		in.IsLateCancellation, in.CanceledAt, id, tenantID)
	if err != nil {
		return fmt.Errorf("appointments: cancel update failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateStatus sets the lifecycle status without touching cancellation fields.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID string, id int64, status Status) error {
	query := `UPDATE appointments SET status = $1, updated_at = now() WHERE id = $2 AND tenant_id = $3`
	ct, err := r.db.Exec(ctx, query, string(status), id, tenantID)
	if err != nil {
		return fmt.Errorf("appointments: status update failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reschedule moves an appointment to a new employee/date/slot. The exclusion
// constraint backstops the conflict check here as well.
func (r *Repository) Reschedule(ctx context.Context, tenantID string, id int64, employeeID int64, date time.Time, start, end TimeOfDay) error {
	query := `
		UPDATE appointments
		SET employee_id = $1, appointment_date = $2, start_minute = $3,
		    end_minute = $4, updated_at = now()
		WHERE id = $5 AND tenant_id = $6
	`
	ct, err := r.db.Exec(ctx, query, employeeID, date, int(start), int(end), id, tenantID)
	if err != nil {
		if isExclusionViolation(err) {
			return ErrSlotTaken
		}
		return fmt.Errorf("appointments: reschedule failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDueReminders returns confirmed appointments starting inside [from, to)
// that have not yet had a reminder sent.
func (r *Repository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'confirmed'
		  AND reminder_sent_at IS NULL
		  AND appointment_date + make_interval(mins => start_minute) >= $1
		  AND appointment_date + make_interval(mins => start_minute) < $2
		ORDER BY appointment_date, start_minute
	`
	rows, err := r.db.Query(ctx, query, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: reminder query failed: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: reminder scan failed: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// MarkReminderSent stamps the reminder so the scan loop does not resend.
func (r *Repository) MarkReminderSent(ctx context.Context, tenantID string, id int64, at time.Time) error {
	query := `UPDATE appointments SET reminder_sent_at = $1 WHERE id = $2 AND tenant_id = $3`
	if _, err := r.db.Exec(ctx, query, at, id, tenantID); err != nil {
		return fmt.Errorf("appointments: mark reminder failed: %w", err)
	}
	return nil
}

// ListByRule returns every appointment generated from one recurrence rule.
func (r *Repository) ListByRule(ctx context.Context, tenantID string, ruleID int64) ([]*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE tenant_id = $1 AND recurrence_rule_id = $2
		ORDER BY appointment_date
	`
	rows, err := r.db.Query(ctx, query, tenantID, ruleID)
	if err != nil {
		return nil, fmt.Errorf("appointments: series query failed: %w", err)
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: series scan failed: %w", err)
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

// InsertRecurrenceRule persists the grouping row for a recurring series.
func (r *Repository) InsertRecurrenceRule(ctx context.Context, rule *RecurrenceRule) (int64, error) {
	query := `
		INSERT INTO recurrence_rules
			(tenant_id, customer_id, employee_id, service_id, frequency,
			 preferred_minute, duration_minutes, start_date, end_date, max_occurrences)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		rule.TenantID, rule.CustomerID, rule.EmployeeID, rule.ServiceID,
		string(rule.Frequency), int(rule.PreferredTime), rule.DurationMinutes,
		rule.StartDate, rule.EndDate, rule.MaxOccurrences,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("appointments: insert rule failed: %w", err)
	}
	return id, nil
}

// UpdateRuleOccurrences records how many instances a rule actually produced.
func (r *Repository) UpdateRuleOccurrences(ctx context.Context, tenantID string, ruleID int64, count int) error {
	query := `UPDATE recurrence_rules SET current_occurrences = $1 WHERE id = $2 AND tenant_id = $3`
	if _, err := r.db.Exec(ctx, query, count, ruleID, tenantID); err != nil {
		return fmt.Errorf("appointments: update rule occurrences failed: %w", err)
	}
	return nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		appt       Appointment
		startMin   int
		endMin     int
		status     string
		reason     *string
		canceledBy *string
		notes      *string
	)
	err := row.Scan(
		&appt.ID,
		&appt.TenantID,
		&appt.CustomerID,
		&appt.EmployeeID,
		&appt.Date,
		&startMin,
		&endMin,
		&status,
		&reason,
		&canceledBy,
		&appt.CanceledAt,
		&appt.IsLateCancellation,
		&notes,
		&appt.RecurrenceRuleID,
		&appt.ReminderSentAt,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	appt.StartTime = TimeOfDay(startMin)
	appt.EndTime = TimeOfDay(endMin)
	appt.Status = Status(status)
	if reason != nil {
		appt.CancellationReason = *reason
	}
	if canceledBy != nil {
		appt.CanceledBy = CanceledBy(*canceledBy)
	}
	if notes != nil {
		appt.Notes = *notes
	}
	return &appt, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
