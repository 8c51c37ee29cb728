package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists payments and their lifecycle transitions.
type Repository struct {
	db DB
}

// NewRepository creates a repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("payments: db required")
	}
	return &Repository{db: db}
}

const paymentColumns = `
	id, tenant_id, order_id, appointment_id, payment_method, amount::text,
	currency, status, payment_gateway, gateway_payment_id, gateway_session_id,
	error_message, paid_at, processed_at, created_at, updated_at
`

// LatestCompletedForAppointment returns the most recent completed payment for
// the appointment, or nil when nothing was paid. An unpaid appointment is a
// normal case, not an error.
func (r *Repository) LatestCompletedForAppointment(ctx context.Context, tenantID string, appointmentID int64) (*Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE tenant_id = $1 AND appointment_id = $2 AND status = 'completed'
		ORDER BY created_at DESC
		LIMIT 1
	`
	p, err := scanPayment(r.db.QueryRow(ctx, query, tenantID, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("payments: completed lookup failed: %w", err)
	}
	return p, nil
}

// GetBySession fetches a payment by gateway session/order identifier scoped
// to the tenant. The tenant scoping is the multi-tenant isolation boundary
// for webhook processing and must never be bypassed.
func (r *Repository) GetBySession(ctx context.Context, tenantID, sessionID string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tenant_id = $1 AND gateway_session_id = $2`
	p, err := scanPayment(r.db.QueryRow(ctx, query, tenantID, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("payments: session lookup failed: %w", err)
	}
	return p, nil
}

// UpdateStatus transitions a payment and records the gateway payment id when
// the gateway supplies one. A transition to the current status is a no-op
// write, which keeps webhook re-delivery safe.
func (r *Repository) UpdateStatus(ctx context.Context, tenantID string, id int64, status Status, gatewayPaymentID string) error {
	query := `
		UPDATE payments
		SET status = $1,
		    gateway_payment_id = COALESCE(NULLIF($2, ''), gateway_payment_id),
		    error_message = CASE WHEN $1 = 'completed' THEN NULL ELSE error_message END,
		    processed_at = now(),
		    updated_at = now()
		WHERE id = $3 AND tenant_id = $4
	`
	ct, err := r.db.Exec(ctx, query, string(status), gatewayPaymentID, id, tenantID)
	if err != nil {
		return fmt.Errorf("payments: status update failed: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkRefunded moves a fully refunded payment into its terminal state.
func (r *Repository) MarkRefunded(ctx context.Context, tenantID string, id int64) error {
	return r.UpdateStatus(ctx, tenantID, id, StatusRefunded, "")
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var (
		p          Payment
		amount     string
		method     *string
		status     string
		gateway    *string
		paymentID  *string
		sessionID  *string
		errMessage *string
	)
	err := row.Scan(
		&p.ID,
		&p.TenantID,
		&p.OrderID,
		&p.AppointmentID,
		&method,
		&amount,
		&p.Currency,
		&status,
		&gateway,
		&paymentID,
		&sessionID,
		&errMessage,
		&p.PaidAt,
		&p.ProcessedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("payments: bad amount %q: %w", amount, err)
	}
	p.Status = Status(status)
	if method != nil {
		p.Method = *method
	}
	if gateway != nil {
		p.Gateway = Gateway(*gateway)
	}
	if paymentID != nil {
		p.GatewayPaymentID = *paymentID
	}
	if sessionID != nil {
		p.GatewaySessionID = *sessionID
	}
	if errMessage != nil {
		p.ErrorMessage = *errMessage
	}
	return &p, nil
}
