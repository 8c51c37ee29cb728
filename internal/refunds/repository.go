package refunds

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DB is the subset of pgxpool.Pool the repository needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists the refund ledger. Rows are inserted, never updated.
type Repository struct {
	db DB
}

// NewRepository creates a refund ledger repository backed by pgx.
func NewRepository(db DB) *Repository {
	if db == nil {
		panic("refunds: db required")
	}
	return &Repository{db: db}
}

// InsertInput is the data for one ledger row.
type InsertInput struct {
	TenantID        string
	AppointmentID   int64
	PaymentID       int64
	Amount          decimal.Decimal
	Method          string
	Status          Status
	GatewayRefundID string
	ErrorMessage    string
	Reason          string
}

// Insert appends a refund attempt to the ledger and returns its id.
func (r *Repository) Insert(ctx context.Context, in InsertInput) (int64, error) {
	query := `
		INSERT INTO refunds (
			tenant_id, appointment_id, payment_id, amount, refund_method,
			status, gateway_refund_id, error_message, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err := r.db.QueryRow(ctx, query,
		in.TenantID, in.AppointmentID, in.PaymentID, in.Amount.String(), in.Method,
		string(in.Status), in.GatewayRefundID, in.ErrorMessage, in.Reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("refunds: insert failed: %w", err)
	}
	return id, nil
}

// HasCompleted reports whether a completed refund already exists for the
// payment.
func (r *Repository) HasCompleted(ctx context.Context, tenantID string, paymentID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM refunds WHERE tenant_id = $1 AND payment_id = $2 AND status = 'completed')`
	var exists bool
	if err := r.db.QueryRow(ctx, query, tenantID, paymentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("refunds: existence check failed: %w", err)
	}
	return exists, nil
}

// ListForTenant returns the tenant's refund history, newest first. When
// appointmentID is non-zero the history is filtered to that appointment.
func (r *Repository) ListForTenant(ctx context.Context, tenantID string, appointmentID int64, limit int) ([]*Refund, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, tenant_id, appointment_id, payment_id, amount::text, refund_method,
		       status, gateway_refund_id, error_message, reason, created_at
		FROM refunds
		WHERE tenant_id = $1 AND ($2 = 0 OR appointment_id = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, tenantID, appointmentID, limit)
	if err != nil {
		return nil, fmt.Errorf("refunds: list failed: %w", err)
	}
	defer rows.Close()

	var out []*Refund
	for rows.Next() {
		var (
			rf        Refund
			amount    string
			gatewayID *string
			errMsg    *string
			reason    *string
		)
		err := rows.Scan(
			&rf.ID, &rf.TenantID, &rf.AppointmentID, &rf.PaymentID, &amount, &rf.Method,
			&rf.Status, &gatewayID, &errMsg, &reason, &rf.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("refunds: scan failed: %w", err)
		}
		rf.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("refunds: bad amount %q: %w", amount, err)
		}
		if gatewayID != nil {
			rf.GatewayRefundID = *gatewayID
		}
		if errMsg != nil {
			rf.ErrorMessage = *errMsg
		}
		if reason != nil {
			rf.Reason = *reason
		}
		out = append(out, &rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refunds: rows failed: %w", err)
	}
	return out, nil
}
