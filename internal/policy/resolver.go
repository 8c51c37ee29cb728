package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// CancellationPolicy holds the tenant's cancellation terms. It is derived
// from tenant settings on every read, never persisted on its own.
type CancellationPolicy struct {
	FreeCancellationHours      int
	LateCancellationFeePercent int
	NoShowFeePercent           int
}

// Defaults used when a tenant has not configured a cancellation window.
const (
	DefaultFreeCancellationHours      = 24
	DefaultLateCancellationFeePercent = 50
	DefaultNoShowFeePercent           = 100
)

// DefaultPolicy returns the platform-wide fallback policy.
func DefaultPolicy() CancellationPolicy {
	return CancellationPolicy{
		FreeCancellationHours:      DefaultFreeCancellationHours,
		LateCancellationFeePercent: DefaultLateCancellationFeePercent,
		NoShowFeePercent:           DefaultNoShowFeePercent,
	}
}

// DB is the query subset the resolver needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Resolver reads a tenant's cancellation policy.
type Resolver struct {
	db DB
}

// NewResolver creates a policy resolver backed by pgx.
func NewResolver(db DB) *Resolver {
	if db == nil {
		panic("policy: db required")
	}
	return &Resolver{db: db}
}

// CancellationPolicy returns the tenant's policy, falling back to defaults
// for any unset field and for unknown tenants. A missing policy is never an
// error; only infrastructure failures propagate.
func (r *Resolver) CancellationPolicy(ctx context.Context, tenantID string) (CancellationPolicy, error) {
	query := `
		SELECT cancellation_window_hours, late_cancellation_fee_percent, no_show_fee_percent
		FROM tenants
		WHERE id = $1
	`
	var windowHours, lateFee, noShowFee *int
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&windowHours, &lateFee, &noShowFee)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DefaultPolicy(), nil
		}
		return CancellationPolicy{}, fmt.Errorf("policy: tenant lookup failed: %w", err)
	}

	p := DefaultPolicy()
	if windowHours != nil && *windowHours > 0 {
		p.FreeCancellationHours = *windowHours
	}
	if lateFee != nil {
		p.LateCancellationFeePercent = *lateFee
	}
	if noShowFee != nil {
		p.NoShowFeePercent = *noShowFee
	}
	return p, nil
}
