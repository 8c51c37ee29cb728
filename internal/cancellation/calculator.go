package cancellation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/internal/policy"
)

// Type says who initiated the cancellation and drives the fee rules.
type Type string

const (
	TypeCustomer Type = "customer"
	TypeStaff    Type = "staff"
	TypeNoShow   Type = "no_show"
)

// Valid reports whether t is a known cancellation type.
func (t Type) Valid() bool {
	switch t {
	case TypeCustomer, TypeStaff, TypeNoShow:
		return true
	}
	return false
}

// AppointmentStore is the slice of the appointments repository the
// cancellation flow needs.
type AppointmentStore interface {
	GetByID(ctx context.Context, tenantID string, id int64) (*appointments.Appointment, error)
	Cancel(ctx context.Context, tenantID string, id int64, in appointments.CancelInput) error
}

// PaymentStore is the slice of the payments repository the cancellation
// flow needs.
type PaymentStore interface {
	LatestCompletedForAppointment(ctx context.Context, tenantID string, appointmentID int64) (*payments.Payment, error)
	MarkRefunded(ctx context.Context, tenantID string, id int64) error
}

// PolicySource resolves the tenant's cancellation terms.
type PolicySource interface {
	CancellationPolicy(ctx context.Context, tenantID string) (policy.CancellationPolicy, error)
}

// Calculation is the refund math for one cancellation. Amounts are zero when
// the appointment was never paid.
type Calculation struct {
	Appointment        *appointments.Appointment
	Payment            *payments.Payment
	At                 time.Time
	OriginalAmount     decimal.Decimal
	RefundAmount       decimal.Decimal
	FeePercent         int
	FeeAmount          decimal.Decimal
	IsLateCancellation bool
}

// Calculator derives the refund owed for a cancellation from the tenant's
// policy and the appointment's paid amount.
type Calculator struct {
	appointments AppointmentStore
	payments     PaymentStore
	policies     PolicySource
	now          func() time.Time
}

// NewCalculator wires the calculator. now may be nil, in which case the
// system clock is used.
func NewCalculator(appts AppointmentStore, pays PaymentStore, policies PolicySource, now func() time.Time) *Calculator {
	if appts == nil {
		panic("cancellation: appointment store required")
	}
	if pays == nil {
		panic("cancellation: payment store required")
	}
	if policies == nil {
		panic("cancellation: policy source required")
	}
	if now == nil {
		now = time.Now
	}
	return &Calculator{appointments: appts, payments: pays, policies: policies, now: now}
}

var hundred = decimal.NewFromInt(100)

// Calculate computes the refund for cancelling the appointment now. An
// unpaid appointment yields an all-zero calculation; only missing
// appointments and infrastructure failures are errors.
func (c *Calculator) Calculate(ctx context.Context, tenantID string, appointmentID int64, cancelType Type) (*Calculation, error) {
	appt, err := c.appointments.GetByID(ctx, tenantID, appointmentID)
	if err != nil {
		return nil, err
	}

	pol, err := c.policies.CancellationPolicy(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("cancellation: resolve policy: %w", err)
	}

	now := c.now().UTC()
	deadline := appt.StartsAt().Add(-time.Duration(pol.FreeCancellationHours) * time.Hour)
	calc := &Calculation{
		Appointment:        appt,
		At:                 now,
		IsLateCancellation: now.After(deadline),
	}

	payment, err := c.payments.LatestCompletedForAppointment(ctx, tenantID, appointmentID)
	if err != nil {
		return nil, fmt.Errorf("cancellation: load payment: %w", err)
	}
	if payment == nil {
		return calc, nil
	}

	switch {
	case cancelType == TypeNoShow:
		calc.FeePercent = pol.NoShowFeePercent
	case calc.IsLateCancellation:
		calc.FeePercent = pol.LateCancellationFeePercent
	}

	calc.Payment = payment
	calc.OriginalAmount = payment.Amount
	calc.FeeAmount = payment.Amount.
		Mul(decimal.NewFromInt(int64(calc.FeePercent))).
		Div(hundred).
		Round(2)
	calc.RefundAmount = payment.Amount.Sub(calc.FeeAmount)
	return calc, nil
}
