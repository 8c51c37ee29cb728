package payments

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the payment lifecycle state. Transitions only move forward,
// except the refund path to refunded.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// Gateway identifies how a payment was taken.
type Gateway string

const (
	GatewayStripe Gateway = "stripe"
	GatewayVipps  Gateway = "vipps"
	GatewayCash   Gateway = "cash"
	GatewayCard   Gateway = "card"
	GatewayManual Gateway = "manual"
)

// Payment is a tenant-scoped payment record, optionally linked to an
// appointment or order. Amounts are decimal currency units matching the
// persisted NUMERIC column.
type Payment struct {
	ID               int64
	TenantID         string
	OrderID          *int64
	AppointmentID    *int64
	Method           string
	Amount           decimal.Decimal
	Currency         string
	Status           Status
	Gateway          Gateway
	GatewayPaymentID string
	GatewaySessionID string
	ErrorMessage     string
	PaidAt           *time.Time
	ProcessedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Refundable reports whether a refund may be issued against this payment.
func (p *Payment) Refundable() bool {
	return p.Status == StatusCompleted
}

// ErrNotFound is returned when a payment does not exist for the tenant.
var ErrNotFound = errors.New("payments: not found")
