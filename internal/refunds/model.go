package refunds

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status records whether the gateway accepted the refund.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Refund is one row in the append-only refund ledger. Every refund attempt
// is recorded, including failures, so the ledger is the audit trail for
// money leaving the platform.
type Refund struct {
	ID              int64
	TenantID        string
	AppointmentID   int64
	PaymentID       int64
	Amount          decimal.Decimal
	Method          string
	Status          Status
	GatewayRefundID string
	ErrorMessage    string
	Reason          string
	CreatedAt       time.Time
}

// ErrAlreadyRefunded is returned when a completed refund already exists for
// the payment. Each payment is refunded at most once.
var ErrAlreadyRefunded = errors.New("refunds: payment already refunded")
