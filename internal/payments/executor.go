package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fagerlund/salon-platform/pkg/logging"
)

var paymentsTracer = otel.Tracer("salon.internal.payments")

// RefundRequest asks a gateway to return money for a payment.
type RefundRequest struct {
	Payment *Payment
	// Amount to refund in currency units. May be less than the payment
	// amount when a cancellation fee applies.
	Amount decimal.Decimal
	Reason string
}

// Refund methods recorded in the ledger. Method names where the money moved,
// which is not always the gateway that took the payment: cash and card
// payments are returned over the counter, so their refunds are manual.
const (
	MethodStripe = "stripe"
	MethodVipps  = "vipps"
	MethodManual = "manual"
)

// RefundResult reports the gateway outcome. A declined or failed refund is
// data, not an error; errors are reserved for requests that never reached a
// decision.
type RefundResult struct {
	Success      bool
	Method       string
	RefundID     string
	ErrorMessage string
}

// Refunder executes a refund against a single gateway.
type Refunder interface {
	Refund(ctx context.Context, req RefundRequest) RefundResult
}

// Executor routes refund requests to the gateway that took the payment.
// Payments taken outside a gateway (cash, card terminal, manual) are settled
// in person, so the executor reports immediate success for them.
type Executor struct {
	stripe Refunder
	vipps  Refunder
	logger *logging.Logger
}

// NewExecutor wires the gateway refunders.
func NewExecutor(stripe, vipps Refunder, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Executor{stripe: stripe, vipps: vipps, logger: logger}
}

// Refund dispatches by gateway and never returns an error: every outcome is
// captured in the result so callers can record it in the refund ledger.
func (e *Executor) Refund(ctx context.Context, req RefundRequest) RefundResult {
	ctx, span := paymentsTracer.Start(ctx, "payments.refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.tenant_id", req.Payment.TenantID),
		attribute.String("salon.gateway", string(req.Payment.Gateway)),
	)

	var result RefundResult
	switch {
	case req.Payment.Gateway == GatewayStripe && req.Payment.GatewayPaymentID != "":
		result = e.refundVia(ctx, e.stripe, req)
		result.Method = MethodStripe
	case req.Payment.Gateway == GatewayVipps:
		result = e.refundVia(ctx, e.vipps, req)
		result.Method = MethodVipps
	default:
		// Cash, card and manual payments are returned over the counter, as is
		// a Stripe payment that never recorded a payment intent.
		result = RefundResult{Success: true, Method: MethodManual, RefundID: fmt.Sprintf("manual-%d", req.Payment.ID)}
	}

	e.logger.Info("refund executed",
		"tenant_id", req.Payment.TenantID,
		"payment_id", req.Payment.ID,
		"gateway", string(req.Payment.Gateway),
		"method", result.Method,
		"amount", req.Amount.String(),
		"success", result.Success,
	)
	return result
}

func (e *Executor) refundVia(ctx context.Context, r Refunder, req RefundRequest) RefundResult {
	if r == nil {
		return RefundResult{
			ErrorMessage: fmt.Sprintf("no refunder configured for gateway %s", req.Payment.Gateway),
		}
	}
	return r.Refund(ctx, req)
}
