package payments

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/refund"

	"github.com/fagerlund/salon-platform/pkg/logging"
)

// StripeRefunder issues refunds through the Stripe API against the payment
// intent recorded at checkout.
type StripeRefunder struct {
	apiKey string
	logger *logging.Logger
}

// NewStripeRefunder creates a refunder using the given secret key.
func NewStripeRefunder(apiKey string, logger *logging.Logger) *StripeRefunder {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeRefunder{apiKey: apiKey, logger: logger}
}

// Refund issues a partial or full refund. Stripe wants the amount in the
// currency's minor unit.
func (s *StripeRefunder) Refund(ctx context.Context, req RefundRequest) RefundResult {
	if req.Payment.GatewayPaymentID == "" {
		return RefundResult{ErrorMessage: "payment has no stripe payment intent id"}
	}

	stripe.Key = s.apiKey

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Payment.GatewayPaymentID),
		Amount:        stripe.Int64(minorUnits(req.Amount)),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if req.Reason != "" {
		params.AddMetadata("cancellation_reason", req.Reason)
	}
	params.AddMetadata("tenant_id", req.Payment.TenantID)

	r, err := refund.New(params)
	if err != nil {
		s.logger.Error("stripe refund failed",
			"tenant_id", req.Payment.TenantID,
			"payment_id", req.Payment.ID,
			"error", err,
		)
		return RefundResult{ErrorMessage: err.Error()}
	}

	return RefundResult{Success: true, RefundID: r.ID}
}

// minorUnits converts a decimal currency amount to the integer minor unit
// (oere for NOK, cents for USD).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
