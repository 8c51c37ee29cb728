package payments

import (
	"context"

	"github.com/fagerlund/salon-platform/pkg/logging"
)

// VippsRefunder stands in for the Vipps ePayment refund API. Refunds against
// Vipps captures are not automated yet, so it reports a structured failure
// that lands in the refund ledger for manual follow-up.
type VippsRefunder struct {
	logger *logging.Logger
}

// NewVippsRefunder creates the placeholder refunder.
func NewVippsRefunder(logger *logging.Logger) *VippsRefunder {
	if logger == nil {
		logger = logging.Default()
	}
	return &VippsRefunder{logger: logger}
}

func (v *VippsRefunder) Refund(ctx context.Context, req RefundRequest) RefundResult {
	v.logger.Warn("vipps refund requires manual processing",
		"tenant_id", req.Payment.TenantID,
		"payment_id", req.Payment.ID,
		"amount", req.Amount.String(),
	)
	return RefundResult{
		ErrorMessage: "vipps refunds are not automated; process manually in the Vipps portal",
	}
}
