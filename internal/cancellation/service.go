package cancellation

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/internal/refunds"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

var cancelTracer = otel.Tracer("salon.internal.cancellation")

// Ledger is the slice of the refund ledger the orchestrator needs.
type Ledger interface {
	Insert(ctx context.Context, in refunds.InsertInput) (int64, error)
	HasCompleted(ctx context.Context, tenantID string, paymentID int64) (bool, error)
}

// RefundExecutor runs a refund against the payment's gateway.
type RefundExecutor interface {
	Refund(ctx context.Context, req payments.RefundRequest) payments.RefundResult
}

// Result is the outcome of a cancellation. A gateway that could not process
// the refund automatically still cancels the appointment; the Warning field
// tells staff what to do by hand.
type Result struct {
	Success            bool
	RefundProcessed    bool
	RefundAmount       decimal.Decimal
	IsLateCancellation bool
	Warning            string
}

// Service cancels appointments and settles any refund owed under the
// tenant's policy.
type Service struct {
	calculator   *Calculator
	appointments AppointmentStore
	payments     PaymentStore
	ledger       Ledger
	executor     RefundExecutor
	logger       *logging.Logger
}

// NewService wires the cancellation orchestrator.
func NewService(calc *Calculator, appts AppointmentStore, pays PaymentStore, ledger Ledger, executor RefundExecutor, logger *logging.Logger) *Service {
	if calc == nil {
		panic("cancellation: calculator required")
	}
	if appts == nil {
		panic("cancellation: appointment store required")
	}
	if pays == nil {
		panic("cancellation: payment store required")
	}
	if ledger == nil {
		panic("cancellation: ledger required")
	}
	if executor == nil {
		panic("cancellation: executor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		calculator:   calc,
		appointments: appts,
		payments:     pays,
		ledger:       ledger,
		executor:     executor,
		logger:       logger,
	}
}

// CancelWithRefund cancels the appointment and issues whatever refund the
// tenant's policy allows. The appointment transition is written before any
// gateway call so a gateway outage never leaves a live appointment that the
// customer believes is cancelled. Each payment is refunded at most once.
func (s *Service) CancelWithRefund(ctx context.Context, tenantID string, appointmentID int64, actingUserID, reason string, cancelType Type) (*Result, error) {
	ctx, span := cancelTracer.Start(ctx, "cancellation.cancel_with_refund")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.tenant_id", tenantID),
		attribute.String("salon.acting_user_id", actingUserID),
		attribute.String("salon.cancellation_type", string(cancelType)),
	)

	if !cancelType.Valid() {
		return nil, fmt.Errorf("cancellation: unknown type %q", cancelType)
	}

	calc, err := s.calculator.Calculate(ctx, tenantID, appointmentID, cancelType)
	if err != nil {
		return nil, err
	}

	wantRefund := calc.Payment != nil && calc.Payment.Refundable() && calc.RefundAmount.IsPositive()
	if wantRefund {
		done, err := s.ledger.HasCompleted(ctx, tenantID, calc.Payment.ID)
		if err != nil {
			return nil, err
		}
		if done {
			return nil, refunds.ErrAlreadyRefunded
		}
	}

	if err := s.appointments.Cancel(ctx, tenantID, appointmentID, cancelInput(calc, reason, cancelType)); err != nil {
		return nil, err
	}

	result := &Result{Success: true, IsLateCancellation: calc.IsLateCancellation}
	if !wantRefund {
		s.logger.Info("appointment cancelled without refund",
			"tenant_id", tenantID,
			"appointment_id", appointmentID,
			"type", string(cancelType),
			"paid", calc.Payment != nil,
		)
		return result, nil
	}

	refundRes := s.executor.Refund(ctx, payments.RefundRequest{
		Payment: calc.Payment,
		Amount:  calc.RefundAmount,
		Reason:  reason,
	})

	ledgerStatus := refunds.StatusCompleted
	if !refundRes.Success {
		ledgerStatus = refunds.StatusFailed
	}
	if _, err := s.ledger.Insert(ctx, refunds.InsertInput{
		TenantID:        tenantID,
		AppointmentID:   appointmentID,
		PaymentID:       calc.Payment.ID,
		Amount:          calc.RefundAmount,
		Method:          refundRes.Method,
		Status:          ledgerStatus,
		GatewayRefundID: refundRes.RefundID,
		ErrorMessage:    refundRes.ErrorMessage,
		Reason:          reason,
	}); err != nil {
		return nil, err
	}

	if refundRes.Success {
		result.RefundProcessed = true
		result.RefundAmount = calc.RefundAmount
		if calc.RefundAmount.GreaterThanOrEqual(calc.OriginalAmount) {
			if err := s.payments.MarkRefunded(ctx, tenantID, calc.Payment.ID); err != nil {
				return nil, err
			}
		}
	} else {
		result.Warning = fmt.Sprintf("refund could not be processed automatically: %s", refundRes.ErrorMessage)
		s.logger.Warn("refund requires manual follow-up",
			"tenant_id", tenantID,
			"appointment_id", appointmentID,
			"payment_id", calc.Payment.ID,
			"error", refundRes.ErrorMessage,
		)
	}

	s.logger.Info("appointment cancelled",
		"tenant_id", tenantID,
		"appointment_id", appointmentID,
		"acting_user_id", actingUserID,
		"type", string(cancelType),
		"late", calc.IsLateCancellation,
		"refund_amount", calc.RefundAmount.String(),
		"refund_processed", result.RefundProcessed,
	)
	return result, nil
}

func cancelInput(calc *Calculation, reason string, cancelType Type) appointments.CancelInput {
	in := appointments.CancelInput{
		Status:             appointments.StatusCanceled,
		CanceledBy:         appointments.CanceledByStaff,
		Reason:             reason,
		IsLateCancellation: calc.IsLateCancellation,
		CanceledAt:         calc.At,
	}
	switch cancelType {
	case TypeCustomer:
		in.CanceledBy = appointments.CanceledByCustomer
	case TypeNoShow:
		in.Status = appointments.StatusNoShow
	}
	return in
}
