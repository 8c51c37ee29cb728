package reconcile

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

var reconcileTracer = otel.Tracer("salon.internal.reconcile")

// PaymentStore is the slice of the payments repository the reconciler needs.
type PaymentStore interface {
	GetBySession(ctx context.Context, tenantID, sessionID string) (*payments.Payment, error)
	UpdateStatus(ctx context.Context, tenantID string, id int64, status payments.Status, gatewayPaymentID string) error
}

// AppointmentStore is the slice of the appointments repository the
// reconciler needs.
type AppointmentStore interface {
	GetByID(ctx context.Context, tenantID string, id int64) (*appointments.Appointment, error)
	UpdateStatus(ctx context.Context, tenantID string, id int64, status appointments.Status) error
}

// Notifier sends the confirmation email after a successful capture.
type Notifier interface {
	SendAppointmentConfirmation(ctx context.Context, appt *appointments.Appointment) error
}

// Reconciler applies payment gateway outcomes to local payment and
// appointment state. It is driven by webhook handlers and must stay
// idempotent: gateways re-deliver events.
type Reconciler struct {
	payments     PaymentStore
	appointments AppointmentStore
	notifier     Notifier
	logger       *logging.Logger
}

// NewReconciler wires the reconciler. notifier may be nil when email is
// disabled.
func NewReconciler(pays PaymentStore, appts AppointmentStore, notifier Notifier, logger *logging.Logger) *Reconciler {
	if pays == nil {
		panic("reconcile: payment store required")
	}
	if appts == nil {
		panic("reconcile: appointment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{payments: pays, appointments: appts, notifier: notifier, logger: logger}
}

// ApplyGatewayStatus moves the payment identified by (tenant, session) to
// the given status and confirms the linked appointment on capture. The
// lookup is always tenant-scoped. A payment already in the target status is
// a no-op. A cancelled appointment stays cancelled even when the capture
// arrives afterwards; the money is reconciled, the booking is not revived.
func (r *Reconciler) ApplyGatewayStatus(ctx context.Context, tenantID, sessionID string, status payments.Status, gatewayPaymentID string) error {
	ctx, span := reconcileTracer.Start(ctx, "reconcile.apply_gateway_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.tenant_id", tenantID),
		attribute.String("salon.payment_status", string(status)),
	)

	payment, err := r.payments.GetBySession(ctx, tenantID, sessionID)
	if err != nil {
		return err
	}

	if payment.Status == status {
		r.logger.Info("payment already in target status",
			"tenant_id", tenantID,
			"payment_id", payment.ID,
			"status", string(status),
		)
		return nil
	}
	if !transitionAllowed(payment.Status, status) {
		r.logger.Warn("ignoring gateway status regression",
			"tenant_id", tenantID,
			"payment_id", payment.ID,
			"from", string(payment.Status),
			"to", string(status),
		)
		return nil
	}

	if err := r.payments.UpdateStatus(ctx, tenantID, payment.ID, status, gatewayPaymentID); err != nil {
		return err
	}
	r.logger.Info("payment status reconciled",
		"tenant_id", tenantID,
		"payment_id", payment.ID,
		"from", string(payment.Status),
		"to", string(status),
	)

	if status != payments.StatusCompleted || payment.AppointmentID == nil {
		return nil
	}
	return r.confirmAppointment(ctx, tenantID, *payment.AppointmentID)
}

// transitionAllowed enforces the forward-only payment lifecycle: once
// captured, money can only move on to refunded, and refunded is terminal. A
// late CANCEL or VOID delivered after a SALE must not regress the payment.
func transitionAllowed(from, to payments.Status) bool {
	switch from {
	case payments.StatusCompleted:
		return to == payments.StatusRefunded
	case payments.StatusRefunded:
		return false
	}
	return true
}

func (r *Reconciler) confirmAppointment(ctx context.Context, tenantID string, appointmentID int64) error {
	appt, err := r.appointments.GetByID(ctx, tenantID, appointmentID)
	if err != nil {
		return err
	}

	if appt.Status == appointments.StatusCanceled || appt.Status == appointments.StatusNoShow {
		r.logger.Warn("payment captured for a cancelled appointment",
			"tenant_id", tenantID,
			"appointment_id", appointmentID,
			"status", string(appt.Status),
		)
		return nil
	}

	if appt.Status == appointments.StatusPending {
		if err := r.appointments.UpdateStatus(ctx, tenantID, appointmentID, appointments.StatusConfirmed); err != nil {
			return err
		}
		appt.Status = appointments.StatusConfirmed
	}

	if r.notifier != nil {
		// Fire-and-forget: a failed email never fails the webhook.
		go func(appt *appointments.Appointment) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := r.notifier.SendAppointmentConfirmation(ctx, appt); err != nil {
				r.logger.Error("confirmation email failed",
					"tenant_id", appt.TenantID,
					"appointment_id", appt.ID,
					"error", err,
				)
			}
		}(appt)
	}
	return nil
}

// VippsStatus maps a Vipps transaction operation to the local payment
// status. The second return is false for operations that should not change
// anything, INITIATE and REGISTER leave the payment pending.
func VippsStatus(operation string) (payments.Status, bool) {
	switch strings.ToUpper(operation) {
	case "RESERVE", "SALE":
		return payments.StatusCompleted, true
	case "CANCEL", "VOID":
		return payments.StatusFailed, true
	case "REFUND":
		return payments.StatusRefunded, true
	case "INITIATE", "REGISTER":
		return payments.StatusPending, false
	}
	return "", false
}
