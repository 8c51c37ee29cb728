package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/cancellation"
	"github.com/fagerlund/salon-platform/internal/observability/metrics"
	"github.com/fagerlund/salon-platform/internal/refunds"
	"github.com/fagerlund/salon-platform/internal/tenancy"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// CancellationNotifier emails the customer after a cancellation.
type CancellationNotifier interface {
	SendCancellationNotice(ctx context.Context, appt *appointments.Appointment, refundNote string) error
}

// CancellationHandler serves appointment cancellation with refund
// settlement.
type CancellationHandler struct {
	service  *cancellation.Service
	appts    cancellation.AppointmentStore
	notifier CancellationNotifier
	metrics  *metrics.BookingMetrics
	logger   *logging.Logger
}

// NewCancellationHandler creates the handler. notifier and metrics may be
// nil.
func NewCancellationHandler(service *cancellation.Service, appts cancellation.AppointmentStore, notifier CancellationNotifier, m *metrics.BookingMetrics, logger *logging.Logger) *CancellationHandler {
	if service == nil {
		panic("handlers: cancellation service required")
	}
	if appts == nil {
		panic("handlers: appointment store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CancellationHandler{service: service, appts: appts, notifier: notifier, metrics: m, logger: logger}
}

type cancelRequest struct {
	Reason string `json:"reason"`
	Type   string `json:"type"` // customer, staff, no_show; defaults to customer
}

type cancelResponse struct {
	Success         bool   `json:"success"`
	RefundProcessed bool   `json:"refund_processed"`
	RefundAmount    string `json:"refund_amount"`
	Warning         string `json:"warning,omitempty"`
}

// Cancel cancels an appointment. Terminal appointments are rejected with 409
// before any refund math runs.
func (h *CancellationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	id, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	cancelType := cancellation.Type(req.Type)
	if req.Type == "" {
		cancelType = cancellation.TypeCustomer
	}
	if !cancelType.Valid() {
		http.Error(w, "invalid cancellation type", http.StatusBadRequest)
		return
	}

	appt, err := h.appts.GetByID(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, appointments.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("cancel lookup failed", "tenant_id", tenantID, "appointment_id", id, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if appt.Status.Terminal() {
		http.Error(w, "appointment is already "+string(appt.Status), http.StatusConflict)
		return
	}

	actingUserID, _ := tenancy.ActingUserFromContext(r.Context())
	result, err := h.service.CancelWithRefund(r.Context(), tenantID, id, actingUserID, req.Reason, cancelType)
	if err != nil {
		switch {
		case errors.Is(err, refunds.ErrAlreadyRefunded):
			http.Error(w, "payment already refunded", http.StatusConflict)
		case errors.Is(err, appointments.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		default:
			h.logger.Error("cancellation failed", "tenant_id", tenantID, "appointment_id", id, "error", err)
			http.Error(w, "cancellation failed", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.ObserveCancellation(string(cancelType), result.IsLateCancellation)

	if h.notifier != nil {
		note := ""
		if result.RefundProcessed {
			note = fmt.Sprintf("A refund of %s has been issued to your original payment method.",
				result.RefundAmount.StringFixed(2))
		}
		// Fire-and-forget: a failed email never fails the cancellation.
		go func(appt *appointments.Appointment, note string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := h.notifier.SendCancellationNotice(ctx, appt, note); err != nil {
				h.logger.Error("cancellation email failed",
					"tenant_id", appt.TenantID,
					"appointment_id", appt.ID,
					"error", err,
				)
			}
		}(appt, note)
	}

	writeJSON(w, http.StatusOK, cancelResponse{
		Success:         result.Success,
		RefundProcessed: result.RefundProcessed,
		RefundAmount:    result.RefundAmount.StringFixed(2),
		Warning:         result.Warning,
	})
}
