package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fagerlund/salon-platform/internal/events"
	"github.com/fagerlund/salon-platform/internal/observability/metrics"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/internal/reconcile"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// VippsWebhookHandler applies Vipps ecom callbacks. The callback URL is
// registered per tenant, so the tenant id rides in the route and the orderId
// in the payload matches the payment's gateway session id.
type VippsWebhookHandler struct {
	callbackToken string
	reconciler    *reconcile.Reconciler
	processed     *events.ProcessedStore
	metrics       *metrics.BookingMetrics
	logger        *logging.Logger
}

func NewVippsWebhookHandler(callbackToken string, reconciler *reconcile.Reconciler, processed *events.ProcessedStore, m *metrics.BookingMetrics, logger *logging.Logger) *VippsWebhookHandler {
	if reconciler == nil {
		panic("handlers: reconciler required")
	}
	if processed == nil {
		panic("handlers: processed store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VippsWebhookHandler{
		callbackToken: callbackToken,
		reconciler:    reconciler,
		processed:     processed,
		metrics:       m,
		logger:        logger,
	}
}

type vippsCallback struct {
	MerchantSerialNumber string `json:"merchantSerialNumber"`
	OrderID              string `json:"orderId"`
	TransactionInfo      struct {
		Amount        int64  `json:"amount"` // minor units
		Status        string `json:"status"`
		TimeStamp     string `json:"timeStamp"`
		TransactionID string `json:"transactionId"`
	} `json:"transactionInfo"`
}

// HandleCallback processes one Vipps status callback.
func (h *VippsWebhookHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.callbackToken != "" && r.Header.Get("Authorization") != h.callbackToken {
		h.metrics.ObserveWebhook("vipps", "unauthorized")
		http.Error(w, "invalid callback token", http.StatusUnauthorized)
		return
	}

	tenantID := strings.TrimSpace(chi.URLParam(r, "tenantID"))
	if tenantID == "" {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var payload vippsCallback
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if payload.OrderID == "" || payload.TransactionInfo.Status == "" {
		http.Error(w, "invalid callback payload", http.StatusBadRequest)
		return
	}

	status, apply := reconcile.VippsStatus(payload.TransactionInfo.Status)
	if !apply {
		h.logger.Info("vipps callback left payment pending",
			"tenant_id", tenantID,
			"order_id", payload.OrderID,
			"vipps_status", payload.TransactionInfo.Status,
		)
		h.metrics.ObserveWebhook("vipps", "ignored")
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
		return
	}

	// One event per (order, status transition). Vipps has no event id.
	eventID := fmt.Sprintf("%s:%s", payload.OrderID, strings.ToUpper(payload.TransactionInfo.Status))
	duplicate, err := h.processed.AlreadyProcessed(r.Context(), "vipps", eventID)
	if err != nil {
		http.Error(w, "idempotency check failed", http.StatusInternalServerError)
		return
	}
	if duplicate {
		h.metrics.ObserveWebhook("vipps", "duplicate")
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "duplicate"})
		return
	}

	err = h.reconciler.ApplyGatewayStatus(r.Context(), tenantID, payload.OrderID, status, payload.TransactionInfo.TransactionID)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			h.logger.Warn("vipps: no payment for order", "tenant_id", tenantID, "order_id", payload.OrderID)
			h.metrics.ObserveWebhook("vipps", "unknown_order")
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}
		h.logger.Error("vipps: reconcile failed", "tenant_id", tenantID, "order_id", payload.OrderID, "error", err)
		http.Error(w, "reconcile failed", http.StatusInternalServerError)
		return
	}

	if _, err := h.processed.MarkProcessed(r.Context(), "vipps", eventID); err != nil {
		h.logger.Error("vipps: mark processed failed", "event_id", eventID, "error", err)
	}
	h.metrics.ObserveWebhook("vipps", "applied")
	h.metrics.ObserveWebhookLatency("vipps", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
