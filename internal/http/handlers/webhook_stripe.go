package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/fagerlund/salon-platform/internal/events"
	"github.com/fagerlund/salon-platform/internal/observability/metrics"
	"github.com/fagerlund/salon-platform/internal/payments"
	"github.com/fagerlund/salon-platform/internal/reconcile"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// StripeWebhookHandler verifies and applies Stripe events. Signature
// verification is the auth on this route; it is mounted outside the tenant
// middleware because the tenant comes from the session metadata.
type StripeWebhookHandler struct {
	secret     string
	tolerance  time.Duration
	reconciler *reconcile.Reconciler
	processed  *events.ProcessedStore
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

func NewStripeWebhookHandler(secret string, tolerance time.Duration, reconciler *reconcile.Reconciler, processed *events.ProcessedStore, m *metrics.BookingMetrics, logger *logging.Logger) *StripeWebhookHandler {
	if reconciler == nil {
		panic("handlers: reconciler required")
	}
	if processed == nil {
		panic("handlers: processed store required")
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		secret:     secret,
		tolerance:  tolerance,
		reconciler: reconciler,
		processed:  processed,
		metrics:    m,
		logger:     logger,
	}
}

// HandleWebhook processes one Stripe event.
func (h *StripeWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if strings.TrimSpace(h.secret) == "" {
		http.Error(w, "stripe webhook not configured", http.StatusServiceUnavailable)
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		http.Error(w, "missing Stripe-Signature header", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	evt, err := webhook.ConstructEventWithTolerance(body, sigHeader, h.secret, h.tolerance)
	if err != nil {
		h.metrics.ObserveWebhook("stripe", "invalid_signature")
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}

	duplicate, err := h.processed.AlreadyProcessed(r.Context(), "stripe", evt.ID)
	if err != nil {
		http.Error(w, "idempotency check failed", http.StatusInternalServerError)
		return
	}
	if duplicate {
		h.logger.Info("stripe event duplicate ignored", "event_id", evt.ID, "event_type", string(evt.Type))
		h.metrics.ObserveWebhook("stripe", "duplicate")
		writeJSON(w, http.StatusOK, map[string]any{"status": "duplicate"})
		return
	}

	switch evt.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "error", err)
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		tenantID := strings.TrimSpace(session.Metadata["tenantId"])
		if tenantID == "" {
			h.logger.Warn("stripe: checkout session without tenantId metadata", "session_id", session.ID)
			h.metrics.ObserveWebhook("stripe", "missing_tenant")
			break
		}
		paymentIntentID := ""
		if session.PaymentIntent != nil {
			paymentIntentID = session.PaymentIntent.ID
		}
		err := h.reconciler.ApplyGatewayStatus(r.Context(), tenantID, session.ID, payments.StatusCompleted, paymentIntentID)
		if err != nil {
			if errors.Is(err, payments.ErrNotFound) {
				h.logger.Warn("stripe: no payment for session", "tenant_id", tenantID, "session_id", session.ID)
				h.metrics.ObserveWebhook("stripe", "unknown_session")
				break
			}
			h.logger.Error("stripe: reconcile failed", "tenant_id", tenantID, "session_id", session.ID, "error", err)
			http.Error(w, "reconcile failed", http.StatusInternalServerError)
			return
		}
		h.metrics.ObserveWebhook("stripe", "applied")

	default:
		h.logger.Info("stripe event ignored", "event_type", string(evt.Type))
		h.metrics.ObserveWebhook("stripe", "ignored")
	}

	if _, err := h.processed.MarkProcessed(r.Context(), "stripe", evt.ID); err != nil {
		h.logger.Error("stripe: mark processed failed", "event_id", evt.ID, "error", err)
	}
	h.metrics.ObserveWebhookLatency("stripe", time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, map[string]any{"received": true})
}
