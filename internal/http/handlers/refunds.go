package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fagerlund/salon-platform/internal/refunds"
	"github.com/fagerlund/salon-platform/internal/tenancy"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// RefundsHandler serves the tenant's refund ledger.
type RefundsHandler struct {
	repo   *refunds.Repository
	logger *logging.Logger
}

func NewRefundsHandler(repo *refunds.Repository, logger *logging.Logger) *RefundsHandler {
	if repo == nil {
		panic("handlers: refunds repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RefundsHandler{repo: repo, logger: logger}
}

type refundItem struct {
	ID              int64  `json:"id"`
	AppointmentID   int64  `json:"appointment_id"`
	PaymentID       int64  `json:"payment_id"`
	Amount          string `json:"amount"`
	Method          string `json:"method"`
	Status          string `json:"status"`
	GatewayRefundID string `json:"gateway_refund_id,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	Reason          string `json:"reason,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// List returns refund history, optionally filtered by appointment_id.
func (h *RefundsHandler) List(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var appointmentID int64
	if raw := r.URL.Query().Get("appointment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid appointment_id", http.StatusBadRequest)
			return
		}
		appointmentID = id
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.repo.ListForTenant(r.Context(), tenantID, appointmentID, limit)
	if err != nil {
		h.logger.Error("refund list failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "failed to list refunds", http.StatusInternalServerError)
		return
	}

	items := make([]refundItem, 0, len(list))
	for _, rf := range list {
		items = append(items, refundItem{
			ID:              rf.ID,
			AppointmentID:   rf.AppointmentID,
			PaymentID:       rf.PaymentID,
			Amount:          rf.Amount.StringFixed(2),
			Method:          rf.Method,
			Status:          string(rf.Status),
			GatewayRefundID: rf.GatewayRefundID,
			ErrorMessage:    rf.ErrorMessage,
			Reason:          rf.Reason,
			CreatedAt:       rf.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"refunds": items})
}
