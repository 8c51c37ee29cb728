package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/fagerlund/salon-platform/internal/appointments"
	"github.com/fagerlund/salon-platform/internal/observability/metrics"
	"github.com/fagerlund/salon-platform/internal/tenancy"
	"github.com/fagerlund/salon-platform/pkg/logging"
)

// AppointmentsHandler serves booking, rescheduling and recurring series
// creation.
type AppointmentsHandler struct {
	service   *appointments.Service
	generator *appointments.Generator
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

// NewAppointmentsHandler creates the handler. metrics may be nil.
func NewAppointmentsHandler(service *appointments.Service, generator *appointments.Generator, m *metrics.BookingMetrics, logger *logging.Logger) *AppointmentsHandler {
	if service == nil {
		panic("handlers: appointment service required")
	}
	if generator == nil {
		panic("handlers: recurrence generator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{service: service, generator: generator, metrics: m, logger: logger}
}

type bookingRequest struct {
	CustomerID int64  `json:"customer_id"`
	EmployeeID int64  `json:"employee_id"`
	Date       string `json:"date"`       // YYYY-MM-DD
	StartTime  string `json:"start_time"` // HH:MM
	EndTime    string `json:"end_time"`   // HH:MM
	Notes      string `json:"notes"`
}

type appointmentResponse struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	EmployeeID int64  `json:"employee_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
}

type conflictResponse struct {
	Error     string `json:"error"`
	Date      string `json:"date"`
	TimeRange string `json:"time_range"`
	Customer  string `json:"customer,omitempty"`
}

func toAppointmentResponse(a *appointments.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:         a.ID,
		CustomerID: a.CustomerID,
		EmployeeID: a.EmployeeID,
		Date:       a.Date.Format(time.DateOnly),
		StartTime:  a.StartTime.String(),
		EndTime:    a.EndTime.String(),
		Status:     string(a.Status),
		Notes:      a.Notes,
	}
}

// Create books a single appointment.
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var req bookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	input, err := bookingInput(tenantID, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.service.Book(r.Context(), input)
	if err != nil {
		var conflict *appointments.ConflictError
		switch {
		case errors.As(err, &conflict):
			h.metrics.ObserveConflict()
			h.metrics.ObserveBooking("conflict")
			writeJSON(w, http.StatusConflict, conflictBody(conflict))
		case errors.Is(err, appointments.ErrSlotTaken):
			h.metrics.ObserveConflict()
			h.metrics.ObserveBooking("conflict")
			http.Error(w, "slot taken", http.StatusConflict)
		case errors.Is(err, appointments.ErrInvalidInput):
			h.metrics.ObserveBooking("invalid")
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.metrics.ObserveBooking("error")
			h.logger.Error("booking failed", "tenant_id", tenantID, "error", err)
			http.Error(w, "booking failed", http.StatusInternalServerError)
		}
		return
	}

	h.metrics.ObserveBooking("created")
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

type rescheduleRequest struct {
	EmployeeID int64  `json:"employee_id"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

// Reschedule moves an appointment to a new slot.
func (h *AppointmentsHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
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

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	date, start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	appt, err := h.service.Reschedule(r.Context(), tenantID, id, req.EmployeeID, date, start, end)
	if err != nil {
		var conflict *appointments.ConflictError
		switch {
		case errors.As(err, &conflict):
			h.metrics.ObserveConflict()
			writeJSON(w, http.StatusConflict, conflictBody(conflict))
		case errors.Is(err, appointments.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, appointments.ErrSlotTaken):
			h.metrics.ObserveConflict()
			http.Error(w, "slot taken", http.StatusConflict)
		case errors.Is(err, appointments.ErrInvalidInput):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			h.logger.Error("reschedule failed", "tenant_id", tenantID, "appointment_id", id, "error", err)
			http.Error(w, "reschedule failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

type recurringRequest struct {
	CustomerID      int64  `json:"customer_id"`
	EmployeeID      int64  `json:"employee_id"`
	ServiceID       int64  `json:"service_id"`
	Frequency       string `json:"frequency"`
	StartDate       string `json:"start_date"`
	PreferredTime   string `json:"preferred_time"`
	DurationMinutes int    `json:"duration_minutes"`
	EndDate         string `json:"end_date,omitempty"`
	MaxOccurrences  *int   `json:"max_occurrences,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

type recurringResponse struct {
	RuleID         int64    `json:"rule_id"`
	AppointmentIDs []int64  `json:"appointment_ids"`
	SkippedDates   []string `json:"skipped_dates"`
}

// CreateRecurring books a recurring series, skipping conflicting dates.
func (h *AppointmentsHandler) CreateRecurring(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}

	var req recurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	gen, err := recurringInput(tenantID, &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.generator.CreateRecurring(r.Context(), gen)
	if err != nil {
		if errors.Is(err, appointments.ErrBadRecurrence) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("recurring booking failed", "tenant_id", tenantID, "error", err)
		http.Error(w, "failed to create series", http.StatusInternalServerError)
		return
	}

	resp := recurringResponse{
		RuleID:         result.RuleID,
		AppointmentIDs: result.AppointmentIDs,
		SkippedDates:   make([]string, 0, len(result.SkippedDates)),
	}
	for _, d := range result.SkippedDates {
		resp.SkippedDates = append(resp.SkippedDates, d.Format(time.DateOnly))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListRecurring returns every appointment generated from one recurrence
// rule.
func (h *AppointmentsHandler) ListRecurring(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		http.Error(w, "missing tenant", http.StatusBadRequest)
		return
	}
	ruleID, ok := idParam(r, "id")
	if !ok {
		http.Error(w, "invalid rule id", http.StatusBadRequest)
		return
	}

	series, err := h.generator.Series(r.Context(), tenantID, ruleID)
	if err != nil {
		h.logger.Error("series lookup failed", "tenant_id", tenantID, "rule_id", ruleID, "error", err)
		http.Error(w, "failed to list series", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentResponse, 0, len(series))
	for _, appt := range series {
		items = append(items, toAppointmentResponse(appt))
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule_id": ruleID, "appointments": items})
}

func conflictBody(conflict *appointments.ConflictError) conflictResponse {
	return conflictResponse{
		Error:     "slot conflicts with an existing appointment",
		Date:      conflict.Existing.Date.Format(time.DateOnly),
		TimeRange: conflict.Existing.TimeRange(),
		Customer:  conflict.Existing.CustomerName,
	}
}

func bookingInput(tenantID string, req *bookingRequest) (*appointments.BookingInput, error) {
	date, start, end, err := parseSlot(req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, err
	}
	return &appointments.BookingInput{
		TenantID:   tenantID,
		CustomerID: req.CustomerID,
		EmployeeID: req.EmployeeID,
		Date:       date,
		StartTime:  start,
		EndTime:    end,
		Notes:      req.Notes,
	}, nil
}

func recurringInput(tenantID string, req *recurringRequest) (*appointments.RecurringRequest, error) {
	startDate, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		return nil, errors.New("invalid start_date, expected YYYY-MM-DD")
	}
	preferred, err := appointments.ParseTimeOfDay(req.PreferredTime)
	if err != nil {
		return nil, errors.New("invalid preferred_time, expected HH:MM")
	}
	out := &appointments.RecurringRequest{
		TenantID:        tenantID,
		CustomerID:      req.CustomerID,
		EmployeeID:      req.EmployeeID,
		ServiceID:       req.ServiceID,
		Frequency:       appointments.Frequency(req.Frequency),
		StartDate:       startDate,
		PreferredTime:   preferred,
		DurationMinutes: req.DurationMinutes,
		MaxOccurrences:  req.MaxOccurrences,
		Notes:           req.Notes,
	}
	if req.EndDate != "" {
		endDate, err := time.Parse(time.DateOnly, req.EndDate)
		if err != nil {
			return nil, errors.New("invalid end_date, expected YYYY-MM-DD")
		}
		out.EndDate = &endDate
	}
	return out, nil
}

func parseSlot(dateStr, startStr, endStr string) (time.Time, appointments.TimeOfDay, appointments.TimeOfDay, error) {
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		return time.Time{}, 0, 0, errors.New("invalid date, expected YYYY-MM-DD")
	}
	start, err := appointments.ParseTimeOfDay(startStr)
	if err != nil {
		return time.Time{}, 0, 0, errors.New("invalid start_time, expected HH:MM")
	}
	end, err := appointments.ParseTimeOfDay(endStr)
	if err != nil {
		return time.Time{}, 0, 0, errors.New("invalid end_time, expected HH:MM")
	}
	return date, start, end, nil
}
