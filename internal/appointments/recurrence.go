package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fagerlund/salon-platform/pkg/logging"
)

// Frequency is the recurrence cadence.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
	FrequencyMonthly  Frequency = "monthly"
)

// maxSeriesLength caps expansion regardless of termination config.
const maxSeriesLength = 100

// ErrBadRecurrence rejects invalid termination configuration before any write.
var ErrBadRecurrence = errors.New("appointments: invalid recurrence request")

// RecurrenceRule is the persisted grouping row shared by all instances of a
// recurring series.
type RecurrenceRule struct {
	ID              int64
	TenantID        string
	CustomerID      int64
	EmployeeID      int64
	ServiceID       int64
	Frequency       Frequency
	PreferredTime   TimeOfDay
	DurationMinutes int
	StartDate       time.Time
	EndDate         *time.Time
	MaxOccurrences  *int
}

// RecurringRequest asks for a recurring series of appointments. Exactly one
// of EndDate or MaxOccurrences must be set.
type RecurringRequest struct {
	TenantID        string
	CustomerID      int64
	EmployeeID      int64
	ServiceID       int64
	Frequency       Frequency
	StartDate       time.Time
	PreferredTime   TimeOfDay
	DurationMinutes int
	EndDate         *time.Time
	MaxOccurrences  *int
	Notes           string
}

// Validate enforces the termination contract.
func (req *RecurringRequest) Validate() error {
	switch req.Frequency {
	case FrequencyWeekly, FrequencyBiweekly, FrequencyMonthly:
	default:
		return fmt.Errorf("%w: unknown frequency %q", ErrBadRecurrence, req.Frequency)
	}
	if req.TenantID == "" || req.StartDate.IsZero() {
		return fmt.Errorf("%w: tenant and start date required", ErrBadRecurrence)
	}
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration required", ErrBadRecurrence)
	}
	if (req.EndDate == nil) == (req.MaxOccurrences == nil) {
		return fmt.Errorf("%w: exactly one of end date or max occurrences must be set", ErrBadRecurrence)
	}
	if req.MaxOccurrences != nil && *req.MaxOccurrences < 2 {
		return fmt.Errorf("%w: max occurrences must be at least 2", ErrBadRecurrence)
	}
	if req.EndDate != nil && req.EndDate.Before(req.StartDate) {
		return fmt.Errorf("%w: end date before start date", ErrBadRecurrence)
	}
	return nil
}

// RecurringResult reports what the generator created and which dates were
// skipped because the slot was already taken.
type RecurringResult struct {
	RuleID         int64
	AppointmentIDs []int64
	SkippedDates   []time.Time
}

// nextOccurrence steps one period forward. Monthly recurrence keeps the
// day-of-month, clamping to the last valid day of the target month
// (Jan 31 -> Feb 28/29).
func nextOccurrence(d time.Time, freq Frequency) time.Time {
	switch freq {
	case FrequencyWeekly:
		return d.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return d.AddDate(0, 0, 14)
	case FrequencyMonthly:
		year, month, day := d.Date()
		firstOfNext := time.Date(year, month+1, 1, 0, 0, 0, 0, d.Location())
		if last := daysInMonth(firstOfNext.Year(), firstOfNext.Month()); day > last {
			day = last
		}
		return time.Date(firstOfNext.Year(), firstOfNext.Month(), day, 0, 0, 0, 0, d.Location())
	}
	return d
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// expandDates materializes the occurrence dates for a request.
func expandDates(req *RecurringRequest) []time.Time {
	limit := maxSeriesLength
	if req.MaxOccurrences != nil && *req.MaxOccurrences < limit {
		limit = *req.MaxOccurrences
	}

	var dates []time.Time
	current := req.StartDate
	for len(dates) < limit {
		if req.EndDate != nil && current.After(*req.EndDate) {
			break
		}
		dates = append(dates, current)
		current = nextOccurrence(current, req.Frequency)
	}
	return dates
}

// Generator expands recurring requests into concrete appointments.
type Generator struct {
	repo     *Repository
	detector *Detector
	logger   *logging.Logger
}

// NewGenerator creates a recurrence generator.
func NewGenerator(repo *Repository, detector *Detector, logger *logging.Logger) *Generator {
	if repo == nil {
		panic("appointments: repository required")
	}
	if detector == nil {
		detector = NewDetector(repo)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Generator{repo: repo, detector: detector, logger: logger}
}

// Series returns every appointment generated from one recurrence rule, in
// date order.
func (g *Generator) Series(ctx context.Context, tenantID string, ruleID int64) ([]*Appointment, error) {
	return g.repo.ListByRule(ctx, tenantID, ruleID)
}

// CreateRecurring persists the rule row and as many non-conflicting instances
// as possible. Conflicting dates are skipped and reported rather than
// aborting the batch; a partial series is still useful to the salon.
func (g *Generator) CreateRecurring(ctx context.Context, req *RecurringRequest) (*RecurringResult, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.create_recurring")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.tenant_id", req.TenantID),
		attribute.String("salon.frequency", string(req.Frequency)),
	)

	if err := req.Validate(); err != nil {
		return nil, err
	}

	ruleID, err := g.repo.InsertRecurrenceRule(ctx, &RecurrenceRule{
		TenantID:        req.TenantID,
		CustomerID:      req.CustomerID,
		EmployeeID:      req.EmployeeID,
		ServiceID:       req.ServiceID,
		Frequency:       req.Frequency,
		PreferredTime:   req.PreferredTime,
		DurationMinutes: req.DurationMinutes,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		MaxOccurrences:  req.MaxOccurrences,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	start := req.PreferredTime
	end := start.Add(req.DurationMinutes)
	result := &RecurringResult{RuleID: ruleID}

	for _, date := range expandDates(req) {
		existing, err := g.detector.FindConflict(ctx, req.TenantID, req.EmployeeID, date, start, end, 0)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if existing != nil {
			result.SkippedDates = append(result.SkippedDates, date)
			continue
		}

		appt, err := g.repo.Create(ctx, &BookingInput{
			TenantID:         req.TenantID,
			CustomerID:       req.CustomerID,
			EmployeeID:       req.EmployeeID,
			Date:             date,
			StartTime:        start,
			EndTime:          end,
			Status:           StatusConfirmed,
			Notes:            req.Notes,
			recurrenceRuleID: &ruleID,
		})
		if err != nil {
			if errors.Is(err, ErrSlotTaken) {
				// Raced a concurrent booking onto this date; treat like a
				// detected conflict and keep going.
				result.SkippedDates = append(result.SkippedDates, date)
				continue
			}
			span.RecordError(err)
			return nil, err
		}
		result.AppointmentIDs = append(result.AppointmentIDs, appt.ID)
	}

	if err := g.repo.UpdateRuleOccurrences(ctx, req.TenantID, ruleID, len(result.AppointmentIDs)); err != nil {
		g.logger.Warn("recurrence: occurrence count update failed", "rule_id", ruleID, "error", err)
	}

	g.logger.Info("recurring series created",
		"tenant_id", req.TenantID,
		"rule_id", ruleID,
		"created", len(result.AppointmentIDs),
		"skipped", len(result.SkippedDates),
	)
	return result, nil
}
