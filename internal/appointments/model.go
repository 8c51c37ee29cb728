package appointments

import (
	"errors"
	"fmt"
	"time"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether no further lifecycle transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCanceled || s == StatusNoShow || s == StatusCompleted
}

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCanceled, StatusNoShow:
		return true
	}
	return false
}

// CanceledBy records which side initiated a cancellation.
type CanceledBy string

const (
	CanceledByCustomer CanceledBy = "customer"
	CanceledByStaff    CanceledBy = "staff"
	CanceledBySystem   CanceledBy = "system"
)

// TimeOfDay is minutes since midnight. Appointments store wall-clock times
// separately from the calendar date, matching the persisted HH:MM columns.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("appointments: invalid time of day %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("appointments: time of day out of range %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// Add returns the time of day d minutes later. It does not wrap past midnight;
// validation rejects appointments that would.
func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

// Overlaps reports whether the half-open intervals [t, tEnd) and [o, oEnd)
// intersect. Touching intervals do not overlap.
func Overlaps(start, end, otherStart, otherEnd TimeOfDay) bool {
	return start < otherEnd && otherStart < end
}

// Appointment is a tenant-scoped booking on the calendar grid.
type Appointment struct {
	ID                 int64
	TenantID           string
	CustomerID         int64
	EmployeeID         int64
	Date               time.Time // calendar date, midnight UTC
	StartTime          TimeOfDay
	EndTime            TimeOfDay
	Status             Status
	CancellationReason string
	CanceledBy         CanceledBy
	CanceledAt         *time.Time
	IsLateCancellation bool
	Notes              string
	RecurrenceRuleID   *int64
	ReminderSentAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time

	// CustomerName is joined in by conflict queries so staff see who owns
	// the clashing slot.
	CustomerName string
}

// StartsAt combines the calendar date with the start time of day.
func (a *Appointment) StartsAt() time.Time {
	day := time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), 0, 0, 0, 0, time.UTC)
	return day.Add(time.Duration(a.StartTime) * time.Minute)
}

// TimeRange renders the slot as "15:00-15:45" for conflict messages.
func (a *Appointment) TimeRange() string {
	return a.StartTime.String() + "-" + a.EndTime.String()
}

// ErrNotFound is returned when an appointment does not exist for the tenant.
var ErrNotFound = errors.New("appointments: not found")

// ErrInvalidInput marks request validation failures so handlers can answer
// 400 instead of treating them like infrastructure errors.
var ErrInvalidInput = errors.New("appointments: invalid input")

// ErrSlotTaken is returned when the storage-level exclusion constraint
// rejects an insert that raced past the conflict check.
var ErrSlotTaken = errors.New("appointments: slot taken")

// ConflictError reports a booking overlap, carrying the existing appointment
// so callers can surface its customer and time range instead of a bare
// boolean.
type ConflictError struct {
	Existing *Appointment
}

func (e *ConflictError) Error() string {
	who := e.Existing.CustomerName
	if who == "" {
		who = fmt.Sprintf("customer %d", e.Existing.CustomerID)
	}
	return fmt.Sprintf("appointments: conflict with %s at %s on %s",
		who, e.Existing.TimeRange(), e.Existing.Date.Format(time.DateOnly))
}

// BookingInput is a request to place a single appointment.
type BookingInput struct {
	TenantID   string
	CustomerID int64
	EmployeeID int64
	Date       time.Time
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Status     Status
	Notes      string

	recurrenceRuleID *int64
}

// Validate rejects malformed bookings before any write.
func (in *BookingInput) Validate() error {
	if in.TenantID == "" {
		return fmt.Errorf("%w: tenant id required", ErrInvalidInput)
	}
	if in.CustomerID == 0 || in.EmployeeID == 0 {
		return fmt.Errorf("%w: customer and employee required", ErrInvalidInput)
	}
	if in.Date.IsZero() {
		return fmt.Errorf("%w: date required", ErrInvalidInput)
	}
	if in.EndTime <= in.StartTime {
		return fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}
	if in.EndTime > 24*60 {
		return fmt.Errorf("%w: appointment may not cross midnight", ErrInvalidInput)
	}
	return nil
}
