package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fagerlund/salon-platform/pkg/logging"
)

var apptTracer = otel.Tracer("salon.internal.appointments")

// Detector answers whether a slot is free for an employee. It is the
// fast-path user-experience check; the storage exclusion constraint is the
// correctness backstop for concurrent bookings.
type Detector struct {
	repo *Repository
}

// NewDetector creates a conflict detector.
func NewDetector(repo *Repository) *Detector {
	if repo == nil {
		panic("appointments: repository required")
	}
	return &Detector{repo: repo}
}

// FindConflict returns the conflicting appointment for the employee/date/slot,
// or nil when the slot is free. excludeID skips the appointment being
// rescheduled so it cannot conflict with itself.
func (d *Detector) FindConflict(ctx context.Context, tenantID string, employeeID int64, date time.Time, start, end TimeOfDay, excludeID int64) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.find_conflict")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.tenant_id", tenantID),
		attribute.Int64("salon.employee_id", employeeID),
	)

	existing, err := d.repo.FindOverlapping(ctx, tenantID, employeeID, date, start, end, excludeID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return existing, nil
}

// Service books and reschedules single appointments, running the conflict
// check before any write.
type Service struct {
	repo     *Repository
	detector *Detector
	logger   *logging.Logger
}

// NewService constructs an appointment booking service.
func NewService(repo *Repository, detector *Detector, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if detector == nil {
		detector = NewDetector(repo)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, detector: detector, logger: logger}
}

// Book validates the request, checks for conflicts and persists the
// appointment. A clash is returned as *ConflictError carrying the existing
// booking.
func (s *Service) Book(ctx context.Context, in *BookingInput) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.book")
	defer span.End()
	span.SetAttributes(attribute.String("salon.tenant_id", in.TenantID))

	if err := in.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.detector.FindConflict(ctx, in.TenantID, in.EmployeeID, in.Date, in.StartTime, in.EndTime, 0)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		return nil, &ConflictError{Existing: existing}
	}

	appt, err := s.repo.Create(ctx, in)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			// Lost the read-then-write race; fetch the winner for the
			// conflict response.
			return nil, s.conflictAfterRace(ctx, in.TenantID, in.EmployeeID, in.Date, in.StartTime, in.EndTime, 0)
		}
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment booked",
		"tenant_id", in.TenantID,
		"appointment_id", appt.ID,
		"employee_id", in.EmployeeID,
		"date", in.Date.Format(time.DateOnly),
		"slot", appt.TimeRange(),
	)
	return appt, nil
}

// Reschedule moves an existing appointment onto a new slot. Moving an
// appointment onto its own current slot never self-conflicts.
func (s *Service) Reschedule(ctx context.Context, tenantID string, id int64, employeeID int64, date time.Time, start, end TimeOfDay) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.tenant_id", tenantID),
		attribute.Int64("salon.appointment_id", id),
	)

	if end <= start {
		return nil, fmt.Errorf("%w: end time must be after start time", ErrInvalidInput)
	}

	current, err := s.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if current.Status.Terminal() {
		return nil, fmt.Errorf("%w: cannot reschedule %s appointment", ErrInvalidInput, current.Status)
	}

	existing, err := s.detector.FindConflict(ctx, tenantID, employeeID, date, start, end, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if existing != nil {
		return nil, &ConflictError{Existing: existing}
	}

	if err := s.repo.Reschedule(ctx, tenantID, id, employeeID, date, start, end); err != nil {
		if errors.Is(err, ErrSlotTaken) {
			return nil, s.conflictAfterRace(ctx, tenantID, employeeID, date, start, end, id)
		}
		span.RecordError(err)
		return nil, err
	}

	s.logger.Info("appointment rescheduled",
		"tenant_id", tenantID,
		"appointment_id", id,
		"employee_id", employeeID,
		"date", date.Format(time.DateOnly),
	)
	return s.repo.GetByID(ctx, tenantID, id)
}

func (s *Service) conflictAfterRace(ctx context.Context, tenantID string, employeeID int64, date time.Time, start, end TimeOfDay, excludeID int64) error {
	existing, lookupErr := s.repo.FindOverlapping(ctx, tenantID, employeeID, date, start, end, excludeID)
	if lookupErr == nil && existing != nil {
		return &ConflictError{Existing: existing}
	}
	return ErrSlotTaken
}
