package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/internal/schedule"
	"github.com/odontosimples/clinic-api/pkg/clock"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
	"github.com/odontosimples/clinic-api/pkg/logger"
	"github.com/odontosimples/clinic-api/pkg/metrics"
)

// Service orchestrates booking, rescheduling and lifecycle transitions.
// Every write against a practitioner's schedule runs under that
// practitioner's lock so the availability check and the reservation are
// indivisible; writes for different practitioners proceed in parallel.
type Service struct {
	appointments  repository.AppointmentRepository
	practitioners repository.PractitionerRepository
	patients      repository.PatientRepository
	outbox        repository.OutboxRepository
	checker       *ConflictChecker
	locker        *schedule.PractitionerLocker
	clock         clock.Clock
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewService(
	appointments repository.AppointmentRepository,
	practitioners repository.PractitionerRepository,
	patients repository.PatientRepository,
	outbox repository.OutboxRepository,
	locker *schedule.PractitionerLocker,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		appointments:  appointments,
		practitioners: practitioners,
		patients:      patients,
		outbox:        outbox,
		checker:       NewConflictChecker(appointments),
		locker:        locker,
		clock:         clk,
		logger:        log,
	}
}

// Checker exposes the conflict checker for read-only collaborators.
func (s *Service) Checker() *ConflictChecker {
	return s.checker
}

// WithMetrics attaches scheduling metrics. The service works without
// them, so tests and tools can skip the prometheus registry.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// Book validates identities and availability, then reserves the slot.
// The whole operation is all-or-nothing: a conflict leaves no partial
// state behind.
func (s *Service) Book(ctx context.Context, req *model.BookAppointmentRequest) (*model.Appointment, error) {
	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		return nil, err
	}
	practitioner, err := s.practitioners.Get(ctx, req.PractitionerID)
	if err != nil {
		return nil, err
	}

	minutes := req.DurationMinutes
	if minutes <= 0 {
		minutes = practitioner.DefaultDuration()
	}
	iv, err := schedule.NewInterval(req.StartTime, minutes)
	if err != nil {
		return nil, apperrors.BadRequest("invalid appointment interval", err)
	}

	var apt *model.Appointment
	err = s.withScheduleLock(ctx, practitioner.ID, func() error {
		conflicts, err := s.checker.FindOverlapping(ctx, practitioner, iv, nil)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return apperrors.SlotUnavailable(
				fmt.Sprintf("interval %s collides with %d active appointment(s)", iv, len(conflicts)))
		}

		now := s.clock.Now()
		apt = &model.Appointment{
			PractitionerID:  practitioner.ID,
			PatientID:       req.PatientID,
			StartTime:       iv.Start,
			DurationMinutes: iv.Minutes,
			Status:          model.AppointmentStatusScheduled,
			Type:            req.Type,
			Notes:           req.Notes,
			FirstVisit:      req.FirstVisit,
		}
		apt.ID = uuid.New()
		apt.CreatedAt = now
		apt.UpdatedAt = now
		if req.Value != nil {
			apt.Value.Decimal = *req.Value
			apt.Value.Valid = true
		}

		if err := s.appointments.Create(ctx, apt); err != nil {
			return fmt.Errorf("failed to create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		s.countBooking(scheduleOutcome(err))
		return nil, err
	}
	s.countBooking("booked")

	s.recordEvent(ctx, model.EventAppointmentBooked, apt)
	return apt, nil
}

// Reschedule moves an active appointment to a new interval as one
// atomic operation. A failed conflict check leaves the original booking
// untouched; on success the appointment re-enters scheduled at the new
// interval with the previous interval and reason recorded in the trail.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req *model.RescheduleAppointmentRequest) (*model.Appointment, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, apperrors.BadRequest("reschedule reason is required", nil)
	}

	// first read locates the practitioner and rejects the obvious cases
	// cheaply; the authoritative check happens again under the lock
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := rescheduleable(apt); err != nil {
		return nil, err
	}

	practitioner, err := s.practitioners.Get(ctx, apt.PractitionerID)
	if err != nil {
		return nil, err
	}

	var updated model.Appointment
	err = s.withScheduleLock(ctx, practitioner.ID, func() error {
		// re-read under the lock: a transition may have landed since
		current, err := s.appointments.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := rescheduleable(current); err != nil {
			return err
		}

		minutes := req.DurationMinutes
		if minutes <= 0 {
			minutes = current.DurationMinutes
		}
		iv, err := schedule.NewInterval(req.StartTime, minutes)
		if err != nil {
			return apperrors.BadRequest("invalid appointment interval", err)
		}

		conflicts, err := s.checker.FindOverlapping(ctx, practitioner, iv, &current.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return apperrors.SlotUnavailable(
				fmt.Sprintf("interval %s collides with %d active appointment(s)", iv, len(conflicts)))
		}

		now := s.clock.Now()
		prevStart := current.StartTime
		prevDuration := current.DurationMinutes

		updated = *current
		updated.PreviousStart = &prevStart
		updated.PreviousDuration = &prevDuration
		updated.RescheduleReason = &reason
		updated.RescheduledAt = &now
		updated.StartTime = iv.Start
		updated.DurationMinutes = iv.Minutes
		updated.Status = model.AppointmentStatusScheduled
		updated.UpdatedAt = now

		if err := s.appointments.UpdateFromStatus(ctx, &updated, current.Status); err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return apperrors.InvalidTransition(string(current.Status), "reschedule")
			}
			return fmt.Errorf("failed to commit reschedule: %w", err)
		}
		return nil
	})
	if err != nil {
		s.countReschedule(scheduleOutcome(err))
		return nil, err
	}
	s.countReschedule("rescheduled")

	s.recordEvent(ctx, model.EventAppointmentRescheduled, &updated)
	return &updated, nil
}

func rescheduleable(apt *model.Appointment) error {
	if apt.IsTerminal() {
		return apperrors.TerminalState(string(apt.Status))
	}
	if !apt.IsActive() {
		return apperrors.InvalidTransition(string(apt.Status), "reschedule")
	}
	return nil
}

// Transition applies a lifecycle event per the state table. The
// check-then-write runs under the practitioner's lock and the commit is
// guarded on the status it was computed from, so concurrent transitions
// can never overwrite each other. reason is recorded for cancellations
// and ignored otherwise.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, event Event, reason string) (*model.Appointment, error) {
	apt, err := s.appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := nextStatus(apt, event); err != nil {
		return nil, err
	}

	var updated model.Appointment
	err = s.withScheduleLock(ctx, apt.PractitionerID, func() error {
		current, err := s.appointments.Get(ctx, id)
		if err != nil {
			return err
		}
		next, err := nextStatus(current, event)
		if err != nil {
			return err
		}

		updated = *current
		updated.Status = next
		updated.UpdatedAt = s.clock.Now()
		if event == EventCancel && strings.TrimSpace(reason) != "" {
			r := strings.TrimSpace(reason)
			updated.CancelReason = &r
		}

		if err := s.appointments.UpdateFromStatus(ctx, &updated, current.Status); err != nil {
			if errors.Is(err, repository.ErrStatusChanged) {
				return apperrors.InvalidTransition(string(current.Status), string(event))
			}
			return fmt.Errorf("failed to apply %s: %w", event, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.recordEvent(ctx, eventType(event), &updated)
	return &updated, nil
}

// IsSlotAvailable is a read-only query running the same checks as Book
// minus the write. It takes no lock; callers accept the answer may be
// stale by the time a subsequent Book runs, which re-validates anyway.
func (s *Service) IsSlotAvailable(ctx context.Context, practitionerID uuid.UUID, start time.Time, minutes int) (bool, error) {
	practitioner, err := s.practitioners.Get(ctx, practitionerID)
	if err != nil {
		return false, err
	}
	if minutes <= 0 {
		minutes = practitioner.DefaultDuration()
	}
	iv, err := schedule.NewInterval(start, minutes)
	if err != nil {
		return false, apperrors.BadRequest("invalid appointment interval", err)
	}

	conflicts, err := s.checker.FindOverlapping(ctx, practitioner, iv, nil)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrOutsideAvailability) {
			return false, nil
		}
		return false, err
	}
	return len(conflicts) == 0, nil
}

// AvailableSlots lists the free intervals of a practitioner's working
// day, stepped by the practitioner's default duration.
func (s *Service) AvailableSlots(ctx context.Context, practitionerID uuid.UUID, date time.Time) ([]model.TimeSlot, error) {
	practitioner, err := s.practitioners.Get(ctx, practitionerID)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd, ok := practitioner.WindowFor(date)
	if !ok {
		return nil, nil
	}

	booked, err := s.appointments.FindActiveInRange(ctx, practitionerID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	step := time.Duration(practitioner.DefaultDuration()) * time.Minute
	var free []model.TimeSlot
	for t := dayStart; !t.Add(step).After(dayEnd); t = t.Add(step) {
		slot := schedule.Interval{Start: t, Minutes: practitioner.DefaultDuration()}
		conflict := false
		for _, apt := range booked {
			if apt.IsActive() && apt.Interval().Overlaps(slot) {
				conflict = true
				break
			}
		}
		if !conflict {
			free = append(free, model.TimeSlot{Start: slot.Start, End: slot.End()})
		}
	}
	return free, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.appointments.Get(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	appointments, err := s.appointments.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (s *Service) withScheduleLock(ctx context.Context, practitionerID uuid.UUID, fn func() error) error {
	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, practitionerID)
	if s.metrics != nil {
		s.metrics.ScheduleLockWait.Observe(time.Since(waitStart).Seconds())
	}
	if err != nil {
		if errors.Is(err, schedule.ErrLockBusy) {
			if s.metrics != nil {
				s.metrics.ScheduleLockTimeout.Inc()
			}
			return apperrors.ScheduleBusy(err)
		}
		return err
	}
	defer release()
	return fn()
}

func (s *Service) countBooking(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.BookingsTotal.WithLabelValues(outcome).Inc()
	if outcome == "conflict" {
		s.metrics.ConflictsRejected.Inc()
	}
}

func (s *Service) countReschedule(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.ReschedulesTotal.WithLabelValues(outcome).Inc()
	if outcome == "conflict" {
		s.metrics.ConflictsRejected.Inc()
	}
}

func scheduleOutcome(err error) string {
	switch {
	case apperrors.IsCode(err, apperrors.ErrSlotUnavailable):
		return "conflict"
	case apperrors.IsCode(err, apperrors.ErrOutsideAvailability):
		return "outside_availability"
	case apperrors.IsCode(err, apperrors.ErrScheduleBusy):
		return "lock_timeout"
	default:
		return "error"
	}
}

func (s *Service) recordEvent(ctx context.Context, eventType string, apt *model.Appointment) {
	ev, err := model.NewOutboxEvent(eventType, apt)
	if err != nil {
		s.logger.Error(err, "failed to build outbox event", "event_type", eventType)
		return
	}
	ev.CreatedAt = s.clock.Now()
	if err := s.outbox.Create(ctx, ev); err != nil {
		s.logger.Error(err, "failed to record outbox event",
			"event_type", eventType, "appointment_id", apt.ID.String())
	}
}
