package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/internal/schedule"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
)

// ConflictChecker finds active appointments of a practitioner that
// collide with a candidate interval. Availability-window violations are
// rejected before the store is queried.
type ConflictChecker struct {
	appointments repository.AppointmentRepository
}

func NewConflictChecker(appointments repository.AppointmentRepository) *ConflictChecker {
	return &ConflictChecker{appointments: appointments}
}

// ValidateAvailability checks the candidate interval against the
// practitioner's working window and workday set.
func (c *ConflictChecker) ValidateAvailability(p *model.Practitioner, iv schedule.Interval) error {
	start, end, ok := p.WindowFor(iv.Start)
	if !ok {
		return apperrors.OutsideAvailability(
			fmt.Sprintf("practitioner %s does not attend on %s", p.ID, iv.Start.Weekday()))
	}
	if !iv.Within(start, end) {
		return apperrors.OutsideAvailability(
			fmt.Sprintf("interval %s is outside working hours %s-%s", iv, p.WorkStart, p.WorkEnd))
	}
	return nil
}

// FindOverlapping returns every scheduled or confirmed appointment of
// the practitioner overlapping the interval, excluding excludeID when
// set (a rescheduled appointment must not conflict with itself).
func (c *ConflictChecker) FindOverlapping(ctx context.Context, p *model.Practitioner, iv schedule.Interval, excludeID *uuid.UUID) ([]*model.Appointment, error) {
	if err := c.ValidateAvailability(p, iv); err != nil {
		return nil, err
	}

	active, err := c.appointments.FindActiveInRange(ctx, p.ID, iv.Start, iv.End())
	if err != nil {
		return nil, fmt.Errorf("failed to query active appointments: %w", err)
	}

	var overlapping []*model.Appointment
	for _, apt := range active {
		if excludeID != nil && apt.ID == *excludeID {
			continue
		}
		if !apt.IsActive() {
			continue
		}
		if apt.Interval().Overlaps(iv) {
			overlapping = append(overlapping, apt)
		}
	}
	return overlapping, nil
}
