package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
)

// ErrStatusChanged is returned by the UpdateFromStatus methods when the
// stored row's status no longer matches the expected prior status. The
// write is discarded; callers decide whether to re-read or fail.
var ErrStatusChanged = errors.New("status changed since read")

// All repository interfaces in one file
type (
	PractitionerRepository interface {
		Create(ctx context.Context, practitioner *model.Practitioner) error
		Get(ctx context.Context, id uuid.UUID) (*model.Practitioner, error)
		Update(ctx context.Context, practitioner *model.Practitioner) error
		List(ctx context.Context) ([]*model.Practitioner, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		List(ctx context.Context, page model.Pagination) ([]*model.Patient, error)
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		// UpdateFromStatus writes the appointment only if the stored row
		// still holds prev, failing with ErrStatusChanged otherwise.
		// Lifecycle writes go through this guard so a concurrent
		// transition is never silently overwritten.
		UpdateFromStatus(ctx context.Context, appointment *model.Appointment, prev model.AppointmentStatus) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// FindActiveInRange returns scheduled and confirmed appointments
		// for the practitioner whose intervals intersect [from, to).
		FindActiveInRange(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*model.Appointment, error)
		// FindDueForReminder returns scheduled appointments starting
		// within [from, to), used by the confirmation reminder worker.
		FindDueForReminder(ctx context.Context, from, to time.Time) ([]*model.Appointment, error)
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Payment, error)
		Update(ctx context.Context, payment *model.Payment) error
		// UpdateFromStatus is the guarded variant of Update; see
		// AppointmentRepository.UpdateFromStatus.
		UpdateFromStatus(ctx context.Context, payment *model.Payment, prev model.PaymentStatus) error
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error)
		ListOverdue(ctx context.Context, asOf time.Time) ([]*model.Payment, error)
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errMsg *string) error
	}
)
