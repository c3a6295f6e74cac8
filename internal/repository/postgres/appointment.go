package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
)

const appointmentColumns = `
	id, practitioner_id, patient_id, start_time, duration_minutes,
	status, type, value, notes, first_visit, cancel_reason,
	previous_start, previous_duration, reschedule_reason, rescheduled_at,
	created_at, updated_at
`

func (r *appointmentRepository) Create(ctx context.Context, apt *model.Appointment) error {
	query := `
		INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (
			:id, :practitioner_id, :patient_id, :start_time, :duration_minutes,
			:status, :type, :value, :notes, :first_visit, :cancel_reason,
			:previous_start, :previous_duration, :reschedule_reason, :rescheduled_at,
			:created_at, :updated_at
		)
	`
	if apt.ID == uuid.Nil {
		apt.ID = uuid.New()
	}
	if apt.CreatedAt.IsZero() {
		apt.CreatedAt = time.Now()
		apt.UpdatedAt = apt.CreatedAt
	}

	if _, err := r.db.NamedExecContext(ctx, query, apt); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var apt model.Appointment
	if err := r.db.GetContext(ctx, &apt, query, id); err != nil {
		return nil, notFoundOr(err, "appointment")
	}
	return &apt, nil
}

func (r *appointmentRepository) Update(ctx context.Context, apt *model.Appointment) error {
	query := `
		UPDATE appointments
		SET start_time = :start_time,
			duration_minutes = :duration_minutes,
			status = :status,
			notes = :notes,
			cancel_reason = :cancel_reason,
			previous_start = :previous_start,
			previous_duration = :previous_duration,
			reschedule_reason = :reschedule_reason,
			rescheduled_at = :rescheduled_at,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, apt)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFoundOr(fmt.Errorf("no rows updated"), "appointment")
	}
	return nil
}

// UpdateFromStatus commits the row only while its status still matches
// prev. Appointments are never deleted, so zero rows affected means a
// concurrent writer changed the status first.
func (r *appointmentRepository) UpdateFromStatus(ctx context.Context, apt *model.Appointment, prev model.AppointmentStatus) error {
	query := `
		UPDATE appointments
		SET start_time = :start_time,
			duration_minutes = :duration_minutes,
			status = :status,
			notes = :notes,
			cancel_reason = :cancel_reason,
			previous_start = :previous_start,
			previous_duration = :previous_duration,
			reschedule_reason = :reschedule_reason,
			rescheduled_at = :rescheduled_at,
			updated_at = :updated_at
		WHERE id = :id AND status = :prev_status
	`
	arg := struct {
		*model.Appointment
		PrevStatus model.AppointmentStatus `db:"prev_status"`
	}{apt, prev}

	result, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return repository.ErrStatusChanged
	}
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE 1=1`
	args := []interface{}{}

	if filters != nil {
		if filters.PractitionerID != uuid.Nil {
			args = append(args, filters.PractitionerID)
			query += fmt.Sprintf(" AND practitioner_id = $%d", len(args))
		}
		if filters.PatientID != uuid.Nil {
			args = append(args, filters.PatientID)
			query += fmt.Sprintf(" AND patient_id = $%d", len(args))
		}
		if filters.Status != "" {
			args = append(args, filters.Status)
			query += fmt.Sprintf(" AND status = $%d", len(args))
		}
		if !filters.StartDate.IsZero() {
			args = append(args, filters.StartDate)
			query += fmt.Sprintf(" AND start_time >= $%d", len(args))
		}
		if !filters.EndDate.IsZero() {
			args = append(args, filters.EndDate)
			query += fmt.Sprintf(" AND start_time < $%d", len(args))
		}
	}
	query += " ORDER BY start_time"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// FindActiveInRange loads the scheduled and confirmed appointments of a
// practitioner whose half-open intervals intersect [from, to).
func (r *appointmentRepository) FindActiveInRange(ctx context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE practitioner_id = $1
		  AND status IN ('scheduled', 'confirmed')
		  AND start_time < $3
		  AND start_time + duration_minutes * INTERVAL '1 minute' > $2
		ORDER BY start_time
	`
	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, practitionerID, from, to); err != nil {
		return nil, fmt.Errorf("failed to query active appointments: %w", err)
	}
	return appointments, nil
}

// FindDueForReminder returns still-unconfirmed appointments starting
// within [from, to).
func (r *appointmentRepository) FindDueForReminder(ctx context.Context, from, to time.Time) ([]*model.Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status = 'scheduled'
		  AND start_time >= $1
		  AND start_time < $2
		ORDER BY start_time
	`
	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to query reminder appointments: %w", err)
	}
	return appointments, nil
}
