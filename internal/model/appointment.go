package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odontosimples/clinic-api/internal/schedule"
)

type AppointmentStatus string

const (
	AppointmentStatusScheduled   AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed   AppointmentStatus = "confirmed"
	AppointmentStatusCompleted   AppointmentStatus = "completed"
	AppointmentStatusCancelled   AppointmentStatus = "cancelled"
	AppointmentStatusRescheduled AppointmentStatus = "rescheduled"
	AppointmentStatusNoShow      AppointmentStatus = "no_show"
)

type AppointmentType string

const (
	AppointmentTypeConsultation AppointmentType = "consultation"
	AppointmentTypeEvaluation   AppointmentType = "evaluation"
	AppointmentTypeCleaning     AppointmentType = "cleaning"
	AppointmentTypeRestoration  AppointmentType = "restoration"
	AppointmentTypeExtraction   AppointmentType = "extraction"
	AppointmentTypeRootCanal    AppointmentType = "root_canal"
	AppointmentTypeOrthodontics AppointmentType = "orthodontics"
	AppointmentTypeImplant      AppointmentType = "implant"
	AppointmentTypeSurgery      AppointmentType = "surgery"
	AppointmentTypeEmergency    AppointmentType = "emergency"
)

// Appointment is a booking of a patient with a practitioner. Practitioner
// and patient references are immutable once the appointment exists;
// changing either requires cancel plus rebook. Appointments are never
// physically deleted: cancellation and no-show are terminal states kept
// for audit and reporting.
type Appointment struct {
	Base
	PractitionerID  uuid.UUID           `db:"practitioner_id" json:"practitioner_id"`
	PatientID       uuid.UUID           `db:"patient_id" json:"patient_id"`
	StartTime       time.Time           `db:"start_time" json:"start_time"`
	DurationMinutes int                 `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus   `db:"status" json:"status"`
	Type            AppointmentType     `db:"type" json:"type,omitempty"`
	Value           decimal.NullDecimal `db:"value" json:"value,omitempty"`
	Notes           string              `db:"notes" json:"notes,omitempty"`
	FirstVisit      bool                `db:"first_visit" json:"first_visit"`
	CancelReason    *string             `db:"cancel_reason" json:"cancel_reason,omitempty"`

	// Reschedule trail: set only when a reschedule occurs. The status
	// stays scheduled; the trail records where the booking moved from.
	PreviousStart    *time.Time `db:"previous_start" json:"previous_start,omitempty"`
	PreviousDuration *int       `db:"previous_duration" json:"previous_duration,omitempty"`
	RescheduleReason *string    `db:"reschedule_reason" json:"reschedule_reason,omitempty"`
	RescheduledAt    *time.Time `db:"rescheduled_at" json:"rescheduled_at,omitempty"`
}

func (a *Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

// Interval returns the appointment's scheduled half-open interval.
func (a *Appointment) Interval() schedule.Interval {
	return schedule.Interval{Start: a.StartTime, Minutes: a.DurationMinutes}
}

// IsActive reports whether the appointment occupies its slot for
// conflict purposes.
func (a *Appointment) IsActive() bool {
	return a.Status == AppointmentStatusScheduled || a.Status == AppointmentStatusConfirmed
}

// IsTerminal reports whether the appointment reached a final state.
func (a *Appointment) IsTerminal() bool {
	switch a.Status {
	case AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

type BookAppointmentRequest struct {
	PractitionerID  uuid.UUID        `json:"practitioner_id" binding:"required"`
	PatientID       uuid.UUID        `json:"patient_id" binding:"required"`
	StartTime       time.Time        `json:"start_time" binding:"required"`
	DurationMinutes int              `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	Type            AppointmentType  `json:"type" binding:"omitempty,oneof=consultation evaluation cleaning restoration extraction root_canal orthodontics implant surgery emergency"`
	Value           *decimal.Decimal `json:"value"`
	Notes           string           `json:"notes" binding:"max=1000"`
	FirstVisit      bool             `json:"first_visit"`
}

type RescheduleAppointmentRequest struct {
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	Reason          string    `json:"reason" binding:"required"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AppointmentFilters struct {
	PractitionerID uuid.UUID
	PatientID      uuid.UUID
	Status         AppointmentStatus
	StartDate      time.Time
	EndDate        time.Time
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
