package scheduling

import (
	"github.com/odontosimples/clinic-api/internal/model"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
)

// Event is a lifecycle action applied to an appointment.
type Event string

const (
	EventConfirm  Event = "confirm"
	EventComplete Event = "complete"
	EventCancel   Event = "cancel"
	EventNoShow   Event = "no_show"
)

// transitions is the allowed edge set of the appointment state machine.
// Rescheduling is not listed here: it is a separate atomic operation
// that re-enters scheduled at the new interval.
var transitions = map[model.AppointmentStatus]map[Event]model.AppointmentStatus{
	model.AppointmentStatusScheduled: {
		EventConfirm:  model.AppointmentStatusConfirmed,
		EventComplete: model.AppointmentStatusCompleted,
		EventCancel:   model.AppointmentStatusCancelled,
		EventNoShow:   model.AppointmentStatusNoShow,
	},
	model.AppointmentStatusConfirmed: {
		EventComplete: model.AppointmentStatusCompleted,
		EventCancel:   model.AppointmentStatusCancelled,
		EventNoShow:   model.AppointmentStatusNoShow,
	},
}

// nextStatus resolves the target status for an event, failing with
// TerminalState for finished appointments and InvalidTransition for
// any other disallowed edge.
func nextStatus(a *model.Appointment, event Event) (model.AppointmentStatus, error) {
	if a.IsTerminal() {
		return "", apperrors.TerminalState(string(a.Status))
	}
	edges, ok := transitions[a.Status]
	if !ok {
		return "", apperrors.InvalidTransition(string(a.Status), string(event))
	}
	next, ok := edges[event]
	if !ok {
		return "", apperrors.InvalidTransition(string(a.Status), string(event))
	}
	return next, nil
}

func eventType(event Event) string {
	switch event {
	case EventConfirm:
		return model.EventAppointmentConfirmed
	case EventComplete:
		return model.EventAppointmentCompleted
	case EventCancel:
		return model.EventAppointmentCancelled
	case EventNoShow:
		return model.EventAppointmentNoShow
	}
	return ""
}
