package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const DefaultSlotMinutes = 30

// Practitioner is the clinical professional patients are booked with.
// WorkStart/WorkEnd hold the daily working window as "HH:MM"; WorkDays
// holds the working weekday set as comma-separated integers (0=Sunday),
// e.g. "1,2,3,4,5" for Monday through Friday.
type Practitioner struct {
	Base
	Name          string `db:"name" json:"name"`
	LicenseNumber string `db:"license_number" json:"license_number"`
	LicenseState  string `db:"license_state" json:"license_state"`
	Specialties   string `db:"specialties" json:"specialties,omitempty"`
	Email         string `db:"email" json:"email,omitempty"`
	Phone         string `db:"phone" json:"phone"`
	WorkStart     string `db:"work_start" json:"work_start"`
	WorkEnd       string `db:"work_end" json:"work_end"`
	WorkDays      string `db:"work_days" json:"work_days"`
	SlotMinutes   int    `db:"slot_minutes" json:"slot_minutes"`
	Status        string `db:"status" json:"status"`
}

// License returns the display form of the registration, e.g. "CRO-SP 12345".
func (p *Practitioner) License() string {
	return fmt.Sprintf("CRO-%s %s", p.LicenseState, p.LicenseNumber)
}

// DefaultDuration returns the practitioner's configured appointment
// length, falling back to the clinic default.
func (p *Practitioner) DefaultDuration() int {
	if p.SlotMinutes > 0 {
		return p.SlotMinutes
	}
	return DefaultSlotMinutes
}

// WorksOn reports whether the practitioner works on the given weekday.
func (p *Practitioner) WorksOn(day time.Weekday) bool {
	for _, tok := range strings.Split(p.WorkDays, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(tok))
		if err != nil {
			continue
		}
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// WindowFor resolves the working window for the day containing t, in
// t's location. ok is false when the window is not configured or t
// falls on a non-working day.
func (p *Practitioner) WindowFor(t time.Time) (start, end time.Time, ok bool) {
	if !p.WorksOn(t.Weekday()) {
		return time.Time{}, time.Time{}, false
	}
	sh, sm, err := parseClock(p.WorkStart)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	eh, em, err := parseClock(p.WorkEnd)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	y, m, d := t.Date()
	start = time.Date(y, m, d, sh, sm, 0, 0, t.Location())
	end = time.Date(y, m, d, eh, em, 0, 0, t.Location())
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseClock(s string) (hour, min int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid clock value %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, err
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("clock value %q out of range", s)
	}
	return hour, min, nil
}

type CreatePractitionerRequest struct {
	Name          string `json:"name" binding:"required,min=2,max=100"`
	LicenseNumber string `json:"license_number" binding:"required"`
	LicenseState  string `json:"license_state" binding:"required,len=2"`
	Specialties   string `json:"specialties"`
	Email         string `json:"email" binding:"omitempty,email"`
	Phone         string `json:"phone" binding:"required"`
	WorkStart     string `json:"work_start" binding:"required,clocktime"`
	WorkEnd       string `json:"work_end" binding:"required,clocktime"`
	WorkDays      string `json:"work_days" binding:"required,workdays"`
	SlotMinutes   int    `json:"slot_minutes" binding:"omitempty,min=5,max=240"`
}

type UpdatePractitionerRequest struct {
	Name        *string `json:"name"`
	Specialties *string `json:"specialties"`
	Email       *string `json:"email"`
	Phone       *string `json:"phone"`
	WorkStart   *string `json:"work_start"`
	WorkEnd     *string `json:"work_end"`
	WorkDays    *string `json:"work_days"`
	SlotMinutes *int    `json:"slot_minutes"`
	Status      *string `json:"status"`
}
