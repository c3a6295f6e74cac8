package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/internal/schedule"
	"github.com/odontosimples/clinic-api/pkg/clock"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
	"github.com/odontosimples/clinic-api/pkg/logger"
)

// ---- in-memory fakes ----

type memAppointments struct {
	mu    sync.Mutex
	items map[uuid.UUID]model.Appointment

	// onFindActiveInRange, when set, runs before the conflict query.
	// Tests use it to interleave writes from another actor.
	onFindActiveInRange func()
}

func newMemAppointments() *memAppointments {
	return &memAppointments{items: make(map[uuid.UUID]model.Appointment)}
}

func (m *memAppointments) Create(_ context.Context, apt *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[apt.ID] = *apt
	return nil
}

func (m *memAppointments) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apt, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("appointment", nil)
	}
	cp := apt
	return &cp, nil
}

func (m *memAppointments) Update(_ context.Context, apt *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[apt.ID]; !ok {
		return apperrors.NotFound("appointment", nil)
	}
	m.items[apt.ID] = *apt
	return nil
}

func (m *memAppointments) UpdateFromStatus(_ context.Context, apt *model.Appointment, prev model.AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[apt.ID]
	if !ok {
		return apperrors.NotFound("appointment", nil)
	}
	if stored.Status != prev {
		return repository.ErrStatusChanged
	}
	m.items[apt.ID] = *apt
	return nil
}

func (m *memAppointments) List(_ context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Appointment
	for _, apt := range m.items {
		if filters != nil && filters.PractitionerID != uuid.Nil && apt.PractitionerID != filters.PractitionerID {
			continue
		}
		if filters != nil && filters.Status != "" && apt.Status != filters.Status {
			continue
		}
		cp := apt
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memAppointments) FindActiveInRange(_ context.Context, practitionerID uuid.UUID, from, to time.Time) ([]*model.Appointment, error) {
	if m.onFindActiveInRange != nil {
		m.onFindActiveInRange()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	window := schedule.Interval{Start: from, Minutes: int(to.Sub(from) / time.Minute)}
	var out []*model.Appointment
	for _, apt := range m.items {
		if apt.PractitionerID != practitionerID || !apt.IsActive() {
			continue
		}
		if apt.Interval().Overlaps(window) {
			cp := apt
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memAppointments) FindDueForReminder(_ context.Context, from, to time.Time) ([]*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Appointment
	for _, apt := range m.items {
		if apt.Status != model.AppointmentStatusScheduled {
			continue
		}
		if !apt.StartTime.Before(from) && apt.StartTime.Before(to) {
			cp := apt
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memPractitioners struct {
	items map[uuid.UUID]model.Practitioner
}

func (m *memPractitioners) Create(_ context.Context, p *model.Practitioner) error {
	m.items[p.ID] = *p
	return nil
}

func (m *memPractitioners) Get(_ context.Context, id uuid.UUID) (*model.Practitioner, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("practitioner", nil)
	}
	cp := p
	return &cp, nil
}

func (m *memPractitioners) Update(_ context.Context, p *model.Practitioner) error {
	m.items[p.ID] = *p
	return nil
}

func (m *memPractitioners) List(_ context.Context) ([]*model.Practitioner, error) {
	return nil, nil
}

type memPatients struct {
	items map[uuid.UUID]model.Patient
}

func (m *memPatients) Create(_ context.Context, p *model.Patient) error {
	m.items[p.ID] = *p
	return nil
}

func (m *memPatients) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("patient", nil)
	}
	cp := p
	return &cp, nil
}

func (m *memPatients) Update(_ context.Context, p *model.Patient) error {
	m.items[p.ID] = *p
	return nil
}

func (m *memPatients) List(_ context.Context, _ model.Pagination) ([]*model.Patient, error) {
	return nil, nil
}

type memOutbox struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (m *memOutbox) Create(_ context.Context, ev *model.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memOutbox) GetPendingWithLock(_ context.Context, _ int) ([]*model.OutboxEvent, error) {
	return nil, nil
}

func (m *memOutbox) UpdateStatus(_ context.Context, _ uuid.UUID, _ model.OutboxStatus, _ *string) error {
	return nil
}

// ---- fixtures ----

type fixture struct {
	svc          *Service
	appointments *memAppointments
	outbox       *memOutbox
	practitioner *model.Practitioner
	patient      *model.Patient
	patientB     *model.Patient
}

// 2024-03-01 is a Friday; the practitioner attends Monday-Friday
/// 08:00-18:00 with 30-minute default slots.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	practitioner := &model.Practitioner{
		Name:          "Dr. Helena Souza",
		LicenseNumber: "48213",
		LicenseState:  "SP",
		Phone:         "+55 11 98888-0000",
		WorkStart:     "08:00",
		WorkEnd:       "18:00",
		WorkDays:      "1,2,3,4,5",
		SlotMinutes:   30,
		Status:        "active",
	}
	practitioner.ID = uuid.New()

	patient := &model.Patient{Name: "Ana Lima", Phone: "+55 11 97777-0000", Status: "active"}
	patient.ID = uuid.New()
	patientB := &model.Patient{Name: "Bruno Costa", Phone: "+55 11 96666-0000", Status: "active"}
	patientB.ID = uuid.New()

	appointments := newMemAppointments()
	practitioners := &memPractitioners{items: map[uuid.UUID]model.Practitioner{practitioner.ID: *practitioner}}
	patients := &memPatients{items: map[uuid.UUID]model.Patient{patient.ID: *patient, patientB.ID: *patientB}}
	outbox := &memOutbox{}

	svc := NewService(
		appointments,
		practitioners,
		patients,
		outbox,
		schedule.NewPractitionerLocker(2*time.Second),
		clock.Fixed(time.Date(2024, 2, 20, 10, 0, 0, 0, time.UTC)),
		logger.NewLogger(nil),
	)

	return &fixture{
		svc:          svc,
		appointments: appointments,
		outbox:       outbox,
		practitioner: practitioner,
		patient:      patient,
		patientB:     patientB,
	}
}

func bookReq(f *fixture, patientID uuid.UUID, start time.Time, minutes int) *model.BookAppointmentRequest {
	return &model.BookAppointmentRequest{
		PractitionerID:  f.practitioner.ID,
		PatientID:       patientID,
		StartTime:       start,
		DurationMinutes: minutes,
	}
}

func friday(hour, min int) time.Time {
	return time.Date(2024, 3, 1, hour, min, 0, 0, time.UTC)
}

// ---- tests ----

func TestBookCreatesScheduledAppointment(t *testing.T) {
	f := newFixture(t)

	apt, err := f.svc.Book(context.Background(), bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, apt.Status)
	assert.Equal(t, friday(9, 0), apt.StartTime)
	assert.Equal(t, 30, apt.DurationMinutes)
	assert.NotEqual(t, uuid.Nil, apt.ID)

	stored, err := f.appointments.Get(context.Background(), apt.ID)
	require.NoError(t, err)
	assert.Equal(t, apt.ID, stored.ID)
}

func TestBookUsesPractitionerDefaultDuration(t *testing.T) {
	f := newFixture(t)

	apt, err := f.svc.Book(context.Background(), bookReq(f, f.patient.ID, friday(9, 0), 0))
	require.NoError(t, err)
	assert.Equal(t, 30, apt.DurationMinutes)
}

func TestBookUnknownIdentities(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Book(context.Background(), bookReq(f, uuid.New(), friday(9, 0), 30))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))

	req := bookReq(f, f.patient.ID, friday(9, 0), 30)
	req.PractitionerID = uuid.New()
	_, err = f.svc.Book(context.Background(), req)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestBookOutsideAvailability(t *testing.T) {
	f := newFixture(t)

	// Sunday
	_, err := f.svc.Book(context.Background(), bookReq(f, f.patient.ID, time.Date(2024, 3, 3, 9, 0, 0, 0, time.UTC), 30))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrOutsideAvailability))

	// before opening
	_, err = f.svc.Book(context.Background(), bookReq(f, f.patient.ID, friday(7, 30), 30))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrOutsideAvailability))

	// runs past closing
	_, err = f.svc.Book(context.Background(), bookReq(f, f.patient.ID, friday(17, 45), 30))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrOutsideAvailability))
}

func TestBookConflictAndBackToBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 40))
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(9, 30), 30))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrSlotUnavailable))

	// touching endpoints do not overlap
	_, err = f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(9, 40), 30))
	assert.NoError(t, err)
}

func TestRescheduleRecordsTrailAndFreesOldSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	moved, err := f.svc.Reschedule(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		StartTime: friday(10, 0),
		Reason:    "patient asked for a later slot",
	})
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusScheduled, moved.Status)
	assert.Equal(t, friday(10, 0), moved.StartTime)
	require.NotNil(t, moved.PreviousStart)
	assert.Equal(t, friday(9, 0), *moved.PreviousStart)
	require.NotNil(t, moved.RescheduleReason)
	assert.Equal(t, "patient asked for a later slot", *moved.RescheduleReason)

	// the vacated 09:00 slot is bookable again
	_, err = f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(9, 0), 30))
	assert.NoError(t, err)
}

func TestRescheduleConflictLeavesOriginalUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)
	blocker, err := f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(11, 0), 30))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		StartTime: blocker.StartTime.Add(10 * time.Minute),
		Reason:    "attempted move into an occupied slot",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrSlotUnavailable))

	unchanged, err := f.appointments.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, friday(9, 0), unchanged.StartTime)
	assert.Equal(t, model.AppointmentStatusScheduled, unchanged.Status)
	assert.Nil(t, unchanged.PreviousStart)
	assert.Nil(t, unchanged.RescheduleReason)
}

func TestRescheduleRequiresReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	_, err = f.svc.Reschedule(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		StartTime: friday(10, 0),
		Reason:    "   ",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestRescheduleExcludesItselfFromConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	// shifting within its own occupied window must not self-conflict
	moved, err := f.svc.Reschedule(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		StartTime: friday(9, 15),
		Reason:    "small shift",
	})
	require.NoError(t, err)
	assert.Equal(t, friday(9, 15), moved.StartTime)
}

func TestTransitionTable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	confirmed, err := f.svc.Transition(ctx, apt.ID, EventConfirm, "")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusConfirmed, confirmed.Status)

	// confirming twice is not an allowed edge
	_, err = f.svc.Transition(ctx, apt.ID, EventConfirm, "")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	completed, err := f.svc.Transition(ctx, apt.ID, EventComplete, "")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, completed.Status)
}

func TestTerminalStatesAreClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	terminalEvents := []Event{EventConfirm, EventComplete, EventCancel, EventNoShow}
	finishers := []Event{EventComplete, EventCancel, EventNoShow}

	for i, finisher := range finishers {
		apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9+i, 0), 30))
		require.NoError(t, err)
		_, err = f.svc.Transition(ctx, apt.ID, finisher, "done")
		require.NoError(t, err)

		for _, ev := range terminalEvents {
			_, err := f.svc.Transition(ctx, apt.ID, ev, "")
			assert.True(t, apperrors.IsCode(err, apperrors.ErrTerminalState),
				"event %s after %s must hit a closed state", ev, finisher)
		}

		_, err = f.svc.Reschedule(ctx, apt.ID, &model.RescheduleAppointmentRequest{
			StartTime: friday(16, 0),
			Reason:    "attempt on terminal appointment",
		})
		assert.True(t, apperrors.IsCode(err, apperrors.ErrTerminalState))
	}
}

func TestCancelReleasesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, apt.ID, EventCancel, "patient travelling")
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(9, 0), 30))
	assert.NoError(t, err)
}

func TestIsSlotAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.svc.IsSlotAvailable(ctx, f.practitioner.ID, friday(9, 0), 30)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	ok, err = f.svc.IsSlotAvailable(ctx, f.practitioner.ID, friday(9, 15), 30)
	require.NoError(t, err)
	assert.False(t, ok)

	// outside availability answers false rather than erroring
	ok, err = f.svc.IsSlotAvailable(ctx, f.practitioner.ID, friday(22, 0), 30)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAvailableSlotsSkipBookedIntervals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(8, 0), 30))
	require.NoError(t, err)

	slots, err := f.svc.AvailableSlots(ctx, f.practitioner.ID, friday(0, 0))
	require.NoError(t, err)
	require.NotEmpty(t, slots)

	assert.Equal(t, friday(8, 30), slots[0].Start, "first free slot comes after the booked one")
	for _, slot := range slots {
		assert.False(t, slot.Start.Before(friday(8, 0)))
		assert.False(t, slot.End.After(friday(18, 0)))
	}
}

// The scenario from the scheduling contract: a booking, a rejected
// overlap, a reschedule freeing the window, then the rejected booking
// succeeding.
func TestBookingScenarioEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(9, 15), 30))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrSlotUnavailable))

	_, err = f.svc.Reschedule(ctx, first.ID, &model.RescheduleAppointmentRequest{
		StartTime: friday(10, 0),
		Reason:    "clinic requested a later start",
	})
	require.NoError(t, err)

	_, err = f.svc.Book(ctx, bookReq(f, f.patientB.ID, friday(9, 15), 30))
	assert.NoError(t, err)
}

// A writer outside this process (no shared lock) finishes the
// appointment after the reschedule has re-validated it but before the
// commit. The status-guarded update must reject the write instead of
// quietly dragging a completed appointment back to scheduled.
func TestRescheduleRejectedWhenFinishedMidFlight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	f.appointments.onFindActiveInRange = func() {
		finished, err := f.appointments.Get(ctx, apt.ID)
		require.NoError(t, err)
		finished.Status = model.AppointmentStatusCompleted
		require.NoError(t, f.appointments.Update(ctx, finished))
	}

	_, err = f.svc.Reschedule(ctx, apt.ID, &model.RescheduleAppointmentRequest{
		StartTime: friday(10, 0),
		Reason:    "move requested while visit was closing",
	})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	stored, err := f.appointments.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, stored.Status, "terminal status must survive")
	assert.Equal(t, friday(9, 0), stored.StartTime)
	assert.Nil(t, stored.RescheduleReason)
}

func TestConcurrentFinishersExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apt, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, friday(9, 0), 30))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, ev := range []Event{EventComplete, EventCancel} {
		wg.Add(1)
		go func(ev Event) {
			defer wg.Done()
			_, err := f.svc.Transition(ctx, apt.ID, ev, "")
			results <- err
		}(ev)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, apperrors.IsCode(err, apperrors.ErrTerminalState),
			"the losing transition must hit the already-closed state, got: %v", err)
	}
	assert.Equal(t, 1, successes)

	stored, err := f.appointments.Get(ctx, apt.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsTerminal())
}

func TestConcurrentBookingsSamePractitionerAtMostOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			// all intervals overlap 09:00-09:30
			start := friday(9, 0).Add(time.Duration(n%3) * 10 * time.Minute)
			_, err := f.svc.Book(ctx, bookReq(f, f.patient.ID, start, 30))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		ok := apperrors.IsCode(err, apperrors.ErrSlotUnavailable) ||
			apperrors.IsCode(err, apperrors.ErrScheduleBusy)
		assert.True(t, ok, "unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes, "exactly one of the overlapping bookings may commit")
}
