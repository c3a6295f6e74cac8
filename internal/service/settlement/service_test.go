package settlement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/pkg/clock"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
	"github.com/odontosimples/clinic-api/pkg/logger"
)

// ---- in-memory fakes ----

type memPayments struct {
	mu    sync.Mutex
	items map[uuid.UUID]model.Payment
}

func newMemPayments() *memPayments {
	return &memPayments{items: make(map[uuid.UUID]model.Payment)}
}

func (m *memPayments) Create(_ context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[p.ID] = *p
	return nil
}

func (m *memPayments) Get(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("payment", nil)
	}
	cp := p
	return &cp, nil
}

func (m *memPayments) Update(_ context.Context, p *model.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[p.ID]; !ok {
		return apperrors.NotFound("payment", nil)
	}
	m.items[p.ID] = *p
	return nil
}

func (m *memPayments) UpdateFromStatus(_ context.Context, p *model.Payment, prev model.PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.items[p.ID]
	if !ok {
		return apperrors.NotFound("payment", nil)
	}
	if stored.Status != prev {
		return repository.ErrStatusChanged
	}
	m.items[p.ID] = *p
	return nil
}

func (m *memPayments) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.items {
		if p.AppointmentID == appointmentID {
			cp := p
			return &cp, nil
		}
	}
	return nil, apperrors.NotFound("payment", nil)
}

func (m *memPayments) ListOverdue(_ context.Context, asOf time.Time) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.items {
		if p.IsOverdue(asOf) {
			cp := p
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memAppointments struct {
	items map[uuid.UUID]model.Appointment
}

func (m *memAppointments) Create(_ context.Context, a *model.Appointment) error {
	m.items[a.ID] = *a
	return nil
}

func (m *memAppointments) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperrors.NotFound("appointment", nil)
	}
	cp := a
	return &cp, nil
}

func (m *memAppointments) Update(_ context.Context, a *model.Appointment) error {
	m.items[a.ID] = *a
	return nil
}

func (m *memAppointments) UpdateFromStatus(_ context.Context, a *model.Appointment, prev model.AppointmentStatus) error {
	stored, ok := m.items[a.ID]
	if !ok {
		return apperrors.NotFound("appointment", nil)
	}
	if stored.Status != prev {
		return repository.ErrStatusChanged
	}
	m.items[a.ID] = *a
	return nil
}

func (m *memAppointments) List(_ context.Context, _ *model.AppointmentFilters) ([]*model.Appointment, error) {
	return nil, nil
}

func (m *memAppointments) FindActiveInRange(_ context.Context, _ uuid.UUID, _, _ time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

func (m *memAppointments) FindDueForReminder(_ context.Context, _, _ time.Time) ([]*model.Appointment, error) {
	return nil, nil
}

type memOutbox struct {
	events []*model.OutboxEvent
}

func (m *memOutbox) Create(_ context.Context, ev *model.OutboxEvent) error {
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

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *memAppointments, *memPayments, *memOutbox) {
	t.Helper()
	payments := newMemPayments()
	appointments := &memAppointments{items: make(map[uuid.UUID]model.Appointment)}
	outbox := &memOutbox{}
	svc := NewService(payments, appointments, outbox, clock.Fixed(testNow), logger.NewLogger(nil))
	return svc, appointments, payments, outbox
}

func completedAppointment(t *testing.T, appointments *memAppointments, value string) *model.Appointment {
	t.Helper()
	apt := &model.Appointment{
		PractitionerID:  uuid.New(),
		PatientID:       uuid.New(),
		StartTime:       testNow.Add(-2 * time.Hour),
		DurationMinutes: 30,
		Status:          model.AppointmentStatusCompleted,
	}
	apt.ID = uuid.New()
	apt.Value.Decimal = decimal.RequireFromString(value)
	apt.Value.Valid = true
	require.NoError(t, appointments.Create(context.Background(), apt))
	return apt
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ---- tests ----

func TestComputeSettlement(t *testing.T) {
	svc, _, _, _ := newService(t)

	tests := []struct {
		name                 string
		gross, discount, fee string
		wantFinal, wantNet   string
	}{
		{"card fee applied after discount", "200", "20", "3.5", "180", "173.7"},
		{"no discount no fee", "150", "0", "0", "150", "150"},
		{"discount exceeding gross clamps to zero", "100", "150", "0", "0", "0"},
		{"debit fee", "100", "0", "2", "100", "98"},
		{"zero gross", "0", "0", "3.5", "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			finalValue, netValue := svc.Compute(dec(tt.gross), dec(tt.discount), dec(tt.fee))
			assert.True(t, finalValue.Equal(dec(tt.wantFinal)),
				"final: got %s want %s", finalValue, tt.wantFinal)
			assert.True(t, netValue.Equal(dec(tt.wantNet)),
				"net: got %s want %s", netValue, tt.wantNet)
		})
	}
}

func TestCreateForAppointment(t *testing.T) {
	svc, appointments, _, _ := newService(t)
	apt := completedAppointment(t, appointments, "200")
	discount := dec("20")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{
		AppointmentID: apt.ID,
		Discount:      &discount,
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.True(t, payment.GrossValue.Equal(dec("200")))
	assert.True(t, payment.FinalValue.Equal(dec("180")))
	assert.True(t, payment.NetValue.Equal(dec("180")), "no fee before a method is chosen")
	assert.Equal(t, testNow.AddDate(0, 0, 30), payment.DueDate)
	assert.Equal(t, 1, payment.Installments)
}

func TestCreateRejectsUnbilledAppointments(t *testing.T) {
	svc, appointments, _, _ := newService(t)

	scheduled := completedAppointment(t, appointments, "200")
	scheduled.Status = model.AppointmentStatusScheduled
	require.NoError(t, appointments.Update(context.Background(), scheduled))

	_, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: scheduled.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	unpriced := completedAppointment(t, appointments, "200")
	unpriced.Value.Valid = false
	require.NoError(t, appointments.Update(context.Background(), unpriced))

	_, err = svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: unpriced.ID})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: uuid.New()})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestMarkPaidAppliesMethodFee(t *testing.T) {
	svc, appointments, _, outbox := newService(t)
	apt := completedAppointment(t, appointments, "200")
	discount := dec("20")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{
		AppointmentID: apt.ID,
		Discount:      &discount,
	})
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), payment.ID, &model.MarkPaidRequest{
		Method:         model.PaymentMethodCreditCard,
		TransactionRef: "txn-1881",
	})
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPaid, paid.Status)
	assert.True(t, paid.FeePercent.Equal(dec("3.5")))
	assert.True(t, paid.FinalValue.Equal(dec("180")))
	assert.True(t, paid.NetValue.Equal(dec("173.7")))
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, testNow, *paid.PaidAt)
	require.NotNil(t, paid.TransactionRef)
	assert.Equal(t, "txn-1881", *paid.TransactionRef)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, model.EventPaymentSettled, outbox.events[0].EventType)

	// settling twice is not allowed
	_, err = svc.MarkPaid(context.Background(), payment.ID, &model.MarkPaidRequest{Method: model.PaymentMethodCash})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
}

// Two cashiers settle the same invoice at once. The status-guarded
// write lets exactly one land; the other sees an invalid transition
// and no duplicate settlement event is recorded.
func TestConcurrentMarkPaidSettlesOnce(t *testing.T) {
	svc, appointments, payments, outbox := newService(t)
	apt := completedAppointment(t, appointments, "200")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, method := range []model.PaymentMethod{model.PaymentMethodCash, model.PaymentMethodCreditCard} {
		wg.Add(1)
		go func(method model.PaymentMethod) {
			defer wg.Done()
			_, err := svc.MarkPaid(context.Background(), payment.ID, &model.MarkPaidRequest{Method: method})
			results <- err
		}(method)
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition),
			"the losing settlement must fail the transition, got: %v", err)
	}
	assert.Equal(t, 1, successes)

	stored, err := payments.Get(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, stored.Status)

	require.Len(t, outbox.events, 1)
	assert.Equal(t, model.EventPaymentSettled, outbox.events[0].EventType)
}

func TestMarkPaidCashCarriesNoFee(t *testing.T) {
	svc, appointments, _, _ := newService(t)
	apt := completedAppointment(t, appointments, "120")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	paid, err := svc.MarkPaid(context.Background(), payment.ID, &model.MarkPaidRequest{Method: model.PaymentMethodCash})
	require.NoError(t, err)
	assert.True(t, paid.NetValue.Equal(dec("120")))
}

func TestApplyDiscountRecomputes(t *testing.T) {
	svc, appointments, _, _ := newService(t)
	apt := completedAppointment(t, appointments, "100")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	updated, err := svc.ApplyDiscount(context.Background(), payment.ID, dec("25"))
	require.NoError(t, err)
	assert.True(t, updated.FinalValue.Equal(dec("75")))

	// clamping: discount beyond gross yields a zero invoice, not a credit
	updated, err = svc.ApplyDiscount(context.Background(), payment.ID, dec("150"))
	require.NoError(t, err)
	assert.True(t, updated.FinalValue.Equal(dec("0")))
	assert.True(t, updated.NetValue.Equal(dec("0")))

	_, err = svc.ApplyDiscount(context.Background(), payment.ID, dec("-5"))
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestRefundOnlyAfterSettlement(t *testing.T) {
	svc, appointments, _, outbox := newService(t)
	apt := completedAppointment(t, appointments, "90")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	_, err = svc.Refund(context.Background(), payment.ID, "patient complaint")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))

	_, err = svc.MarkPaid(context.Background(), payment.ID, &model.MarkPaidRequest{Method: model.PaymentMethodPix})
	require.NoError(t, err)

	refunded, err := svc.Refund(context.Background(), payment.ID, "patient complaint")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusRefunded, refunded.Status)

	require.Len(t, outbox.events, 2)
	assert.Equal(t, model.EventPaymentRefunded, outbox.events[1].EventType)
}

func TestCancelVoidsUnpaidOnly(t *testing.T) {
	svc, appointments, _, _ := newService(t)
	apt := completedAppointment(t, appointments, "60")

	payment, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), payment.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCancelled, cancelled.Status)

	_, err = svc.Cancel(context.Background(), payment.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidTransition))
}

func TestOverdueSummary(t *testing.T) {
	svc, appointments, _, _ := newService(t)

	lateDue := testNow.AddDate(0, 0, -5)
	for _, gross := range []string{"100", "250"} {
		apt := completedAppointment(t, appointments, gross)
		_, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{
			AppointmentID: apt.ID,
			DueDate:       &lateDue,
		})
		require.NoError(t, err)
	}
	// a current invoice stays out of the rollup
	apt := completedAppointment(t, appointments, "999")
	_, err := svc.CreateForAppointment(context.Background(), &model.CreatePaymentRequest{AppointmentID: apt.ID})
	require.NoError(t, err)

	summary, err := svc.SummarizeOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.True(t, summary.Total.Equal(dec("350")), "got %s", summary.Total)
}
