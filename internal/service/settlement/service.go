package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
	"github.com/odontosimples/clinic-api/pkg/clock"
	apperrors "github.com/odontosimples/clinic-api/pkg/errors"
	"github.com/odontosimples/clinic-api/pkg/logger"
)

// defaultDueDays is how long after creation an invoice falls due when
// the caller does not say otherwise.
const defaultDueDays = 30

// Service owns the financial settlement of completed appointments.
// Derived figures (final and net value) are always recomputed from
// gross, discount and fee before a payment is persisted, so the stored
// row can never disagree with its inputs.
type Service struct {
	payments     repository.PaymentRepository
	appointments repository.AppointmentRepository
	outbox       repository.OutboxRepository
	clock        clock.Clock
	logger       *logger.Logger
}

func NewService(
	payments repository.PaymentRepository,
	appointments repository.AppointmentRepository,
	outbox repository.OutboxRepository,
	clk clock.Clock,
	log *logger.Logger,
) *Service {
	return &Service{
		payments:     payments,
		appointments: appointments,
		outbox:       outbox,
		clock:        clk,
		logger:       log,
	}
}

// Compute derives the discount-adjusted final value and the
// fee-adjusted net value without touching any stored state.
func (s *Service) Compute(gross, discount, feePercent decimal.Decimal) (finalValue, netValue decimal.Decimal) {
	return model.ComputeSettlement(gross, discount, feePercent)
}

// CreateForAppointment opens a pending payment for a completed
// appointment, taking the gross value from the appointment record. Only
// completed appointments are billable.
func (s *Service) CreateForAppointment(ctx context.Context, req *model.CreatePaymentRequest) (*model.Payment, error) {
	apt, err := s.appointments.Get(ctx, req.AppointmentID)
	if err != nil {
		return nil, err
	}
	if apt.Status != model.AppointmentStatusCompleted {
		return nil, apperrors.InvalidTransition(string(apt.Status), "create payment")
	}
	if !apt.Value.Valid {
		return nil, apperrors.BadRequest("appointment has no billable value", nil)
	}

	discount := decimal.Zero
	if req.Discount != nil {
		if req.Discount.IsNegative() {
			return nil, apperrors.BadRequest("discount cannot be negative", nil)
		}
		discount = *req.Discount
	}

	now := s.clock.Now()
	dueDate := now.AddDate(0, 0, defaultDueDays)
	if req.DueDate != nil {
		dueDate = *req.DueDate
	}
	installments := req.Installments
	if installments < 1 {
		installments = 1
	}

	payment := &model.Payment{
		AppointmentID:      apt.ID,
		GrossValue:         apt.Value.Decimal,
		Discount:           discount,
		FeePercent:         decimal.Zero,
		DueDate:            dueDate,
		Status:             model.PaymentStatusPending,
		Notes:              req.Notes,
		Installments:       installments,
		CurrentInstallment: 1,
	}
	payment.ID = uuid.New()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	payment.Recalculate()

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return payment, nil
}

// MarkPaid settles a payable payment. The processing fee follows the
// chosen method, and the derived figures are recomputed before the row
// is written.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, req *model.MarkPaidRequest) (*model.Payment, error) {
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.Payable() {
		return nil, apperrors.InvalidTransition(string(payment.Status), "mark paid")
	}

	now := s.clock.Now()
	updated := *payment
	method := req.Method
	updated.Method = &method
	updated.FeePercent = method.DefaultFeePercent()
	updated.Status = model.PaymentStatusPaid
	updated.PaidAt = &now
	updated.UpdatedAt = now
	if req.TransactionRef != "" {
		ref := req.TransactionRef
		updated.TransactionRef = &ref
	}
	updated.Recalculate()

	if err := s.commit(ctx, &updated, payment.Status, "mark paid"); err != nil {
		return nil, err
	}

	s.recordEvent(ctx, model.EventPaymentSettled, &updated)
	return &updated, nil
}

// ApplyDiscount changes the discount of a still-payable payment and
// recomputes the derived figures.
func (s *Service) ApplyDiscount(ctx context.Context, id uuid.UUID, discount decimal.Decimal) (*model.Payment, error) {
	if discount.IsNegative() {
		return nil, apperrors.BadRequest("discount cannot be negative", nil)
	}
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.Payable() {
		return nil, apperrors.InvalidTransition(string(payment.Status), "apply discount")
	}

	updated := *payment
	updated.Discount = discount
	updated.UpdatedAt = s.clock.Now()
	updated.Recalculate()

	if err := s.commit(ctx, &updated, payment.Status, "apply discount"); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Refund reverses a settled payment.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, notes string) (*model.Payment, error) {
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.IsPaid() {
		return nil, apperrors.InvalidTransition(string(payment.Status), "refund")
	}

	updated := *payment
	updated.Status = model.PaymentStatusRefunded
	updated.UpdatedAt = s.clock.Now()
	if notes != "" {
		updated.Notes = notes
	}

	if err := s.commit(ctx, &updated, payment.Status, "refund"); err != nil {
		return nil, err
	}

	s.recordEvent(ctx, model.EventPaymentRefunded, &updated)
	return &updated, nil
}

// Cancel voids an unpaid payment, typically after the underlying
// appointment is written off.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	payment, err := s.payments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.Payable() {
		return nil, apperrors.InvalidTransition(string(payment.Status), "cancel")
	}

	updated := *payment
	updated.Status = model.PaymentStatusCancelled
	updated.UpdatedAt = s.clock.Now()

	if err := s.commit(ctx, &updated, payment.Status, "cancel"); err != nil {
		return nil, err
	}
	return &updated, nil
}

// commit writes the payment guarded on the status it was derived from.
// A concurrent writer that got there first surfaces as an invalid
// transition from the payment's actual current status.
func (s *Service) commit(ctx context.Context, p *model.Payment, prev model.PaymentStatus, action string) error {
	err := s.payments.UpdateFromStatus(ctx, p, prev)
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrStatusChanged) {
		if current, gerr := s.payments.Get(ctx, p.ID); gerr == nil {
			return apperrors.InvalidTransition(string(current.Status), action)
		}
		return apperrors.InvalidTransition(string(prev), action)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return s.payments.Get(ctx, id)
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	return s.payments.GetByAppointment(ctx, appointmentID)
}

// ListOverdue returns pending payments whose due date has passed.
func (s *Service) ListOverdue(ctx context.Context) ([]*model.Payment, error) {
	overdue, err := s.payments.ListOverdue(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	return overdue, nil
}

func (s *Service) recordEvent(ctx context.Context, eventType string, payment *model.Payment) {
	ev, err := model.NewOutboxEvent(eventType, payment)
	if err != nil {
		s.logger.Error(err, "failed to build outbox event", "event_type", eventType)
		return
	}
	ev.CreatedAt = s.clock.Now()
	if err := s.outbox.Create(ctx, ev); err != nil {
		s.logger.Error(err, "failed to record outbox event",
			"event_type", eventType, "payment_id", payment.ID.String())
	}
}

// OverdueSummary is a rollup used by the receivables report.
type OverdueSummary struct {
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
	AsOf  time.Time       `json:"as_of"`
}

// SummarizeOverdue totals the outstanding final values of overdue
// payments.
func (s *Service) SummarizeOverdue(ctx context.Context) (*OverdueSummary, error) {
	overdue, err := s.ListOverdue(ctx)
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, p := range overdue {
		total = total.Add(p.FinalValue)
	}
	return &OverdueSummary{Count: len(overdue), Total: total, AsOf: s.clock.Now()}, nil
}
