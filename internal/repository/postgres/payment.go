package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odontosimples/clinic-api/internal/model"
	"github.com/odontosimples/clinic-api/internal/repository"
)

const paymentColumns = `
	id, appointment_id, gross_value, discount, final_value,
	fee_percent, net_value, due_date, paid_at, method,
	transaction_ref, status, notes, installments, current_installment,
	created_at, updated_at
`

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (
			:id, :appointment_id, :gross_value, :discount, :final_value,
			:fee_percent, :net_value, :due_date, :paid_at, :method,
			:transaction_ref, :status, :notes, :installments, :current_installment,
			:created_at, :updated_at
		)
	`
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
		payment.UpdatedAt = payment.CreatedAt
	}

	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	var payment model.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, notFoundOr(err, "payment")
	}
	return &payment, nil
}

func (r *paymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	query := `
		UPDATE payments
		SET discount = :discount,
			final_value = :final_value,
			fee_percent = :fee_percent,
			net_value = :net_value,
			due_date = :due_date,
			paid_at = :paid_at,
			method = :method,
			transaction_ref = :transaction_ref,
			status = :status,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return notFoundOr(fmt.Errorf("no rows updated"), "payment")
	}
	return nil
}

// UpdateFromStatus commits the row only while its status still matches
// prev, so two settlements of the same invoice cannot both land.
func (r *paymentRepository) UpdateFromStatus(ctx context.Context, payment *model.Payment, prev model.PaymentStatus) error {
	query := `
		UPDATE payments
		SET discount = :discount,
			final_value = :final_value,
			fee_percent = :fee_percent,
			net_value = :net_value,
			due_date = :due_date,
			paid_at = :paid_at,
			method = :method,
			transaction_ref = :transaction_ref,
			status = :status,
			notes = :notes,
			updated_at = :updated_at
		WHERE id = :id AND status = :prev_status
	`
	arg := struct {
		*model.Payment
		PrevStatus model.PaymentStatus `db:"prev_status"`
	}{payment, prev}

	result, err := r.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
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

func (r *paymentRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE appointment_id = $1`

	var payment model.Payment
	if err := r.db.GetContext(ctx, &payment, query, appointmentID); err != nil {
		return nil, notFoundOr(err, "payment")
	}
	return &payment, nil
}

func (r *paymentRepository) ListOverdue(ctx context.Context, asOf time.Time) ([]*model.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = 'pending' AND due_date < $1
		ORDER BY due_date
	`
	var payments []*model.Payment
	if err := r.db.SelectContext(ctx, &payments, query, asOf); err != nil {
		return nil, fmt.Errorf("failed to list overdue payments: %w", err)
	}
	return payments, nil
}
