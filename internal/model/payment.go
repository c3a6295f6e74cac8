package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentMethodCash       PaymentMethod = "cash"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodTransfer   PaymentMethod = "bank_transfer"
	PaymentMethodCheque     PaymentMethod = "cheque"
	PaymentMethodInsurance  PaymentMethod = "insurance"
)

// DefaultFeePercent returns the processing fee charged for the method.
// Card payments carry a percentage fee; everything else settles at face
// value.
func (m PaymentMethod) DefaultFeePercent() decimal.Decimal {
	switch m {
	case PaymentMethodDebitCard:
		return decimal.NewFromFloat(2.0)
	case PaymentMethodCreditCard:
		return decimal.NewFromFloat(3.5)
	default:
		return decimal.Zero
	}
}

type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusCancelled     PaymentStatus = "cancelled"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
)

// Payment is the financial settlement attached to a completed
// appointment. FinalValue and NetValue are derived figures: they are
// recomputed from gross, discount and fee whenever any of those change,
// never stored independently.
type Payment struct {
	Base
	AppointmentID      uuid.UUID       `db:"appointment_id" json:"appointment_id"`
	GrossValue         decimal.Decimal `db:"gross_value" json:"gross_value"`
	Discount           decimal.Decimal `db:"discount" json:"discount"`
	FinalValue         decimal.Decimal `db:"final_value" json:"final_value"`
	FeePercent         decimal.Decimal `db:"fee_percent" json:"fee_percent"`
	NetValue           decimal.Decimal `db:"net_value" json:"net_value"`
	DueDate            time.Time       `db:"due_date" json:"due_date"`
	PaidAt             *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	Method             *PaymentMethod  `db:"method" json:"method,omitempty"`
	TransactionRef     *string         `db:"transaction_ref" json:"transaction_ref,omitempty"`
	Status             PaymentStatus   `db:"status" json:"status"`
	Notes              string          `db:"notes" json:"notes,omitempty"`
	Installments       int             `db:"installments" json:"installments"`
	CurrentInstallment int             `db:"current_installment" json:"current_installment"`
}

// ComputeSettlement derives the discount-adjusted and fee-adjusted
// figures for a payment. A discount exceeding gross clamps the final
// value to zero rather than going negative.
func ComputeSettlement(gross, discount, feePercent decimal.Decimal) (finalValue, netValue decimal.Decimal) {
	finalValue = gross.Sub(discount)
	if finalValue.IsNegative() {
		finalValue = decimal.Zero
	}
	fee := finalValue.Mul(feePercent.Div(decimal.NewFromInt(100)))
	netValue = finalValue.Sub(fee)
	return finalValue, netValue
}

// Recalculate re-derives FinalValue and NetValue from the current
// gross, discount and fee. Every mutation of those inputs must be
// followed by a Recalculate before the payment is persisted.
func (p *Payment) Recalculate() {
	p.FinalValue, p.NetValue = ComputeSettlement(p.GrossValue, p.Discount, p.FeePercent)
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

// IsOverdue reports whether a pending payment passed its due date.
func (p *Payment) IsOverdue(now time.Time) bool {
	return p.Status == PaymentStatusPending && !p.DueDate.IsZero() && p.DueDate.Before(now)
}

// Payable reports whether the payment may still be marked paid.
func (p *Payment) Payable() bool {
	return p.Status == PaymentStatusPending || p.Status == PaymentStatusPartiallyPaid
}

// InstallmentLabel mirrors the receipt wording: "1/3" for installment
// plans, "in full" otherwise.
func (p *Payment) InstallmentLabel() string {
	if p.Installments <= 1 {
		return "in full"
	}
	return fmt.Sprintf("%d/%d", p.CurrentInstallment, p.Installments)
}

type CreatePaymentRequest struct {
	AppointmentID uuid.UUID        `json:"appointment_id" binding:"required"`
	Discount      *decimal.Decimal `json:"discount"`
	DueDate       *time.Time       `json:"due_date"`
	Installments  int              `json:"installments" binding:"omitempty,min=1,max=36"`
	Notes         string           `json:"notes" binding:"max=1000"`
}

type MarkPaidRequest struct {
	Method         PaymentMethod `json:"method" binding:"required,oneof=cash debit_card credit_card pix bank_transfer cheque insurance"`
	TransactionRef string        `json:"transaction_ref" binding:"max=100"`
}
