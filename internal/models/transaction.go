package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction — запись append-only леджера комиссий.
// Денежные поля после создания не изменяются; обновления касаются
// только статуса и ссылок на объекты провайдера.
type Transaction struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PartnerID             uuid.UUID  `db:"partner_id" json:"partner_id"`
	Type                  string     `db:"type" json:"type"`
	Status                string     `db:"status" json:"status"`
	GrossAmountCents      int64      `db:"gross_amount_cents" json:"gross_amount_cents"`
	CommissionRate        float64    `db:"commission_rate" json:"commission_rate"`
	CommissionCents       int64      `db:"commission_cents" json:"commission_cents"`
	PlatformCents         int64      `db:"platform_cents" json:"platform_cents"`
	Currency              string     `db:"currency" json:"currency"`
	StripePaymentID       *string    `db:"stripe_payment_id" json:"stripe_payment_id,omitempty"`
	StripeChargeID        *string    `db:"stripe_charge_id" json:"stripe_charge_id,omitempty"`
	StripeTransferID      *string    `db:"stripe_transfer_id" json:"stripe_transfer_id,omitempty"`
	OriginalTransactionID *uuid.UUID `db:"original_transaction_id" json:"original_transaction_id,omitempty"`
	Description           *string    `db:"description" json:"description,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updated_at"`
}

// Payout — выплата партнёру. Ключ идемпотентности — stripe_payout_id:
// повторная доставка того же события не создаёт дубликат.
type Payout struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PartnerID      uuid.UUID  `db:"partner_id" json:"partner_id"`
	StripePayoutID string     `db:"stripe_payout_id" json:"stripe_payout_id"`
	AmountCents    int64      `db:"amount_cents" json:"amount_cents"`
	Currency       string     `db:"currency" json:"currency"`
	Status         string     `db:"status" json:"status"`
	FailureReason  *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	ArrivalDate    *time.Time `db:"arrival_date" json:"arrival_date,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
