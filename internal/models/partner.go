package models

import (
	"time"

	"github.com/google/uuid"
)

// Partner описывает партнёрский аккаунт программы реселлеров.
type Partner struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	StripeAccountID   *string    `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	Tier              string     `db:"tier" json:"tier"`
	Status            string     `db:"status" json:"status"`
	CommissionRate    float64    `db:"commission_rate" json:"commission_rate"`
	DetailsSubmitted  bool       `db:"details_submitted" json:"details_submitted"`
	ChargesEnabled    bool       `db:"charges_enabled" json:"charges_enabled"`
	PayoutsEnabled    bool       `db:"payouts_enabled" json:"payouts_enabled"`
	DisabledReason    *string    `db:"disabled_reason" json:"disabled_reason,omitempty"`
	TotalEarnedCents  int64      `db:"total_earned_cents" json:"total_earned_cents"`
	PendingCents      int64      `db:"pending_cents" json:"pending_cents"`
	AvailableCents    int64      `db:"available_cents" json:"available_cents"`
	LastPayoutAt      *time.Time `db:"last_payout_at" json:"last_payout_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// PartnerBalance срез текущих балансов партнёра.
type PartnerBalance struct {
	PartnerID        uuid.UUID  `db:"partner_id" json:"partner_id"`
	TotalEarnedCents int64      `db:"total_earned_cents" json:"total_earned_cents"`
	PendingCents     int64      `db:"pending_cents" json:"pending_cents"`
	AvailableCents   int64      `db:"available_cents" json:"available_cents"`
	LastPayoutAt     *time.Time `db:"last_payout_at" json:"last_payout_at,omitempty"`
}
