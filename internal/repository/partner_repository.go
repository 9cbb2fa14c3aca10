package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository/common"
)

// ErrPartnerNotFound возвращается, когда партнёр не найден.
var ErrPartnerNotFound = errors.New("partner not found")

// PartnerRepository отвечает за таблицу partners.
// Балансы партнёра здесь не меняются напрямую: их двигают
// транзакционные методы TransactionRepository вместе со строками леджера.
type PartnerRepository struct {
	db *sqlx.DB
}

// NewPartnerRepository создаёт экземпляр репозитория.
func NewPartnerRepository(db *sqlx.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// Create регистрирует партнёра.
func (r *PartnerRepository) Create(ctx context.Context, partner *models.Partner) error {
	query := `
		INSERT INTO partners (name, email, stripe_account_id, tier, status, commission_rate)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		partner.Name, partner.Email, partner.StripeAccountID,
		partner.Tier, partner.Status, partner.CommissionRate,
	).Scan(&partner.ID, &partner.CreatedAt, &partner.UpdatedAt); err != nil {
		return fmt.Errorf("partner repository: create: %w", err)
	}
	return nil
}

// GetByID возвращает партнёра по идентификатору.
func (r *PartnerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	return common.GetByID[models.Partner](ctx, r.db, "partners", id, ErrPartnerNotFound)
}

// GetByStripeAccountID возвращает партнёра по идентификатору аккаунта провайдера.
func (r *PartnerRepository) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Partner, error) {
	return common.GetByField[models.Partner](ctx, r.db, "partners", "stripe_account_id", accountID, ErrPartnerNotFound)
}

// List возвращает партнёров, свежие первыми. Неактивные скрыты.
func (r *PartnerRepository) List(ctx context.Context, includeInactive bool) ([]models.Partner, error) {
	query := `SELECT * FROM partners`
	if !includeInactive {
		query += ` WHERE status <> 'inactive'`
	}
	query += ` ORDER BY created_at DESC`

	var partners []models.Partner
	if err := r.db.SelectContext(ctx, &partners, query); err != nil {
		return nil, fmt.Errorf("partner repository: list: %w", err)
	}
	return partners, nil
}

// UpdateOnboarding сохраняет флаги онбординга и выведенный из них статус.
func (r *PartnerRepository) UpdateOnboarding(ctx context.Context, id uuid.UUID, detailsSubmitted, chargesEnabled, payoutsEnabled bool, disabledReason *string, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE partners
		SET details_submitted = $2,
			charges_enabled = $3,
			payouts_enabled = $4,
			disabled_reason = $5,
			status = $6,
			updated_at = NOW()
		WHERE id = $1
	`, id, detailsSubmitted, chargesEnabled, payoutsEnabled, disabledReason, status)
	if err != nil {
		return fmt.Errorf("partner repository: update onboarding: %w", err)
	}
	return requirePartnerRow(res)
}

// SetStripeAccount привязывает аккаунт провайдера к партнёру.
func (r *PartnerRepository) SetStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE partners SET stripe_account_id = $2, updated_at = NOW() WHERE id = $1
	`, id, accountID)
	if err != nil {
		return fmt.Errorf("partner repository: set stripe account: %w", err)
	}
	return requirePartnerRow(res)
}

// SetTier меняет уровень партнёра и его комиссионную ставку.
func (r *PartnerRepository) SetTier(ctx context.Context, id uuid.UUID, tier string, rate float64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE partners SET tier = $2, commission_rate = $3, updated_at = NOW() WHERE id = $1
	`, id, tier, rate)
	if err != nil {
		return fmt.Errorf("partner repository: set tier: %w", err)
	}
	return requirePartnerRow(res)
}

// SoftDelete переводит партнёра в статус inactive. Строка и леджер остаются.
func (r *PartnerRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE partners SET status = 'inactive', updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("partner repository: soft delete: %w", err)
	}
	return requirePartnerRow(res)
}

// GetBalance возвращает срез балансов партнёра.
func (r *PartnerRepository) GetBalance(ctx context.Context, id uuid.UUID) (*models.PartnerBalance, error) {
	var balance models.PartnerBalance
	err := r.db.GetContext(ctx, &balance, `
		SELECT id AS partner_id, total_earned_cents, pending_cents, available_cents, last_payout_at
		FROM partners
		WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPartnerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("partner repository: get balance: %w", err)
	}
	return &balance, nil
}

func requirePartnerRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("partner repository: rows affected: %w", err)
	}
	if affected == 0 {
		return ErrPartnerNotFound
	}
	return nil
}
