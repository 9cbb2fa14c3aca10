package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/pkg/apperror"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/validation"
)

// PartnerStore — операции репозитория партнёров, нужные сервису.
type PartnerStore interface {
	Create(ctx context.Context, partner *models.Partner) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error)
	GetByStripeAccountID(ctx context.Context, accountID string) (*models.Partner, error)
	List(ctx context.Context, includeInactive bool) ([]models.Partner, error)
	SetStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error
	SetTier(ctx context.Context, id uuid.UUID, tier string, rate float64) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	GetBalance(ctx context.Context, id uuid.UUID) (*models.PartnerBalance, error)
}

// LedgerStore — чтение леджера и выплат партнёра.
type LedgerStore interface {
	ListByPartner(ctx context.Context, partnerID uuid.UUID, limit, offset int) ([]models.Transaction, error)
	ListPayouts(ctx context.Context, partnerID uuid.UUID, limit, offset int) ([]models.Payout, error)
}

// PartnerService управляет партнёрскими аккаунтами программы реселлеров.
type PartnerService struct {
	partners PartnerStore
	ledger   LedgerStore
}

// NewPartnerService создаёт сервис партнёров.
func NewPartnerService(partners PartnerStore, ledger LedgerStore) *PartnerService {
	return &PartnerService{partners: partners, ledger: ledger}
}

// OnboardInput — поля регистрации партнёра.
type OnboardInput struct {
	Name            string
	Email           string
	Tier            string
	StripeAccountID *string
}

// Onboard регистрирует партнёра в статусе pending.
// Комиссионная ставка фиксируется по уровню на момент регистрации.
func (s *PartnerService) Onboard(ctx context.Context, in OnboardInput) (*models.Partner, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validation.ValidateNonEmpty("имя партнёра", in.Name); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateLength("имя партнёра", in.Name, 1, validation.MaxPartnerNameLength); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if in.Tier == "" {
		in.Tier = models.PartnerTierBronze
	}
	rate, err := RateForTier(in.Tier)
	if err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный уровень: %s", in.Tier))
	}

	partner := &models.Partner{
		Name:            in.Name,
		Email:           in.Email,
		StripeAccountID: in.StripeAccountID,
		Tier:            in.Tier,
		Status:          models.PartnerStatusPending,
		CommissionRate:  rate,
	}
	if err := s.partners.Create(ctx, partner); err != nil {
		return nil, err
	}
	return partner, nil
}

// GetPartner возвращает партнёра по идентификатору.
func (s *PartnerService) GetPartner(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	partner, err := s.partners.GetByID(ctx, id)
	if err != nil {
		return nil, mapPartnerErr(err)
	}
	return partner, nil
}

// ListPartners возвращает партнёров. Неактивные скрыты, если не запрошены явно.
func (s *PartnerService) ListPartners(ctx context.Context, includeInactive bool) ([]models.Partner, error) {
	return s.partners.List(ctx, includeInactive)
}

// ChangeTier меняет уровень партнёра; новая ставка применяется
// только к будущим платежам, леджер не пересчитывается.
func (s *PartnerService) ChangeTier(ctx context.Context, id uuid.UUID, tier string) (*models.Partner, error) {
	rate, err := RateForTier(tier)
	if err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный уровень: %s", tier))
	}
	if err := s.partners.SetTier(ctx, id, tier, rate); err != nil {
		return nil, mapPartnerErr(err)
	}
	return s.GetPartner(ctx, id)
}

// LinkStripeAccount привязывает аккаунт провайдера к партнёру.
func (s *PartnerService) LinkStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return apperror.New(apperror.ErrCodeValidation, "идентификатор аккаунта обязателен")
	}
	return mapPartnerErr(s.partners.SetStripeAccount(ctx, id, accountID))
}

// DeletePartner мягко удаляет партнёра: строка и её леджер остаются,
// статус становится inactive.
func (s *PartnerService) DeletePartner(ctx context.Context, id uuid.UUID) error {
	return mapPartnerErr(s.partners.SoftDelete(ctx, id))
}

// GetBalance возвращает текущие балансы партнёра.
func (s *PartnerService) GetBalance(ctx context.Context, id uuid.UUID) (*models.PartnerBalance, error) {
	balance, err := s.partners.GetBalance(ctx, id)
	if err != nil {
		return nil, mapPartnerErr(err)
	}
	return balance, nil
}

// ListTransactions возвращает строки леджера партнёра.
func (s *PartnerService) ListTransactions(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	if _, err := s.GetPartner(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.ListByPartner(ctx, id, limit, offset)
}

// ListPayouts возвращает выплаты партнёра.
func (s *PartnerService) ListPayouts(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Payout, error) {
	if _, err := s.GetPartner(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.ListPayouts(ctx, id, limit, offset)
}

// DerivePartnerStatus выводит статус партнёра из флагов аккаунта провайдера.
// Причина блокировки со словом rejected означает окончательный отказ,
// любая другая причина — временное ограничение.
func DerivePartnerStatus(chargesEnabled, payoutsEnabled bool, disabledReason string) string {
	switch {
	case strings.Contains(disabledReason, "rejected"):
		return models.PartnerStatusRejected
	case disabledReason != "":
		return models.PartnerStatusRestricted
	case chargesEnabled && payoutsEnabled:
		return models.PartnerStatusActive
	default:
		return models.PartnerStatusPending
	}
}

func mapPartnerErr(err error) error {
	if errors.Is(err, repository.ErrPartnerNotFound) {
		return apperror.ErrPartnerNotFound
	}
	return err
}
