package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
)

type fakePartnerStore struct {
	partners map[uuid.UUID]*models.Partner
}

func newFakePartnerStore() *fakePartnerStore {
	return &fakePartnerStore{partners: make(map[uuid.UUID]*models.Partner)}
}

func (f *fakePartnerStore) Create(ctx context.Context, partner *models.Partner) error {
	partner.ID = uuid.New()
	copied := *partner
	f.partners[partner.ID] = &copied
	return nil
}

func (f *fakePartnerStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Partner, error) {
	partner, ok := f.partners[id]
	if !ok {
		return nil, repository.ErrPartnerNotFound
	}
	copied := *partner
	return &copied, nil
}

func (f *fakePartnerStore) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Partner, error) {
	for _, partner := range f.partners {
		if partner.StripeAccountID != nil && *partner.StripeAccountID == accountID {
			copied := *partner
			return &copied, nil
		}
	}
	return nil, repository.ErrPartnerNotFound
}

func (f *fakePartnerStore) List(ctx context.Context, includeInactive bool) ([]models.Partner, error) {
	var out []models.Partner
	for _, partner := range f.partners {
		if !includeInactive && partner.Status == models.PartnerStatusInactive {
			continue
		}
		out = append(out, *partner)
	}
	return out, nil
}

func (f *fakePartnerStore) SetStripeAccount(ctx context.Context, id uuid.UUID, accountID string) error {
	partner, ok := f.partners[id]
	if !ok {
		return repository.ErrPartnerNotFound
	}
	partner.StripeAccountID = &accountID
	return nil
}

func (f *fakePartnerStore) SetTier(ctx context.Context, id uuid.UUID, tier string, rate float64) error {
	partner, ok := f.partners[id]
	if !ok {
		return repository.ErrPartnerNotFound
	}
	partner.Tier = tier
	partner.CommissionRate = rate
	return nil
}

func (f *fakePartnerStore) SoftDelete(ctx context.Context, id uuid.UUID) error {
	partner, ok := f.partners[id]
	if !ok {
		return repository.ErrPartnerNotFound
	}
	partner.Status = models.PartnerStatusInactive
	return nil
}

func (f *fakePartnerStore) GetBalance(ctx context.Context, id uuid.UUID) (*models.PartnerBalance, error) {
	partner, ok := f.partners[id]
	if !ok {
		return nil, repository.ErrPartnerNotFound
	}
	return &models.PartnerBalance{
		PartnerID:        partner.ID,
		TotalEarnedCents: partner.TotalEarnedCents,
		PendingCents:     partner.PendingCents,
		AvailableCents:   partner.AvailableCents,
	}, nil
}

type fakeLedgerStore struct{}

func (fakeLedgerStore) ListByPartner(ctx context.Context, partnerID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	return nil, nil
}

func (fakeLedgerStore) ListPayouts(ctx context.Context, partnerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	return nil, nil
}

func TestPartnerService_Onboard(t *testing.T) {
	svc := NewPartnerService(newFakePartnerStore(), fakeLedgerStore{})
	ctx := context.Background()

	partner, err := svc.Onboard(ctx, OnboardInput{Name: "  Acme Ltd  ", Email: "  Sales@ACME.io "})
	if err != nil {
		t.Fatalf("onboard вернул ошибку: %v", err)
	}

	if partner.Email != "sales@acme.io" {
		t.Fatalf("email должен быть нормализован, получили %q", partner.Email)
	}
	if partner.Tier != models.PartnerTierBronze {
		t.Fatalf("уровень по умолчанию bronze, получили %s", partner.Tier)
	}
	if partner.CommissionRate != models.TierCommissionRates[models.PartnerTierBronze] {
		t.Fatalf("ставка должна соответствовать уровню, получили %v", partner.CommissionRate)
	}
	if partner.Status != models.PartnerStatusPending {
		t.Fatalf("новый партнёр должен быть pending, получили %s", partner.Status)
	}
}

func TestPartnerService_Onboard_Validation(t *testing.T) {
	svc := NewPartnerService(newFakePartnerStore(), fakeLedgerStore{})
	ctx := context.Background()

	cases := []OnboardInput{
		{Name: "", Email: "a@b.co"},
		{Name: "Acme", Email: "not-an-email"},
		{Name: "Acme", Email: "a@b.co", Tier: "diamond"},
	}
	for i, in := range cases {
		if _, err := svc.Onboard(ctx, in); err == nil {
			t.Fatalf("кейс %d: ожидалась ошибка валидации", i)
		}
	}
}

func TestPartnerService_ChangeTier(t *testing.T) {
	store := newFakePartnerStore()
	svc := NewPartnerService(store, fakeLedgerStore{})
	ctx := context.Background()

	partner, _ := svc.Onboard(ctx, OnboardInput{Name: "Acme", Email: "a@b.co"})

	updated, err := svc.ChangeTier(ctx, partner.ID, models.PartnerTierGold)
	if err != nil {
		t.Fatalf("change tier вернул ошибку: %v", err)
	}
	if updated.Tier != models.PartnerTierGold {
		t.Fatalf("ожидался уровень gold, получили %s", updated.Tier)
	}
	if updated.CommissionRate != models.TierCommissionRates[models.PartnerTierGold] {
		t.Fatalf("ставка должна обновиться вместе с уровнем")
	}

	if _, err := svc.ChangeTier(ctx, partner.ID, "diamond"); err == nil {
		t.Fatalf("неизвестный уровень должен быть отклонён")
	}
}

func TestPartnerService_DeletePartner_Soft(t *testing.T) {
	store := newFakePartnerStore()
	svc := NewPartnerService(store, fakeLedgerStore{})
	ctx := context.Background()

	partner, _ := svc.Onboard(ctx, OnboardInput{Name: "Acme", Email: "a@b.co"})
	if err := svc.DeletePartner(ctx, partner.ID); err != nil {
		t.Fatalf("delete вернул ошибку: %v", err)
	}

	// Строка остаётся, но в списках по умолчанию её нет.
	if _, err := svc.GetPartner(ctx, partner.ID); err != nil {
		t.Fatalf("строка партнёра должна остаться: %v", err)
	}
	active, _ := svc.ListPartners(ctx, false)
	if len(active) != 0 {
		t.Fatalf("неактивный партнёр не должен попадать в список по умолчанию")
	}
	all, _ := svc.ListPartners(ctx, true)
	if len(all) != 1 {
		t.Fatalf("с include_inactive партнёр должен вернуться")
	}
}

func TestDerivePartnerStatus(t *testing.T) {
	cases := []struct {
		charges  bool
		payouts  bool
		reason   string
		expected string
	}{
		{true, true, "", models.PartnerStatusActive},
		{true, false, "", models.PartnerStatusPending},
		{false, false, "", models.PartnerStatusPending},
		{false, false, "requirements.past_due", models.PartnerStatusRestricted},
		{false, false, "rejected.fraud", models.PartnerStatusRejected},
		{true, true, "rejected.terms_of_service", models.PartnerStatusRejected},
	}

	for i, tc := range cases {
		got := DerivePartnerStatus(tc.charges, tc.payouts, tc.reason)
		if got != tc.expected {
			t.Fatalf("кейс %d: ожидали %s, получили %s", i, tc.expected, got)
		}
	}
}
