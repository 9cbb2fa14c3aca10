package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/stripe"
)

type mockReconcilerPartners struct {
	mock.Mock
}

func (m *mockReconcilerPartners) GetByStripeAccountID(ctx context.Context, accountID string) (*models.Partner, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Partner), args.Error(1)
}

func (m *mockReconcilerPartners) UpdateOnboarding(ctx context.Context, id uuid.UUID, detailsSubmitted, chargesEnabled, payoutsEnabled bool, disabledReason *string, status string) error {
	args := m.Called(ctx, id, detailsSubmitted, chargesEnabled, payoutsEnabled, disabledReason, status)
	return args.Error(0)
}

type mockReconcilerLedger struct {
	mock.Mock
}

func (m *mockReconcilerLedger) RecordPayment(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *mockReconcilerLedger) RecordFailure(ctx context.Context, txn *models.Transaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *mockReconcilerLedger) RecordRefund(ctx context.Context, refund *models.Transaction, originalID uuid.UUID) error {
	args := m.Called(ctx, refund, originalID)
	return args.Error(0)
}

func (m *mockReconcilerLedger) GetByChargeID(ctx context.Context, chargeID string) (*models.Transaction, error) {
	args := m.Called(ctx, chargeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *mockReconcilerLedger) AttachCharge(ctx context.Context, paymentID, chargeID string) error {
	args := m.Called(ctx, paymentID, chargeID)
	return args.Error(0)
}

func (m *mockReconcilerLedger) MarkChargeFailed(ctx context.Context, paymentID, chargeID string, reason *string) error {
	args := m.Called(ctx, paymentID, chargeID, reason)
	return args.Error(0)
}

func (m *mockReconcilerLedger) AttachTransfer(ctx context.Context, chargeID, transferID string) error {
	args := m.Called(ctx, chargeID, transferID)
	return args.Error(0)
}

func (m *mockReconcilerLedger) UpsertPayout(ctx context.Context, payout *models.Payout) error {
	args := m.Called(ctx, payout)
	return args.Error(0)
}

func makeEvent(t *testing.T, id, eventType, account string, object interface{}) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("не удалось сериализовать объект: %v", err)
	}
	evt := &stripe.Event{ID: id, Type: eventType, Account: account}
	evt.Data.Object = raw
	return evt
}

func TestReconciler_PaymentSucceeded_RederivesSplit(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partner := &models.Partner{ID: uuid.New(), CommissionRate: 0.20}
	partners.On("GetByStripeAccountID", ctx, "acct_1").Return(partner, nil)

	// Metadata объявляет заниженную комиссию: она не должна влиять
	// на запись, разделение считается от сохранённой ставки.
	evt := makeEvent(t, "evt_1", stripe.EventPaymentSucceeded, "acct_1", map[string]interface{}{
		"id":            "pi_1",
		"amount":        10000,
		"currency":      "usd",
		"latest_charge": "ch_1",
		"metadata":      map[string]string{"commission_cents": "1"},
	})

	ledger.On("RecordPayment", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.PartnerID == partner.ID &&
			txn.Status == models.TransactionStatusSucceeded &&
			txn.GrossAmountCents == 10000 &&
			txn.CommissionCents == 2000 &&
			txn.PlatformCents == 8000 &&
			txn.StripeChargeID != nil && *txn.StripeChargeID == "ch_1"
	})).Return(nil)

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_PaymentFailed_RecordsFailure(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partner := &models.Partner{ID: uuid.New(), CommissionRate: 0.10}
	partners.On("GetByStripeAccountID", ctx, "acct_1").Return(partner, nil)

	evt := makeEvent(t, "evt_2", stripe.EventPaymentFailed, "acct_1", map[string]interface{}{
		"id": "pi_2", "amount": 5000, "currency": "usd",
	})

	ledger.On("RecordFailure", ctx, mock.MatchedBy(func(txn *models.Transaction) bool {
		return txn.Status == models.TransactionStatusFailed && txn.GrossAmountCents == 5000
	})).Return(nil)

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
	ledger.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything)
}

func TestReconciler_Payment_UnknownPartnerAcked(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partners.On("GetByStripeAccountID", ctx, "acct_ghost").Return(nil, repository.ErrPartnerNotFound)

	evt := makeEvent(t, "evt_3", stripe.EventPaymentSucceeded, "acct_ghost", map[string]interface{}{
		"id": "pi_3", "amount": 1000, "currency": "usd",
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything)
}

func TestReconciler_Payment_PartnerFromMetadata(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partner := &models.Partner{ID: uuid.New(), CommissionRate: 0.15}
	partners.On("GetByStripeAccountID", ctx, "acct_meta").Return(partner, nil)
	ledger.On("RecordPayment", ctx, mock.Anything).Return(nil)

	// Поле account пустое, аккаунт берётся из metadata платежа.
	evt := makeEvent(t, "evt_4", stripe.EventPaymentSucceeded, "", map[string]interface{}{
		"id":       "pi_4",
		"amount":   2000,
		"currency": "usd",
		"metadata": map[string]string{"partner_account": "acct_meta"},
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_Refund_UsesOriginalRate(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	original := &models.Transaction{
		ID:               uuid.New(),
		PartnerID:        uuid.New(),
		Status:           models.TransactionStatusSucceeded,
		GrossAmountCents: 10000,
		CommissionRate:   0.25,
		Currency:         "usd",
	}
	ledger.On("GetByChargeID", ctx, "ch_5").Return(original, nil)

	evt := makeEvent(t, "evt_5", stripe.EventChargeRefunded, "", map[string]interface{}{
		"id": "ch_5", "amount": 10000, "amount_refunded": 4000, "refunded": false,
	})

	ledger.On("RecordRefund", ctx, mock.MatchedBy(func(refund *models.Transaction) bool {
		return refund.PartnerID == original.PartnerID &&
			refund.Type == models.TransactionTypeRefund &&
			refund.GrossAmountCents == -4000 &&
			refund.CommissionCents == -1000 &&
			refund.OriginalTransactionID != nil && *refund.OriginalTransactionID == original.ID
	}), original.ID).Return(nil)

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_Refund_UnknownChargeAcked(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	ledger.On("GetByChargeID", ctx, "ch_ghost").Return(nil, repository.ErrTransactionNotFound)

	evt := makeEvent(t, "evt_6", stripe.EventChargeRefunded, "", map[string]interface{}{
		"id": "ch_ghost", "amount": 1000,
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "RecordRefund", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_Refund_AlreadyRefundedSkipped(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	refunded := &models.Transaction{ID: uuid.New(), Status: models.TransactionStatusRefunded}
	ledger.On("GetByChargeID", ctx, "ch_7").Return(refunded, nil)

	evt := makeEvent(t, "evt_7", stripe.EventChargeRefunded, "", map[string]interface{}{
		"id": "ch_7", "amount": 1000,
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "RecordRefund", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_PayoutPaid(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partner := &models.Partner{ID: uuid.New()}
	partners.On("GetByStripeAccountID", ctx, "acct_8").Return(partner, nil)

	evt := makeEvent(t, "evt_8", stripe.EventPayoutPaid, "acct_8", map[string]interface{}{
		"id": "po_8", "amount": 7000, "currency": "usd", "arrival_date": 1749000000,
	})

	ledger.On("UpsertPayout", ctx, mock.MatchedBy(func(p *models.Payout) bool {
		return p.PartnerID == partner.ID &&
			p.StripePayoutID == "po_8" &&
			p.AmountCents == 7000 &&
			p.Status == models.PayoutStatusPaid &&
			p.ArrivalDate != nil
	})).Return(nil)

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_PayoutFailed_KeepsReason(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partner := &models.Partner{ID: uuid.New()}
	partners.On("GetByStripeAccountID", ctx, "acct_9").Return(partner, nil)

	evt := makeEvent(t, "evt_9", stripe.EventPayoutFailed, "acct_9", map[string]interface{}{
		"id": "po_9", "amount": 7000, "currency": "usd", "failure_message": "account_closed",
	})

	ledger.On("UpsertPayout", ctx, mock.MatchedBy(func(p *models.Payout) bool {
		return p.Status == models.PayoutStatusFailed &&
			p.FailureReason != nil && *p.FailureReason == "account_closed"
	})).Return(nil)

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_AccountUpdated_DerivesStatus(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	partner := &models.Partner{ID: uuid.New(), Status: models.PartnerStatusPending}
	partners.On("GetByStripeAccountID", ctx, "acct_10").Return(partner, nil)
	partners.On("UpdateOnboarding", ctx, partner.ID, true, true, true, (*string)(nil), models.PartnerStatusActive).Return(nil)

	evt := makeEvent(t, "evt_10", stripe.EventAccountUpdated, "", map[string]interface{}{
		"id":                "acct_10",
		"charges_enabled":   true,
		"payouts_enabled":   true,
		"details_submitted": true,
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	partners.AssertExpectations(t)
}

func TestReconciler_ChargeSucceeded_LinksPayment(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	ledger.On("AttachCharge", ctx, "pi_20", "ch_20").Return(nil)

	evt := makeEvent(t, "evt_20", stripe.EventChargeSucceeded, "", map[string]interface{}{
		"id":             "ch_20",
		"payment_intent": "pi_20",
		"amount":         5000,
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_ChargeSucceeded_UnknownPaymentAcked(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	ledger.On("AttachCharge", ctx, "pi_21", "ch_21").Return(repository.ErrTransactionNotFound)

	evt := makeEvent(t, "evt_21", stripe.EventChargeSucceeded, "", map[string]interface{}{
		"id":             "ch_21",
		"payment_intent": "pi_21",
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_ChargeFailed_RecordsReason(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	reason := "card_declined"
	ledger.On("MarkChargeFailed", ctx, "pi_22", "ch_22", &reason).Return(nil)

	evt := makeEvent(t, "evt_22", stripe.EventChargeFailed, "", map[string]interface{}{
		"id":              "ch_22",
		"payment_intent":  "pi_22",
		"failure_message": "card_declined",
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_ChargeWithoutPaymentIgnored(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)

	evt := makeEvent(t, "evt_23", stripe.EventChargeSucceeded, "", map[string]interface{}{
		"id": "ch_23",
	})

	err := svc.ProcessEvent(context.Background(), evt)
	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "AttachCharge", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_TransferCreated(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	ledger.On("AttachTransfer", ctx, "ch_11", "tr_11").Return(nil)

	evt := makeEvent(t, "evt_11", stripe.EventTransferCreated, "", map[string]interface{}{
		"id":                 "tr_11",
		"amount":             2000,
		"source_transaction": "ch_11",
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
	ledger.AssertExpectations(t)
}

func TestReconciler_Transfer_UnknownChargeAcked(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)
	ctx := context.Background()

	ledger.On("AttachTransfer", ctx, "ch_ghost", "tr_12").Return(repository.ErrTransactionNotFound)

	evt := makeEvent(t, "evt_12", stripe.EventTransferCreated, "", map[string]interface{}{
		"id":                 "tr_12",
		"source_transaction": "ch_ghost",
	})

	err := svc.ProcessEvent(ctx, evt)
	assert.NoError(t, err)
}

func TestReconciler_UnknownEventIgnored(t *testing.T) {
	partners := new(mockReconcilerPartners)
	ledger := new(mockReconcilerLedger)
	svc := NewReconciler(partners, ledger)

	evt := &stripe.Event{ID: "evt_13", Type: "customer.created"}
	err := svc.ProcessEvent(context.Background(), evt)
	assert.NoError(t, err)
	ledger.AssertNotCalled(t, "RecordPayment", mock.Anything, mock.Anything)
}
