package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/stripe"
)

// ReconcilerPartnerStore — операции над партнёрами, нужные реконсилятору.
type ReconcilerPartnerStore interface {
	GetByStripeAccountID(ctx context.Context, accountID string) (*models.Partner, error)
	UpdateOnboarding(ctx context.Context, id uuid.UUID, detailsSubmitted, chargesEnabled, payoutsEnabled bool, disabledReason *string, status string) error
}

// ReconcilerLedgerStore — транзакционные операции леджера.
type ReconcilerLedgerStore interface {
	RecordPayment(ctx context.Context, txn *models.Transaction) error
	RecordFailure(ctx context.Context, txn *models.Transaction) error
	RecordRefund(ctx context.Context, refund *models.Transaction, originalID uuid.UUID) error
	GetByChargeID(ctx context.Context, chargeID string) (*models.Transaction, error)
	AttachCharge(ctx context.Context, paymentID, chargeID string) error
	MarkChargeFailed(ctx context.Context, paymentID, chargeID string, reason *string) error
	AttachTransfer(ctx context.Context, chargeID, transferID string) error
	UpsertPayout(ctx context.Context, payout *models.Payout) error
}

// Reconciler сводит события платёжного провайдера с леджером.
// Разделение сумм всегда пересчитывается от сохранённой ставки партнёра:
// суммы из metadata события не являются источником истины.
type Reconciler struct {
	partners ReconcilerPartnerStore
	ledger   ReconcilerLedgerStore
}

// NewReconciler создаёт реконсилятор.
func NewReconciler(partners ReconcilerPartnerStore, ledger ReconcilerLedgerStore) *Reconciler {
	return &Reconciler{partners: partners, ledger: ledger}
}

// ProcessEvent разбирает событие провайдера и применяет его к леджеру.
// Неизвестные типы событий и события без соответствия в базе
// подтверждаются без изменений, чтобы провайдер не доставлял их повторно.
func (s *Reconciler) ProcessEvent(ctx context.Context, evt *stripe.Event) error {
	log := logger.WithComponent("reconciler").WithField("event_type", evt.Type).WithField("event_id", evt.ID)

	switch evt.Type {
	case stripe.EventPaymentSucceeded:
		return s.handlePayment(ctx, evt, models.TransactionStatusSucceeded)
	case stripe.EventPaymentFailed:
		return s.handlePayment(ctx, evt, models.TransactionStatusFailed)
	case stripe.EventPaymentCanceled:
		return s.handlePayment(ctx, evt, models.TransactionStatusCanceled)
	case stripe.EventChargeSucceeded:
		return s.handleChargeSucceeded(ctx, evt)
	case stripe.EventChargeFailed:
		return s.handleChargeFailed(ctx, evt)
	case stripe.EventChargeRefunded:
		return s.handleRefund(ctx, evt)
	case stripe.EventPayoutPaid:
		return s.handlePayout(ctx, evt, models.PayoutStatusPaid)
	case stripe.EventPayoutFailed:
		return s.handlePayout(ctx, evt, models.PayoutStatusFailed)
	case stripe.EventAccountUpdated:
		return s.handleAccountUpdated(ctx, evt)
	case stripe.EventTransferCreated, stripe.EventTransferUpdated:
		return s.handleTransfer(ctx, evt)
	default:
		log.Debug("событие пропущено")
		return nil
	}
}

// handlePayment пишет строку леджера для платежа. Для успешного платежа
// комиссия начисляется на баланс партнёра в той же транзакции БД.
func (s *Reconciler) handlePayment(ctx context.Context, evt *stripe.Event, status string) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var pi stripe.PaymentIntent
	if err := unmarshalObject(evt, &pi); err != nil {
		return err
	}

	partner, err := s.findPartner(ctx, evt, pi.Metadata)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) {
			log.WithField("payment_id", pi.ID).Warn("платёж без известного партнёра, пропущен")
			return nil
		}
		return err
	}

	// Пересчёт от сохранённой ставки, а не от сумм из metadata.
	split, err := CalculateSplit(pi.Amount, partner.CommissionRate)
	if err != nil {
		return fmt.Errorf("reconciler: split for %s: %w", pi.ID, err)
	}

	txn := &models.Transaction{
		PartnerID:        partner.ID,
		Type:             models.TransactionTypePayment,
		Status:           status,
		GrossAmountCents: split.GrossCents,
		CommissionRate:   split.CommissionRate,
		CommissionCents:  split.CommissionCents,
		PlatformCents:    split.PlatformCents,
		Currency:         pi.Currency,
		StripePaymentID:  &pi.ID,
	}
	if pi.LatestCharge != "" {
		txn.StripeChargeID = &pi.LatestCharge
	}

	if status == models.TransactionStatusSucceeded {
		if err := s.ledger.RecordPayment(ctx, txn); err != nil {
			return err
		}
		log.WithField("payment_id", pi.ID).WithField("commission_cents", split.CommissionCents).
			Info("платёж проведён, комиссия начислена")
		return nil
	}

	if err := s.ledger.RecordFailure(ctx, txn); err != nil {
		return err
	}
	log.WithField("payment_id", pi.ID).WithField("status", status).Info("неуспешный платёж записан")
	return nil
}

// handleChargeSucceeded привязывает списание к строке платежа.
// Суммы не трогаются: источник денег — событие payment_intent.
func (s *Reconciler) handleChargeSucceeded(ctx context.Context, evt *stripe.Event) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var ch stripe.Charge
	if err := unmarshalObject(evt, &ch); err != nil {
		return err
	}
	if ch.PaymentIntent == "" {
		log.WithField("charge_id", ch.ID).Debug("списание без платежа, пропущено")
		return nil
	}

	err := s.ledger.AttachCharge(ctx, ch.PaymentIntent, ch.ID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		log.WithField("charge_id", ch.ID).Warn("списание по неизвестному платежу, пропущено")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithField("charge_id", ch.ID).WithField("payment_id", ch.PaymentIntent).Info("списание привязано к платежу")
	return nil
}

// handleChargeFailed помечает строку платежа неуспешной и сохраняет
// причину отказа. Строку с уже начисленной комиссией репозиторий
// не переписывает.
func (s *Reconciler) handleChargeFailed(ctx context.Context, evt *stripe.Event) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var ch stripe.Charge
	if err := unmarshalObject(evt, &ch); err != nil {
		return err
	}
	if ch.PaymentIntent == "" {
		log.WithField("charge_id", ch.ID).Debug("списание без платежа, пропущено")
		return nil
	}

	var reason *string
	if ch.FailureMessage != "" {
		reason = &ch.FailureMessage
	}

	err := s.ledger.MarkChargeFailed(ctx, ch.PaymentIntent, ch.ID, reason)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		log.WithField("charge_id", ch.ID).Warn("отказ списания по неизвестному платежу, пропущен")
		return nil
	}
	if err != nil {
		return err
	}
	log.WithField("charge_id", ch.ID).WithField("payment_id", ch.PaymentIntent).Info("отказ списания записан")
	return nil
}

// handleRefund компенсирует исходный платёж строкой возврата.
// Неизвестное списание подтверждается без записи.
func (s *Reconciler) handleRefund(ctx context.Context, evt *stripe.Event) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var ch stripe.Charge
	if err := unmarshalObject(evt, &ch); err != nil {
		return err
	}

	original, err := s.ledger.GetByChargeID(ctx, ch.ID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			log.WithField("charge_id", ch.ID).Warn("возврат по неизвестному списанию, пропущен")
			return nil
		}
		return err
	}
	if original.Status == models.TransactionStatusRefunded {
		log.WithField("charge_id", ch.ID).Debug("возврат уже проведён")
		return nil
	}

	refundAmount := ch.AmountRefunded
	if refundAmount == 0 {
		refundAmount = ch.Amount
	}

	// Ставка берётся из исходной строки: уровень партнёра мог смениться
	// после платежа, возврат зеркалит именно исходное разделение.
	rs, err := CalculateRefundSplit(refundAmount, original.CommissionRate)
	if err != nil {
		return fmt.Errorf("reconciler: refund split for %s: %w", ch.ID, err)
	}

	refund := &models.Transaction{
		PartnerID:             original.PartnerID,
		Type:                  models.TransactionTypeRefund,
		Status:                models.TransactionStatusSucceeded,
		GrossAmountCents:      -rs.RefundCents,
		CommissionRate:        original.CommissionRate,
		CommissionCents:       rs.CommissionCents,
		PlatformCents:         rs.NetCents,
		Currency:              original.Currency,
		StripeChargeID:        &ch.ID,
		OriginalTransactionID: &original.ID,
	}

	if err := s.ledger.RecordRefund(ctx, refund, original.ID); err != nil {
		return err
	}
	log.WithField("charge_id", ch.ID).WithField("refund_cents", refundAmount).Info("возврат проведён")
	return nil
}

// handlePayout идемпотентно сохраняет выплату по её идентификатору
// у провайдера: повторная доставка события не создаёт вторую строку.
func (s *Reconciler) handlePayout(ctx context.Context, evt *stripe.Event, status string) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var p stripe.Payout
	if err := unmarshalObject(evt, &p); err != nil {
		return err
	}

	partner, err := s.findPartner(ctx, evt, nil)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) {
			log.WithField("payout_id", p.ID).Warn("выплата без известного партнёра, пропущена")
			return nil
		}
		return err
	}

	payout := &models.Payout{
		PartnerID:      partner.ID,
		StripePayoutID: p.ID,
		AmountCents:    p.Amount,
		Currency:       p.Currency,
		Status:         status,
		ArrivalDate:    p.ArrivalTime(),
	}
	if status == models.PayoutStatusFailed && p.FailureMessage != "" {
		payout.FailureReason = &p.FailureMessage
	}

	if err := s.ledger.UpsertPayout(ctx, payout); err != nil {
		return err
	}
	log.WithField("payout_id", p.ID).WithField("status", status).Info("выплата сверена")
	return nil
}

// handleAccountUpdated переносит флаги аккаунта провайдера на партнёра
// и выводит из них новый статус.
func (s *Reconciler) handleAccountUpdated(ctx context.Context, evt *stripe.Event) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var acc stripe.Account
	if err := unmarshalObject(evt, &acc); err != nil {
		return err
	}

	partner, err := s.partners.GetByStripeAccountID(ctx, acc.ID)
	if err != nil {
		if errors.Is(err, repository.ErrPartnerNotFound) {
			log.WithField("account_id", acc.ID).Warn("обновление неизвестного аккаунта, пропущено")
			return nil
		}
		return err
	}

	var disabledReason *string
	if acc.Requirements.DisabledReason != "" {
		disabledReason = &acc.Requirements.DisabledReason
	}
	status := DerivePartnerStatus(acc.ChargesEnabled, acc.PayoutsEnabled, acc.Requirements.DisabledReason)

	if err := s.partners.UpdateOnboarding(ctx, partner.ID, acc.DetailsSubmitted, acc.ChargesEnabled, acc.PayoutsEnabled, disabledReason, status); err != nil {
		return err
	}
	log.WithField("account_id", acc.ID).WithField("status", status).Info("статус партнёра обновлён")
	return nil
}

// handleTransfer привязывает перевод к строке платежа.
func (s *Reconciler) handleTransfer(ctx context.Context, evt *stripe.Event) error {
	log := logger.WithComponent("reconciler").WithField("event_id", evt.ID)

	var tr stripe.Transfer
	if err := unmarshalObject(evt, &tr); err != nil {
		return err
	}
	if tr.SourceTransaction == "" {
		log.WithField("transfer_id", tr.ID).Debug("перевод без исходного списания, пропущен")
		return nil
	}

	err := s.ledger.AttachTransfer(ctx, tr.SourceTransaction, tr.ID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		log.WithField("transfer_id", tr.ID).Warn("перевод по неизвестному списанию, пропущен")
		return nil
	}
	return err
}

// findPartner ищет партнёра по аккаунту провайдера: сперва по полю
// account события, затем по metadata платежа.
func (s *Reconciler) findPartner(ctx context.Context, evt *stripe.Event, metadata map[string]string) (*models.Partner, error) {
	accountID := evt.Account
	if accountID == "" {
		accountID = metadata["partner_account"]
	}
	if accountID == "" {
		return nil, repository.ErrPartnerNotFound
	}
	return s.partners.GetByStripeAccountID(ctx, accountID)
}

func unmarshalObject(evt *stripe.Event, dst interface{}) error {
	if err := stripe.UnmarshalObject(evt, dst); err != nil {
		return fmt.Errorf("reconciler: событие %s: %w", evt.ID, err)
	}
	return nil
}
