package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mis-sentinel/backend/internal/models"
)

// ErrTransactionNotFound возвращается, когда строка леджера не найдена.
var ErrTransactionNotFound = errors.New("transaction not found")

// TransactionRepository отвечает за таблицы transactions и payouts.
// Леджер append-only: денежные поля строки после вставки не меняются,
// обновляются только статус и ссылки на объекты провайдера. Каждая
// операция, двигающая баланс партнёра, делает это в одной транзакции
// со вставкой строки леджера.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository создаёт экземпляр репозитория.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const insertTransactionQuery = `
	INSERT INTO transactions (partner_id, type, status, gross_amount_cents, commission_rate,
		commission_cents, platform_cents, currency, stripe_payment_id, stripe_charge_id,
		stripe_transfer_id, original_transaction_id, description)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	RETURNING id, created_at, updated_at
`

func insertTransactionTx(ctx context.Context, tx *sqlx.Tx, txn *models.Transaction) error {
	return tx.QueryRowxContext(
		ctx, insertTransactionQuery,
		txn.PartnerID, txn.Type, txn.Status, txn.GrossAmountCents, txn.CommissionRate,
		txn.CommissionCents, txn.PlatformCents, txn.Currency, txn.StripePaymentID,
		txn.StripeChargeID, txn.StripeTransferID, txn.OriginalTransactionID, txn.Description,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
}

// isUniqueViolation распознаёт нарушение уникального ограничения Postgres.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// lockPartnerTx берёт блокировку строки партнёра на время транзакции.
func lockPartnerTx(ctx context.Context, tx *sqlx.Tx, partnerID uuid.UUID) error {
	var id uuid.UUID
	err := tx.GetContext(ctx, &id, `SELECT id FROM partners WHERE id = $1 FOR UPDATE`, partnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrPartnerNotFound
	}
	return err
}

// RecordPayment вставляет успешный платёж и начисляет комиссию
// на баланс партнёра в одной транзакции. Повторная доставка того же
// платежа упирается в уникальный индекс по stripe_payment_id и
// подтверждается как уже проведённая: баланс второй раз не двигается.
func (r *TransactionRepository) RecordPayment(ctx context.Context, txn *models.Transaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction repository: begin record payment: %w", err)
	}
	defer tx.Rollback()

	if err := lockPartnerTx(ctx, tx, txn.PartnerID); err != nil {
		return err
	}
	if err := insertTransactionTx(ctx, tx, txn); err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("transaction repository: record payment: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE partners
		SET total_earned_cents = total_earned_cents + $2,
			pending_cents = pending_cents + $2,
			updated_at = NOW()
		WHERE id = $1
	`, txn.PartnerID, txn.CommissionCents)
	if err != nil {
		return fmt.Errorf("transaction repository: credit balance: %w", err)
	}

	return tx.Commit()
}

// RecordFailure фиксирует неуспешный или отменённый платёж.
// Баланс не меняется.
func (r *TransactionRepository) RecordFailure(ctx context.Context, txn *models.Transaction) error {
	if err := r.db.QueryRowxContext(
		ctx, insertTransactionQuery,
		txn.PartnerID, txn.Type, txn.Status, txn.GrossAmountCents, txn.CommissionRate,
		txn.CommissionCents, txn.PlatformCents, txn.Currency, txn.StripePaymentID,
		txn.StripeChargeID, txn.StripeTransferID, txn.OriginalTransactionID, txn.Description,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt); err != nil {
		return fmt.Errorf("transaction repository: record failure: %w", err)
	}
	return nil
}

// RecordRefund вставляет строку возврата с отрицательными суммами,
// списывает комиссию с баланса и помечает исходную строку refunded —
// всё в одной транзакции. Денежные поля исходной строки не трогаются.
func (r *TransactionRepository) RecordRefund(ctx context.Context, refund *models.Transaction, originalID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction repository: begin record refund: %w", err)
	}
	defer tx.Rollback()

	if err := lockPartnerTx(ctx, tx, refund.PartnerID); err != nil {
		return err
	}
	if err := insertTransactionTx(ctx, tx, refund); err != nil {
		return fmt.Errorf("transaction repository: record refund: %w", err)
	}

	// CommissionCents возврата отрицательный, прибавление уменьшает баланс.
	_, err = tx.ExecContext(ctx, `
		UPDATE partners
		SET total_earned_cents = total_earned_cents + $2,
			pending_cents = pending_cents + $2,
			updated_at = NOW()
		WHERE id = $1
	`, refund.PartnerID, refund.CommissionCents)
	if err != nil {
		return fmt.Errorf("transaction repository: debit balance: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions SET status = 'refunded', updated_at = NOW() WHERE id = $1
	`, originalID)
	if err != nil {
		return fmt.Errorf("transaction repository: mark refunded: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction repository: mark refunded rows: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}

	return tx.Commit()
}

// GetByChargeID возвращает строку леджера по идентификатору списания провайдера.
func (r *TransactionRepository) GetByChargeID(ctx context.Context, chargeID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.GetContext(ctx, &txn, `
		SELECT * FROM transactions WHERE stripe_charge_id = $1 AND type = 'payment'
		ORDER BY created_at LIMIT 1
	`, chargeID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transaction repository: get by charge id: %w", err)
	}
	return &txn, nil
}

// AttachCharge привязывает списание к строке платежа по её
// stripe_payment_id. Повторная доставка того же списания — no-op.
func (r *TransactionRepository) AttachCharge(ctx context.Context, paymentID, chargeID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET stripe_charge_id = $2, updated_at = NOW()
		WHERE stripe_payment_id = $1 AND type = 'payment'
			AND (stripe_charge_id IS NULL OR stripe_charge_id = $2)
	`, paymentID, chargeID)
	if err != nil {
		return fmt.Errorf("transaction repository: attach charge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction repository: attach charge rows: %w", err)
	}
	if affected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// MarkChargeFailed помечает строку платежа неуспешной по факту отказа
// списания и сохраняет причину. Строка с уже начисленной комиссией
// (succeeded/refunded) не переписывается.
func (r *TransactionRepository) MarkChargeFailed(ctx context.Context, paymentID, chargeID string, reason *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'failed',
			stripe_charge_id = COALESCE(stripe_charge_id, $2),
			description = COALESCE($3, description),
			updated_at = NOW()
		WHERE stripe_payment_id = $1 AND type = 'payment'
			AND status NOT IN ('succeeded', 'refunded')
	`, paymentID, chargeID, reason)
	if err != nil {
		return fmt.Errorf("transaction repository: mark charge failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("transaction repository: mark charge failed rows: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var known bool
	if err := r.db.GetContext(ctx, &known, `
		SELECT EXISTS (SELECT 1 FROM transactions WHERE stripe_payment_id = $1 AND type = 'payment')
	`, paymentID); err != nil {
		return fmt.Errorf("transaction repository: mark charge failed check: %w", err)
	}
	if !known {
		return ErrTransactionNotFound
	}
	return nil
}

// AttachTransfer записывает идентификатор перевода в строку платежа
// и переводит её комиссию из pending в available. Повторная доставка
// того же перевода ничего не меняет.
func (r *TransactionRepository) AttachTransfer(ctx context.Context, chargeID, transferID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction repository: begin attach transfer: %w", err)
	}
	defer tx.Rollback()

	var row struct {
		PartnerID       uuid.UUID `db:"partner_id"`
		CommissionCents int64     `db:"commission_cents"`
	}
	err = tx.GetContext(ctx, &row, `
		UPDATE transactions
		SET stripe_transfer_id = $2, updated_at = NOW()
		WHERE stripe_charge_id = $1 AND type = 'payment' AND stripe_transfer_id IS NULL
		RETURNING partner_id, commission_cents
	`, chargeID, transferID)
	if errors.Is(err, sql.ErrNoRows) {
		// Либо строки нет, либо перевод уже привязан ранее.
		var known bool
		if chkErr := tx.GetContext(ctx, &known, `
			SELECT EXISTS (SELECT 1 FROM transactions WHERE stripe_transfer_id = $1)
		`, transferID); chkErr != nil {
			return fmt.Errorf("transaction repository: attach transfer check: %w", chkErr)
		}
		if known {
			return tx.Commit()
		}
		return ErrTransactionNotFound
	}
	if err != nil {
		return fmt.Errorf("transaction repository: attach transfer: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE partners
		SET pending_cents = pending_cents - $2,
			available_cents = available_cents + $2,
			updated_at = NOW()
		WHERE id = $1
	`, row.PartnerID, row.CommissionCents)
	if err != nil {
		return fmt.Errorf("transaction repository: move to available: %w", err)
	}

	return tx.Commit()
}

// ListByPartner возвращает строки леджера партнёра, свежие первыми.
func (r *TransactionRepository) ListByPartner(ctx context.Context, partnerID uuid.UUID, limit, offset int) ([]models.Transaction, error) {
	var txns []models.Transaction
	err := r.db.SelectContext(ctx, &txns, `
		SELECT * FROM transactions WHERE partner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, partnerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list by partner: %w", err)
	}
	return txns, nil
}

// UpsertPayout сохраняет выплату идемпотентно по stripe_payout_id:
// повторная доставка того же события не создаёт дубликат и не двигает
// баланс второй раз. Списание с available происходит при первом paid,
// переход paid→failed возвращает сумму обратно.
func (r *TransactionRepository) UpsertPayout(ctx context.Context, payout *models.Payout) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("transaction repository: begin upsert payout: %w", err)
	}
	defer tx.Rollback()

	if err := lockPartnerTx(ctx, tx, payout.PartnerID); err != nil {
		return err
	}

	var existing models.Payout
	err = tx.GetContext(ctx, &existing, `
		SELECT * FROM payouts WHERE stripe_payout_id = $1
	`, payout.StripePayoutID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO payouts (partner_id, stripe_payout_id, amount_cents, currency, status, failure_reason, arrival_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at
		`, payout.PartnerID, payout.StripePayoutID, payout.AmountCents, payout.Currency,
			payout.Status, payout.FailureReason, payout.ArrivalDate,
		).Scan(&payout.ID, &payout.CreatedAt, &payout.UpdatedAt); err != nil {
			return fmt.Errorf("transaction repository: insert payout: %w", err)
		}
	case err != nil:
		return fmt.Errorf("transaction repository: get payout: %w", err)
	default:
		if existing.Status == payout.Status {
			payout.ID = existing.ID
			payout.CreatedAt = existing.CreatedAt
			payout.UpdatedAt = existing.UpdatedAt
			return tx.Commit()
		}
		if err := tx.QueryRowxContext(ctx, `
			UPDATE payouts
			SET status = $2, failure_reason = $3, arrival_date = $4, updated_at = NOW()
			WHERE stripe_payout_id = $1
			RETURNING id, created_at, updated_at
		`, payout.StripePayoutID, payout.Status, payout.FailureReason, payout.ArrivalDate,
		).Scan(&payout.ID, &payout.CreatedAt, &payout.UpdatedAt); err != nil {
			return fmt.Errorf("transaction repository: update payout: %w", err)
		}
	}

	wasPaid := existing.Status == models.PayoutStatusPaid
	isPaid := payout.Status == models.PayoutStatusPaid
	switch {
	case isPaid && !wasPaid:
		_, err = tx.ExecContext(ctx, `
			UPDATE partners
			SET available_cents = available_cents - $2,
				last_payout_at = NOW(),
				updated_at = NOW()
			WHERE id = $1
		`, payout.PartnerID, payout.AmountCents)
	case wasPaid && !isPaid:
		_, err = tx.ExecContext(ctx, `
			UPDATE partners
			SET available_cents = available_cents + $2,
				updated_at = NOW()
			WHERE id = $1
		`, payout.PartnerID, payout.AmountCents)
	}
	if err != nil {
		return fmt.Errorf("transaction repository: adjust payout balance: %w", err)
	}

	return tx.Commit()
}

// ListPayouts возвращает выплаты партнёра, свежие первыми.
func (r *TransactionRepository) ListPayouts(ctx context.Context, partnerID uuid.UUID, limit, offset int) ([]models.Payout, error) {
	var payouts []models.Payout
	err := r.db.SelectContext(ctx, &payouts, `
		SELECT * FROM payouts WHERE partner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, partnerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list payouts: %w", err)
	}
	return payouts, nil
}
