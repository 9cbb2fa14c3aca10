package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
)

// OutboxRepository работает с таблицей webhook_outbox.
// Постановка событий идёт через insertOutboxTx в транзакции мутации,
// выборка и смена статусов — из фонового воркера доставки.
type OutboxRepository struct {
	db *sqlx.DB
}

// NewOutboxRepository создаёт экземпляр репозитория.
func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// insertOutboxTx вставляет события в outbox внутри чужой транзакции.
// Вызывается репозиториями задач, чтобы мутация и её события
// коммитились атомарно.
func insertOutboxTx(ctx context.Context, tx *sqlx.Tx, msgs []models.OutboxMessage) error {
	for _, msg := range msgs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO webhook_outbox (event, payload, status, attempts, next_attempt_at)
			VALUES ($1, $2, 'pending', 0, NOW())
		`, msg.Event, []byte(msg.Payload))
		if err != nil {
			return fmt.Errorf("outbox repository: enqueue %s: %w", msg.Event, err)
		}
	}
	return nil
}

// Enqueue ставит событие в outbox вне транзакции мутации.
// Используется для системных событий (например, просрочка по расписанию).
func (r *OutboxRepository) Enqueue(ctx context.Context, msg models.OutboxMessage) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_outbox (event, payload, status, attempts, next_attempt_at)
		VALUES ($1, $2, 'pending', 0, NOW())
	`, msg.Event, []byte(msg.Payload))
	if err != nil {
		return fmt.Errorf("outbox repository: enqueue %s: %w", msg.Event, err)
	}
	return nil
}

// FetchDue возвращает события, готовые к доставке.
func (r *OutboxRepository) FetchDue(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM webhook_outbox
		WHERE status = 'pending' AND next_attempt_at <= NOW()
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox repository: fetch due: %w", err)
	}
	return events, nil
}

// MarkDelivered отмечает событие доставленным.
func (r *OutboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID, deliveredAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_outbox
		SET status = 'delivered', delivered_at = $2, last_error = NULL
		WHERE id = $1
	`, id, deliveredAt)
	if err != nil {
		return fmt.Errorf("outbox repository: mark delivered: %w", err)
	}
	return nil
}

// Reschedule планирует повторную попытку доставки.
func (r *OutboxRepository) Reschedule(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_outbox
		SET attempts = $2, next_attempt_at = $3, last_error = $4
		WHERE id = $1
	`, id, attempts, nextAttemptAt, lastError)
	if err != nil {
		return fmt.Errorf("outbox repository: reschedule: %w", err)
	}
	return nil
}

// MarkDead переводит событие в dead letter после исчерпания попыток.
func (r *OutboxRepository) MarkDead(ctx context.Context, id uuid.UUID, lastError string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE webhook_outbox
		SET status = 'dead', attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, lastError)
	if err != nil {
		return fmt.Errorf("outbox repository: mark dead: %w", err)
	}
	return nil
}
