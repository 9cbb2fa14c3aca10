package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
)

// NotificationRepository отвечает за таблицу notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository создаёт экземпляр репозитория.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create сохраняет уведомление пользователя.
func (r *NotificationRepository) Create(ctx context.Context, userID uuid.UUID, payload json.RawMessage) (*models.Notification, error) {
	var n models.Notification
	err := r.db.GetContext(ctx, &n, `
		INSERT INTO notifications (user_id, payload) VALUES ($1, $2) RETURNING *
	`, userID, []byte(payload))
	if err != nil {
		return nil, fmt.Errorf("notification repository: create: %w", err)
	}
	return &n, nil
}

// ListByUser возвращает уведомления пользователя, свежие первыми.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error) {
	query := `SELECT * FROM notifications WHERE user_id = $1`
	if onlyUnread {
		query += ` AND is_read = FALSE`
	}
	query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, userID, limit, offset); err != nil {
		return nil, fmt.Errorf("notification repository: list: %w", err)
	}
	return notifications, nil
}

// MarkRead помечает уведомление прочитанным.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2
	`, id, userID)
	if err != nil {
		return fmt.Errorf("notification repository: mark read: %w", err)
	}
	return nil
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		return fmt.Errorf("notification repository: mark all read: %w", err)
	}
	return nil
}
