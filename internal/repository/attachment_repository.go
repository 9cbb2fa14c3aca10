package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository/common"
)

// ErrAttachmentNotFound возвращается, когда вложение не найдено.
var ErrAttachmentNotFound = errors.New("attachment not found")

// AttachmentRepository отвечает за таблицу attachments.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository создаёт экземпляр репозитория.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create сохраняет метаданные загруженного файла.
func (r *AttachmentRepository) Create(ctx context.Context, a *models.Attachment) error {
	query := `
		INSERT INTO attachments (owner_id, task_id, file_name, file_path, mime_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	if err := r.db.QueryRowxContext(
		ctx, query,
		a.OwnerID, a.TaskID, a.FileName, a.FilePath, a.MimeType, a.SizeBytes,
	).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("attachment repository: create: %w", err)
	}
	return nil
}

// GetByID возвращает вложение по идентификатору.
func (r *AttachmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Attachment, error) {
	return common.GetByID[models.Attachment](ctx, r.db, "attachments", id, ErrAttachmentNotFound)
}

// ListByTask возвращает вложения задачи.
func (r *AttachmentRepository) ListByTask(ctx context.Context, taskID uuid.UUID) ([]models.Attachment, error) {
	var attachments []models.Attachment
	err := r.db.SelectContext(ctx, &attachments, `
		SELECT * FROM attachments WHERE task_id = $1 ORDER BY created_at DESC
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("attachment repository: list by task: %w", err)
	}
	return attachments, nil
}

// Delete удаляет метаданные вложения.
func (r *AttachmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("attachment repository: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attachment repository: delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrAttachmentNotFound
	}
	return nil
}
