package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
)

// AuditRepository читает журнал аудита. Записи в audit_log
// добавляют триггеры БД, приложение их только читает.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository создаёт экземпляр репозитория.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// ListRecent возвращает последние записи журнала, опционально по таблице.
func (r *AuditRepository) ListRecent(ctx context.Context, tableName string, limit, offset int) ([]models.AuditLogEntry, error) {
	query := `SELECT * FROM audit_log`
	args := []interface{}{limit, offset}
	if tableName != "" {
		query += ` WHERE table_name = $3`
		args = append(args, tableName)
	}
	query += ` ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	var entries []models.AuditLogEntry
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("audit repository: list recent: %w", err)
	}
	return entries, nil
}
