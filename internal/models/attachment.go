package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment — файл, прикреплённый к задаче или статье базы знаний.
type Attachment struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	OwnerID   uuid.UUID  `db:"owner_id" json:"owner_id"`
	TaskID    *uuid.UUID `db:"task_id" json:"task_id,omitempty"`
	FileName  string     `db:"file_name" json:"file_name"`
	FilePath  string     `db:"file_path" json:"-"`
	MimeType  string     `db:"mime_type" json:"mime_type"`
	SizeBytes int64      `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// AuditLogEntry — строка журнала аудита, заполняется триггерами БД
// при изменении строк отслеживаемых таблиц.
type AuditLogEntry struct {
	ID        int64     `db:"id" json:"id"`
	TableName string    `db:"table_name" json:"table_name"`
	RowID     string    `db:"row_id" json:"row_id"`
	Action    string    `db:"action" json:"action"`
	OldValue  *string   `db:"old_value" json:"old_value,omitempty"`
	NewValue  *string   `db:"new_value" json:"new_value,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
