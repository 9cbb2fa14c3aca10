package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
)

// ErrTaskNotFound возвращается, когда запись задачи не найдена.
var ErrTaskNotFound = errors.New("task not found")

// TaskRepository отвечает за таблицу tasks.
// Мутации принимают список событий outbox и коммитят их в одной
// транзакции с изменением строки — события не теряются и не
// появляются без самой мутации.
type TaskRepository struct {
	db *sqlx.DB
}

// NewTaskRepository создаёт экземпляр репозитория.
func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create вставляет задачу и ставит её события в outbox атомарно.
func (r *TaskRepository) Create(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("task repository: begin create: %w", err)
	}
	defer tx.Rollback()

	// id и created_at назначены сервисом: события в outbox собраны
	// до вставки и уже несут эти значения.
	query := `
		INSERT INTO tasks (id, project_key, title, description, status, priority, due_date, assigned_to, estimated_hours, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := tx.ExecContext(
		ctx, query,
		task.ID, task.ProjectKey, task.Title, task.Description, task.Status, task.Priority,
		task.DueDate, task.AssignedTo, task.EstimatedHours, task.Notes, task.CreatedAt, task.UpdatedAt,
	); err != nil {
		return fmt.Errorf("task repository: create: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, msgs); err != nil {
		return err
	}

	return tx.Commit()
}

// GetByID возвращает задачу по идентификатору.
func (r *TaskRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	err := r.db.GetContext(ctx, &task, `SELECT * FROM tasks WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("task repository: get by id: %w", err)
	}
	return &task, nil
}

// Update сохраняет изменённую задачу и её события в одной транзакции.
// Метки started_at/completed_at и производные метрики уже посчитаны
// вызывающим кодом и пишутся как есть.
func (r *TaskRepository) Update(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("task repository: begin update: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE tasks
		SET title = $2,
			description = $3,
			status = $4,
			priority = $5,
			due_date = $6,
			assigned_to = $7,
			estimated_hours = $8,
			actual_hours = $9,
			notes = $10,
			started_at = $11,
			completed_at = $12,
			time_to_start_minutes = $13,
			time_to_complete_minutes = $14,
			total_duration_minutes = $15,
			overdue_notified_at = $16,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRowxContext(
		ctx, query,
		task.ID, task.Title, task.Description, task.Status, task.Priority,
		task.DueDate, task.AssignedTo, task.EstimatedHours, task.ActualHours, task.Notes,
		task.StartedAt, task.CompletedAt,
		task.TimeToStartMinutes, task.TimeToCompleteMinutes, task.TotalDurationMinutes,
		task.OverdueNotifiedAt,
	).Scan(&task.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("task repository: update: %w", err)
	}

	if err := insertOutboxTx(ctx, tx, msgs); err != nil {
		return err
	}

	return tx.Commit()
}

// Delete удаляет задачу. События при удалении не отправляются.
func (r *TaskRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("task repository: delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("task repository: delete rows affected: %w", err)
	}
	if affected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListOverdueUnnotified возвращает просроченные живые задачи,
// по которым task.overdue ещё не отправлялось.
func (r *TaskRepository) ListOverdueUnnotified(ctx context.Context, now time.Time, limit int) ([]models.Task, error) {
	var tasks []models.Task
	err := r.db.SelectContext(ctx, &tasks, `
		SELECT * FROM tasks
		WHERE due_date IS NOT NULL AND due_date < $1
			AND overdue_notified_at IS NULL
			AND status NOT IN ('completed', 'cancelled')
		ORDER BY due_date
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("task repository: list overdue: %w", err)
	}
	return tasks, nil
}

// MarkOverdueNotified фиксирует, что уведомление о просрочке отправлено.
func (r *TaskRepository) MarkOverdueNotified(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tasks SET overdue_notified_at = $2, updated_at = NOW()
		WHERE id = $1 AND overdue_notified_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("task repository: mark overdue notified: %w", err)
	}
	return nil
}

// List возвращает задачи по фильтрам, свежие первыми.
func (r *TaskRepository) List(ctx context.Context, f models.TaskFilters) ([]models.Task, error) {
	query := `SELECT * FROM tasks WHERE 1=1`
	args := make([]interface{}, 0, 6)

	if f.ProjectKey != "" {
		args = append(args, f.ProjectKey)
		query += ` AND project_key = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if f.Priority != "" {
		args = append(args, f.Priority)
		query += ` AND priority = $` + strconv.Itoa(len(args))
	}
	if f.AssignedTo != "" {
		args = append(args, f.AssignedTo)
		query += ` AND assigned_to = $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY created_at DESC`

	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	var tasks []models.Task
	if err := r.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("task repository: list: %w", err)
	}
	return tasks, nil
}
