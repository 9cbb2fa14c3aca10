package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mis-sentinel/backend/internal/models"
)

// ErrProjectNotFound возвращается, когда проект не найден.
var ErrProjectNotFound = errors.New("project not found")

// ProjectRepository отвечает за таблицу projects.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository создаёт экземпляр репозитория.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// EnsureByKey возвращает проект по ключу, создавая его при первом обращении.
// Имя нового проекта по умолчанию совпадает с ключом.
func (r *ProjectRepository) EnsureByKey(ctx context.Context, key string) (*models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `
		INSERT INTO projects (key, name)
		VALUES ($1, $1)
		ON CONFLICT (key) DO UPDATE SET updated_at = projects.updated_at
		RETURNING *
	`, key)
	if err != nil {
		return nil, fmt.Errorf("project repository: ensure by key: %w", err)
	}
	return &project, nil
}

// GetByKey возвращает проект по ключу.
func (r *ProjectRepository) GetByKey(ctx context.Context, key string) (*models.Project, error) {
	var project models.Project
	err := r.db.GetContext(ctx, &project, `SELECT * FROM projects WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("project repository: get by key: %w", err)
	}
	return &project, nil
}

// List возвращает все проекты по алфавиту ключей.
func (r *ProjectRepository) List(ctx context.Context) ([]models.Project, error) {
	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, `SELECT * FROM projects ORDER BY key`); err != nil {
		return nil, fmt.Errorf("project repository: list: %w", err)
	}
	return projects, nil
}

// Summary считает агрегированную сводку по задачам проекта.
// Просроченными считаются незавершённые и неотменённые задачи
// с датой срока в прошлом.
func (r *ProjectRepository) Summary(ctx context.Context, key string) (*models.ProjectSummary, error) {
	if _, err := r.GetByKey(ctx, key); err != nil {
		return nil, err
	}

	var summary models.ProjectSummary
	err := r.db.GetContext(ctx, &summary, `
		SELECT
			$1::text AS project_key,
			COUNT(*) AS total_tasks,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending_tasks,
			COUNT(*) FILTER (WHERE status = 'in_progress') AS in_progress_tasks,
			COUNT(*) FILTER (WHERE status = 'completed') AS completed_tasks,
			COUNT(*) FILTER (WHERE status = 'blocked') AS blocked_tasks,
			COUNT(*) FILTER (WHERE due_date < NOW() AND status NOT IN ('completed', 'cancelled')) AS overdue_tasks,
			AVG(time_to_complete_minutes) FILTER (WHERE time_to_complete_minutes IS NOT NULL) AS avg_completion_minutes
		FROM tasks
		WHERE project_key = $1
	`, key)
	if err != nil {
		return nil, fmt.Errorf("project repository: summary: %w", err)
	}
	return &summary, nil
}
