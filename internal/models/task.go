package models

import (
	"time"

	"github.com/google/uuid"
)

// Project описывает проект, к которому привязаны задачи.
type Project struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Key       string    `db:"key" json:"key"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Task описывает задачу внутреннего дашборда.
type Task struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	ProjectKey     string     `db:"project_key" json:"project_key"`
	Title          string     `db:"title" json:"title"`
	Description    *string    `db:"description" json:"description,omitempty"`
	Status         string     `db:"status" json:"status"`
	Priority       string     `db:"priority" json:"priority"`
	DueDate        *time.Time `db:"due_date" json:"due_date,omitempty"`
	AssignedTo     *string    `db:"assigned_to" json:"assigned_to,omitempty"`
	EstimatedHours *float64   `db:"estimated_hours" json:"estimated_hours,omitempty"`
	ActualHours    *float64   `db:"actual_hours" json:"actual_hours,omitempty"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`

	// started_at и completed_at проставляются ровно один раз при входе
	// в соответствующий статус и никогда не очищаются задним числом.
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`

	// Когда по задаче отправлено task.overdue. В тело вебхука не входит.
	OverdueNotifiedAt *time.Time `db:"overdue_notified_at" json:"-"`

	// Производные метрики в минутах, пересчитываются при изменении меток времени.
	TimeToStartMinutes    *int64 `db:"time_to_start_minutes" json:"time_to_start_minutes,omitempty"`
	TimeToCompleteMinutes *int64 `db:"time_to_complete_minutes" json:"time_to_complete_minutes,omitempty"`
	TotalDurationMinutes  *int64 `db:"total_duration_minutes" json:"total_duration_minutes,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// TaskFilters параметры выборки списка задач.
type TaskFilters struct {
	ProjectKey string
	Status     string
	Priority   string
	AssignedTo string
	Limit      int
	Offset     int
}

// ProjectSummary агрегированная сводка по проекту.
type ProjectSummary struct {
	ProjectKey     string   `db:"project_key" json:"project_key"`
	TotalTasks     int      `db:"total_tasks" json:"total_tasks"`
	PendingTasks   int      `db:"pending_tasks" json:"pending_tasks"`
	InProgress     int      `db:"in_progress_tasks" json:"in_progress_tasks"`
	CompletedTasks int      `db:"completed_tasks" json:"completed_tasks"`
	BlockedTasks   int      `db:"blocked_tasks" json:"blocked_tasks"`
	OverdueTasks   int      `db:"overdue_tasks" json:"overdue_tasks"`
	AvgCompletion  *float64 `db:"avg_completion_minutes" json:"avg_completion_minutes,omitempty"`
}
