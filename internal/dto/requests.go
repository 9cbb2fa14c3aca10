package dto

import "time"

// CreateTaskRequest — тело POST /tasks и действия add_task.
type CreateTaskRequest struct {
	Project        string     `json:"project" binding:"required"`
	Title          string     `json:"title" binding:"required"`
	Description    *string    `json:"description"`
	Priority       string     `json:"priority"`
	DueDate        *time.Time `json:"due_date"`
	AssignedTo     *string    `json:"assigned_to"`
	EstimatedHours *float64   `json:"estimated_hours"`
	Notes          *string    `json:"notes"`
}

// UpdateTaskRequest — тело PUT /tasks/:id и действия update_task.
// Отсутствующие поля не изменяются.
type UpdateTaskRequest struct {
	Title          *string    `json:"title"`
	Description    *string    `json:"description"`
	Status         *string    `json:"status"`
	Priority       *string    `json:"priority"`
	DueDate        *time.Time `json:"due_date"`
	AssignedTo     *string    `json:"assigned_to"`
	EstimatedHours *float64   `json:"estimated_hours"`
	ActualHours    *float64   `json:"actual_hours"`
	Notes          *string    `json:"notes"`
}

// CompleteTaskRequest — тело POST /tasks/:id/complete и действия complete_task.
type CompleteTaskRequest struct {
	ActualHours *float64 `json:"actual_hours"`
	Notes       *string  `json:"notes"`
}

// TaskActionRequest — конверт совместимого endpoint'а POST /tasks/actions.
// Поле action определяет операцию, остальные поля зависят от неё.
type TaskActionRequest struct {
	Action string `json:"action" binding:"required"`

	// list_tasks / project_summary
	Project  string `json:"project"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`

	// add_task
	Title          string     `json:"title"`
	Description    *string    `json:"description"`
	DueDate        *time.Time `json:"due_date"`
	AssignedTo     *string    `json:"assigned_to"`
	EstimatedHours *float64   `json:"estimated_hours"`

	// update_task / complete_task / delete_task
	TaskID      string   `json:"task_id"`
	NewStatus   *string  `json:"new_status"`
	ActualHours *float64 `json:"actual_hours"`
	Notes       *string  `json:"notes"`
}

// OnboardPartnerRequest — тело POST /partners.
type OnboardPartnerRequest struct {
	Name            string  `json:"name" binding:"required"`
	Email           string  `json:"email" binding:"required"`
	Tier            string  `json:"tier"`
	StripeAccountID *string `json:"stripe_account_id"`
}

// ChangeTierRequest — тело PUT /partners/:id/tier.
type ChangeTierRequest struct {
	Tier string `json:"tier" binding:"required"`
}

// SplitPreviewRequest — тело POST /commission/preview.
type SplitPreviewRequest struct {
	AmountCents int64    `json:"amount_cents" binding:"required"`
	Tier        string   `json:"tier"`
	Rate        *float64 `json:"rate"`
}
