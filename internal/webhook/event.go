package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mis-sentinel/backend/internal/models"
)

// Источники событий в поле triggered_by.
const (
	TriggeredByUser   = "user"
	TriggeredBySystem = "system"
)

// TaskPayload — представление задачи в теле исходящего вебхука.
type TaskPayload struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    *string    `json:"description,omitempty"`
	ProjectKey     string     `json:"project_key"`
	Status         string     `json:"status"`
	Priority       string     `json:"priority"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	AssignedTo     *string    `json:"assigned_to,omitempty"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty"`
	ActualHours    *float64   `json:"actual_hours,omitempty"`
	Notes          *string    `json:"notes,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// Envelope — контракт исходящего вебхука.
// Поле timestamp заполняется в момент отправки, а не в момент мутации,
// поэтому при постановке в outbox оно остаётся пустым.
type Envelope struct {
	Event       string                 `json:"event"`
	Task        TaskPayload            `json:"task"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	TriggeredBy string                 `json:"triggered_by"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewTaskPayload собирает payload вебхука из модели задачи.
func NewTaskPayload(task *models.Task) TaskPayload {
	createdAt := task.CreatedAt
	return TaskPayload{
		ID:             task.ID.String(),
		Title:          task.Title,
		Description:    task.Description,
		ProjectKey:     task.ProjectKey,
		Status:         task.Status,
		Priority:       task.Priority,
		DueDate:        task.DueDate,
		AssignedTo:     task.AssignedTo,
		EstimatedHours: task.EstimatedHours,
		ActualHours:    task.ActualHours,
		Notes:          task.Notes,
		CreatedAt:      &createdAt,
		CompletedAt:    task.CompletedAt,
	}
}

// MarshalEnvelope сериализует конверт события для записи в outbox.
func MarshalEnvelope(event string, task *models.Task, triggeredBy string, metadata map[string]interface{}) ([]byte, error) {
	env := Envelope{
		Event:       event,
		Task:        NewTaskPayload(task),
		TriggeredBy: triggeredBy,
		Metadata:    metadata,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("webhook: не удалось сериализовать событие %s: %w", event, err)
	}
	return raw, nil
}

// stampTimestamp проставляет время отправки в сериализованный конверт.
func stampTimestamp(payload []byte, now time.Time) ([]byte, error) {
	var env map[string]interface{}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("webhook: некорректный payload в outbox: %w", err)
	}
	env["timestamp"] = now.UTC().Format(time.RFC3339)
	return json.Marshal(env)
}
