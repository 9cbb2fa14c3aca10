package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/pkg/apperror"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/validation"
	"github.com/mis-sentinel/backend/internal/webhook"
)

// Окно «скоро срок»: задача с дедлайном в ближайшие сутки.
const dueSoonWindow = 24 * time.Hour

// TaskStore — операции репозитория задач, нужные сервису.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	Update(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f models.TaskFilters) ([]models.Task, error)
}

// ProjectStore — операции репозитория проектов, нужные сервису.
type ProjectStore interface {
	EnsureByKey(ctx context.Context, key string) (*models.Project, error)
	GetByKey(ctx context.Context, key string) (*models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
	Summary(ctx context.Context, key string) (*models.ProjectSummary, error)
}

// TaskService управляет жизненным циклом задач.
// Каждая мутация собирает события для outbox, и репозиторий коммитит
// их вместе с изменением строки — доставка идёт отдельным воркером.
type TaskService struct {
	tasks    TaskStore
	projects ProjectStore
	now      func() time.Time
}

// NewTaskService создаёт сервис задач.
func NewTaskService(tasks TaskStore, projects ProjectStore) *TaskService {
	return &TaskService{tasks: tasks, projects: projects, now: time.Now}
}

// WithClock подменяет источник времени (для тестов).
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

// CreateTaskInput — поля создания задачи.
type CreateTaskInput struct {
	ProjectKey     string
	Title          string
	Description    *string
	Priority       string
	DueDate        *time.Time
	AssignedTo     *string
	EstimatedHours *float64
	Notes          *string
}

// UpdateTaskInput — частичное обновление задачи. nil-поля не трогаются.
type UpdateTaskInput struct {
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	DueDate        *time.Time
	AssignedTo     *string
	EstimatedHours *float64
	ActualHours    *float64
	Notes          *string
}

// CreateTask создаёт задачу в статусе pending и ставит task.created
// (и task.due_soon, если срок в пределах суток) в outbox.
func (s *TaskService) CreateTask(ctx context.Context, in CreateTaskInput) (*models.Task, error) {
	in.ProjectKey = strings.TrimSpace(in.ProjectKey)
	in.Title = strings.TrimSpace(in.Title)
	if err := validation.ValidateProjectKey(in.ProjectKey); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if err := validation.ValidateTaskTitle(in.Title); err != nil {
		return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
	}
	if in.Priority == "" {
		in.Priority = models.TaskPriorityMedium
	}
	if _, ok := models.ValidTaskPriorities[in.Priority]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный приоритет: %s", in.Priority))
	}

	if _, err := s.projects.EnsureByKey(ctx, in.ProjectKey); err != nil {
		return nil, err
	}

	// Идентификатор и метки создания назначаются до сборки событий:
	// payload в outbox должен нести id и created_at настоящей строки.
	now := s.now()
	task := &models.Task{
		ID:             uuid.New(),
		ProjectKey:     in.ProjectKey,
		Title:          in.Title,
		Description:    in.Description,
		Status:         models.TaskStatusPending,
		Priority:       in.Priority,
		DueDate:        in.DueDate,
		AssignedTo:     in.AssignedTo,
		EstimatedHours: in.EstimatedHours,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	msgs, err := buildTaskEvents(task, []string{models.EventTaskCreated}, webhook.TriggeredByUser, nil)
	if err != nil {
		return nil, err
	}
	if IsDueSoon(task.DueDate, now) {
		dueSoon, err := buildTaskEvents(task, []string{models.EventTaskDueSoon}, webhook.TriggeredBySystem, nil)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, dueSoon...)
	}

	if err := s.tasks.Create(ctx, task, msgs); err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask частично обновляет задачу. Смена статуса проверяется по
// таблице переходов; событие выбирается по новому статусу.
func (s *TaskService) UpdateTask(ctx context.Context, id uuid.UUID, in UpdateTaskInput) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, mapTaskErr(err)
	}

	now := s.now()
	previousStatus := task.Status
	var events []string
	metadata := map[string]interface{}{}

	if in.Status != nil && *in.Status != task.Status {
		newStatus := *in.Status
		if _, ok := models.ValidTaskStatuses[newStatus]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный статус: %s", newStatus))
		}
		if !models.CanTransition(task.Status, newStatus) {
			return nil, apperror.New(apperror.ErrCodeValidation,
				fmt.Sprintf("переход %s → %s недопустим", task.Status, newStatus))
		}

		task.Status = newStatus
		s.applyStatusStamps(task, now)

		switch newStatus {
		case models.TaskStatusBlocked:
			events = append(events, models.EventTaskBlocked)
		case models.TaskStatusCompleted:
			events = append(events, models.EventTaskCompleted)
		default:
			events = append(events, models.EventTaskStatusChanged)
		}
		metadata["previous_status"] = previousStatus
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validation.ValidateTaskTitle(title); err != nil {
			return nil, apperror.New(apperror.ErrCodeValidation, err.Error())
		}
		task.Title = title
	}
	if in.Description != nil {
		task.Description = in.Description
	}
	if in.Priority != nil {
		if _, ok := models.ValidTaskPriorities[*in.Priority]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный приоритет: %s", *in.Priority))
		}
		task.Priority = *in.Priority
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	if in.AssignedTo != nil {
		task.AssignedTo = in.AssignedTo
	}
	if in.EstimatedHours != nil {
		task.EstimatedHours = in.EstimatedHours
	}
	if in.ActualHours != nil {
		task.ActualHours = in.ActualHours
	}
	if in.Notes != nil {
		task.Notes = in.Notes
	}

	if len(metadata) == 0 {
		metadata = nil
	}
	msgs, err := buildTaskEvents(task, events, webhook.TriggeredByUser, metadata)
	if err != nil {
		return nil, err
	}
	if IsOverdue(task.DueDate, task.Status, now) && task.OverdueNotifiedAt == nil {
		overdue, err := buildTaskEvents(task, []string{models.EventTaskOverdue}, webhook.TriggeredBySystem, nil)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, overdue...)
		task.OverdueNotifiedAt = &now
	}

	if err := s.tasks.Update(ctx, task, msgs); err != nil {
		return nil, mapTaskErr(err)
	}
	return task, nil
}

// CompleteTask переводит задачу в completed, записывает фактические часы
// и заметки и ставит task.completed в outbox. Повторный вызов для уже
// завершённой задачи ничего не меняет.
func (s *TaskService) CompleteTask(ctx context.Context, id uuid.UUID, actualHours *float64, notes *string) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, mapTaskErr(err)
	}

	if task.Status == models.TaskStatusCompleted {
		return task, nil
	}
	if task.Status == models.TaskStatusCancelled {
		return nil, apperror.New(apperror.ErrCodeValidation, "отменённую задачу нельзя завершить")
	}

	now := s.now()
	task.Status = models.TaskStatusCompleted
	s.applyStatusStamps(task, now)
	if actualHours != nil {
		task.ActualHours = actualHours
	}
	if notes != nil {
		task.Notes = notes
	}

	msgs, err := buildTaskEvents(task, []string{models.EventTaskCompleted}, webhook.TriggeredByUser, nil)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Update(ctx, task, msgs); err != nil {
		return nil, mapTaskErr(err)
	}
	return task, nil
}

// DeleteTask удаляет задачу без событий.
func (s *TaskService) DeleteTask(ctx context.Context, id uuid.UUID) error {
	return mapTaskErr(s.tasks.Delete(ctx, id))
}

// GetTask возвращает задачу по идентификатору.
func (s *TaskService) GetTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, mapTaskErr(err)
	}
	return task, nil
}

// ListTasks возвращает задачи по фильтрам.
func (s *TaskService) ListTasks(ctx context.Context, f models.TaskFilters) ([]models.Task, error) {
	if f.Status != "" {
		if _, ok := models.ValidTaskStatuses[f.Status]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный статус: %s", f.Status))
		}
	}
	if f.Priority != "" {
		if _, ok := models.ValidTaskPriorities[f.Priority]; !ok {
			return nil, apperror.New(apperror.ErrCodeValidation, fmt.Sprintf("неизвестный приоритет: %s", f.Priority))
		}
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.tasks.List(ctx, f)
}

// ListProjects возвращает все проекты.
func (s *TaskService) ListProjects(ctx context.Context) ([]models.Project, error) {
	return s.projects.List(ctx)
}

// ProjectSummary возвращает сводку по задачам проекта.
func (s *TaskService) ProjectSummary(ctx context.Context, key string) (*models.ProjectSummary, error) {
	summary, err := s.projects.Summary(ctx, key)
	if errors.Is(err, repository.ErrProjectNotFound) {
		return nil, apperror.ErrProjectNotFound
	}
	return summary, err
}

// applyStatusStamps проставляет started_at/completed_at при первом входе
// в статус и пересчитывает производные метрики. Метки никогда не
// очищаются и не переписываются.
func (s *TaskService) applyStatusStamps(task *models.Task, now time.Time) {
	if task.Status == models.TaskStatusInProgress && task.StartedAt == nil {
		started := now
		task.StartedAt = &started
		m := minutesBetween(task.CreatedAt, started)
		task.TimeToStartMinutes = &m
	}
	if task.Status == models.TaskStatusCompleted && task.CompletedAt == nil {
		completed := now
		task.CompletedAt = &completed
		total := minutesBetween(task.CreatedAt, completed)
		task.TotalDurationMinutes = &total
		if task.StartedAt != nil {
			m := minutesBetween(*task.StartedAt, completed)
			task.TimeToCompleteMinutes = &m
		}
	}
}

// IsDueSoon сообщает, что срок задачи в будущем и в пределах суток.
func IsDueSoon(due *time.Time, now time.Time) bool {
	if due == nil {
		return false
	}
	return due.After(now) && due.Sub(now) <= dueSoonWindow
}

// IsOverdue сообщает, что срок задачи прошёл, а задача не завершена
// и не отменена. Без срока просрочки не бывает.
func IsOverdue(due *time.Time, status string, now time.Time) bool {
	if due == nil {
		return false
	}
	if status == models.TaskStatusCompleted || status == models.TaskStatusCancelled {
		return false
	}
	return due.Before(now)
}

func minutesBetween(from, to time.Time) int64 {
	return int64(to.Sub(from).Minutes())
}

func buildTaskEvents(task *models.Task, events []string, triggeredBy string, metadata map[string]interface{}) ([]models.OutboxMessage, error) {
	msgs := make([]models.OutboxMessage, 0, len(events))
	for _, event := range events {
		payload, err := webhook.MarshalEnvelope(event, task, triggeredBy, metadata)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, models.OutboxMessage{Event: event, Payload: payload})
	}
	return msgs, nil
}

func mapTaskErr(err error) error {
	if errors.Is(err, repository.ErrTaskNotFound) {
		return apperror.ErrTaskNotFound
	}
	return err
}
