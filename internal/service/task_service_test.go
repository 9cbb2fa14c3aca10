package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/webhook"
)

// fakeTaskStore хранит задачи в памяти и запоминает события outbox,
// пришедшие с последней мутацией.
type fakeTaskStore struct {
	tasks    map[uuid.UUID]*models.Task
	lastMsgs []models.OutboxMessage
}

func newFakeTaskStore() *fakeTaskStore {
	return &fakeTaskStore{tasks: make(map[uuid.UUID]*models.Task)}
}

func (f *fakeTaskStore) Create(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error {
	// Как и настоящий репозиторий, хранит строку с тем id и метками,
	// которые назначил сервис.
	copied := *task
	f.tasks[task.ID] = &copied
	f.lastMsgs = msgs
	return nil
}

func (f *fakeTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (f *fakeTaskStore) Update(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error {
	if _, ok := f.tasks[task.ID]; !ok {
		return repository.ErrTaskNotFound
	}
	task.UpdatedAt = time.Now()
	copied := *task
	f.tasks[task.ID] = &copied
	f.lastMsgs = msgs
	return nil
}

func (f *fakeTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.tasks[id]; !ok {
		return repository.ErrTaskNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeTaskStore) List(ctx context.Context, filters models.TaskFilters) ([]models.Task, error) {
	var out []models.Task
	for _, task := range f.tasks {
		out = append(out, *task)
	}
	return out, nil
}

func (f *fakeTaskStore) events() []string {
	var names []string
	for _, m := range f.lastMsgs {
		names = append(names, m.Event)
	}
	return names
}

type fakeProjectStore struct {
	projects map[string]*models.Project
}

func newFakeProjectStore() *fakeProjectStore {
	return &fakeProjectStore{projects: make(map[string]*models.Project)}
}

func (f *fakeProjectStore) EnsureByKey(ctx context.Context, key string) (*models.Project, error) {
	if p, ok := f.projects[key]; ok {
		return p, nil
	}
	p := &models.Project{ID: uuid.New(), Key: key, Name: key, CreatedAt: time.Now()}
	f.projects[key] = p
	return p, nil
}

func (f *fakeProjectStore) GetByKey(ctx context.Context, key string) (*models.Project, error) {
	if p, ok := f.projects[key]; ok {
		return p, nil
	}
	return nil, repository.ErrProjectNotFound
}

func (f *fakeProjectStore) List(ctx context.Context) ([]models.Project, error) {
	var out []models.Project
	for _, p := range f.projects {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProjectStore) Summary(ctx context.Context, key string) (*models.ProjectSummary, error) {
	if _, ok := f.projects[key]; !ok {
		return nil, repository.ErrProjectNotFound
	}
	return &models.ProjectSummary{ProjectKey: key}, nil
}

func newTestTaskService(now time.Time) (*TaskService, *fakeTaskStore, *fakeProjectStore) {
	tasks := newFakeTaskStore()
	projects := newFakeProjectStore()
	svc := NewTaskService(tasks, projects).WithClock(func() time.Time { return now })
	return svc, tasks, projects
}

func TestTaskService_CreateTask_Defaults(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, projects := newTestTaskService(now)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, CreateTaskInput{ProjectKey: "  ops  ", Title: "  Проверить бэкапы  "})
	if err != nil {
		t.Fatalf("create вернул ошибку: %v", err)
	}

	if task.Status != models.TaskStatusPending {
		t.Fatalf("ожидался статус pending, получили %s", task.Status)
	}
	if task.Priority != models.TaskPriorityMedium {
		t.Fatalf("ожидался приоритет medium, получили %s", task.Priority)
	}
	if task.ProjectKey != "ops" || task.Title != "Проверить бэкапы" {
		t.Fatalf("поля должны быть обрезаны: %q / %q", task.ProjectKey, task.Title)
	}
	if _, ok := projects.projects["ops"]; !ok {
		t.Fatalf("проект должен быть создан автоматически")
	}

	events := store.events()
	if len(events) != 1 || events[0] != models.EventTaskCreated {
		t.Fatalf("ожидалось событие task.created, получили %v", events)
	}
}

func TestTaskService_CreateTask_EventCarriesRowID(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newTestTaskService(now)

	task, err := svc.CreateTask(context.Background(), CreateTaskInput{ProjectKey: "ops", Title: "Ротация ключей"})
	if err != nil {
		t.Fatalf("create вернул ошибку: %v", err)
	}
	if task.ID == uuid.Nil {
		t.Fatalf("сервис должен назначить id до вставки")
	}

	if len(store.lastMsgs) != 1 {
		t.Fatalf("ожидалось одно событие, получили %d", len(store.lastMsgs))
	}
	var env webhook.Envelope
	if err := json.Unmarshal(store.lastMsgs[0].Payload, &env); err != nil {
		t.Fatalf("payload события не разбирается: %v", err)
	}
	if env.Task.ID != task.ID.String() {
		t.Fatalf("в событии id %q, в базе %q", env.Task.ID, task.ID)
	}
	if env.Task.CreatedAt == nil || !env.Task.CreatedAt.Equal(now) {
		t.Fatalf("в событии created_at %v, ожидалось %v", env.Task.CreatedAt, now)
	}
}

func TestTaskService_CreateTask_DueSoonEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newTestTaskService(now)

	due := now.Add(2 * time.Hour)
	_, err := svc.CreateTask(context.Background(), CreateTaskInput{
		ProjectKey: "ops",
		Title:      "Срочная задача",
		DueDate:    &due,
	})
	if err != nil {
		t.Fatalf("create вернул ошибку: %v", err)
	}

	events := store.events()
	if len(events) != 2 || events[1] != models.EventTaskDueSoon {
		t.Fatalf("ожидалось дополнительное событие task.due_soon, получили %v", events)
	}
}

func TestTaskService_CreateTask_Validation(t *testing.T) {
	svc, _, _ := newTestTaskService(time.Now())
	ctx := context.Background()

	cases := []CreateTaskInput{
		{ProjectKey: "", Title: "ok"},
		{ProjectKey: "ops", Title: "   "},
		{ProjectKey: "ops", Title: "ok", Priority: "extreme"},
	}
	for i, in := range cases {
		if _, err := svc.CreateTask(ctx, in); err == nil {
			t.Fatalf("кейс %d: ожидалась ошибка валидации", i)
		}
	}
}

func TestTaskService_UpdateTask_TransitionRules(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestTaskService(now)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, CreateTaskInput{ProjectKey: "ops", Title: "Задача"})
	if err != nil {
		t.Fatalf("create вернул ошибку: %v", err)
	}

	// pending → completed минует in_progress и запрещён.
	completed := models.TaskStatusCompleted
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Status: &completed}); err == nil {
		t.Fatalf("переход pending → completed должен быть отклонён")
	}

	inProgress := models.TaskStatusInProgress
	updated, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Status: &inProgress})
	if err != nil {
		t.Fatalf("переход pending → in_progress вернул ошибку: %v", err)
	}
	if updated.StartedAt == nil || !updated.StartedAt.Equal(now) {
		t.Fatalf("started_at должен быть проставлен временем перехода")
	}
	if updated.TimeToStartMinutes == nil {
		t.Fatalf("time_to_start_minutes должен быть рассчитан")
	}
}

func TestTaskService_UpdateTask_EventPerStatus(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newTestTaskService(now)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectKey: "ops", Title: "Задача"})

	inProgress := models.TaskStatusInProgress
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Status: &inProgress}); err != nil {
		t.Fatalf("update вернул ошибку: %v", err)
	}
	if events := store.events(); len(events) != 1 || events[0] != models.EventTaskStatusChanged {
		t.Fatalf("ожидалось task.status_changed, получили %v", events)
	}

	blocked := models.TaskStatusBlocked
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Status: &blocked}); err != nil {
		t.Fatalf("update вернул ошибку: %v", err)
	}
	if events := store.events(); len(events) != 1 || events[0] != models.EventTaskBlocked {
		t.Fatalf("ожидалось task.blocked, получили %v", events)
	}
}

func TestTaskService_UpdateTask_OverdueEvent(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newTestTaskService(now)
	ctx := context.Background()

	past := now.Add(-time.Hour)
	task, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectKey: "ops", Title: "Задача"})

	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{DueDate: &past}); err != nil {
		t.Fatalf("update вернул ошибку: %v", err)
	}
	if events := store.events(); len(events) != 1 || events[0] != models.EventTaskOverdue {
		t.Fatalf("ожидалось task.overdue, получили %v", events)
	}

	// Повторная мутация уже уведомлённой задачи не дублирует просрочку.
	note := "ещё заметка"
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Notes: &note}); err != nil {
		t.Fatalf("повторный update вернул ошибку: %v", err)
	}
	if events := store.events(); len(events) != 0 {
		t.Fatalf("повторного task.overdue быть не должно, получили %v", events)
	}
}

func TestTaskService_CompleteTask(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newTestTaskService(now)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectKey: "ops", Title: "Задача"})
	inProgress := models.TaskStatusInProgress
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Status: &inProgress}); err != nil {
		t.Fatalf("update вернул ошибку: %v", err)
	}

	hours := 3.5
	done, err := svc.CompleteTask(ctx, task.ID, &hours, nil)
	if err != nil {
		t.Fatalf("complete вернул ошибку: %v", err)
	}
	if done.Status != models.TaskStatusCompleted {
		t.Fatalf("ожидался статус completed, получили %s", done.Status)
	}
	if done.CompletedAt == nil || done.TotalDurationMinutes == nil || done.TimeToCompleteMinutes == nil {
		t.Fatalf("метки и метрики завершения должны быть рассчитаны")
	}
	if done.ActualHours == nil || *done.ActualHours != hours {
		t.Fatalf("actual_hours должен быть записан")
	}
	if events := store.events(); len(events) != 1 || events[0] != models.EventTaskCompleted {
		t.Fatalf("ожидалось task.completed, получили %v", events)
	}

	// Повторное завершение — no-op, метки не переписываются.
	firstCompletedAt := *done.CompletedAt
	again, err := svc.CompleteTask(ctx, task.ID, nil, nil)
	if err != nil {
		t.Fatalf("повторный complete вернул ошибку: %v", err)
	}
	if !again.CompletedAt.Equal(firstCompletedAt) {
		t.Fatalf("completed_at не должен переписываться")
	}
}

func TestTaskService_CompleteTask_Cancelled(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _, _ := newTestTaskService(now)
	ctx := context.Background()

	task, _ := svc.CreateTask(ctx, CreateTaskInput{ProjectKey: "ops", Title: "Задача"})
	cancelled := models.TaskStatusCancelled
	if _, err := svc.UpdateTask(ctx, task.ID, UpdateTaskInput{Status: &cancelled}); err != nil {
		t.Fatalf("update вернул ошибку: %v", err)
	}

	if _, err := svc.CompleteTask(ctx, task.ID, nil, nil); err == nil {
		t.Fatalf("отменённую задачу нельзя завершать")
	}
}

func TestTaskService_ListTasks_Validation(t *testing.T) {
	svc, _, _ := newTestTaskService(time.Now())
	ctx := context.Background()

	if _, err := svc.ListTasks(ctx, models.TaskFilters{Status: "bogus"}); err == nil {
		t.Fatalf("неизвестный статус должен быть отклонён")
	}
	if _, err := svc.ListTasks(ctx, models.TaskFilters{Priority: "bogus"}); err == nil {
		t.Fatalf("неизвестный приоритет должен быть отклонён")
	}
}

func TestIsDueSoon(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	in2h := now.Add(2 * time.Hour)
	in48h := now.Add(48 * time.Hour)
	past := now.Add(-time.Hour)

	if !IsDueSoon(&in2h, now) {
		t.Fatalf("срок через 2 часа — это скоро")
	}
	if IsDueSoon(&in48h, now) {
		t.Fatalf("срок через 48 часов — это не скоро")
	}
	if IsDueSoon(&past, now) {
		t.Fatalf("прошедший срок — не due_soon")
	}
	if IsDueSoon(nil, now) {
		t.Fatalf("без срока не бывает due_soon")
	}
}

func TestIsOverdue(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if !IsOverdue(&past, models.TaskStatusInProgress, now) {
		t.Fatalf("прошедший срок активной задачи — просрочка")
	}
	if IsOverdue(&past, models.TaskStatusCompleted, now) {
		t.Fatalf("завершённая задача не бывает просроченной")
	}
	if IsOverdue(&past, models.TaskStatusCancelled, now) {
		t.Fatalf("отменённая задача не бывает просроченной")
	}
	if IsOverdue(&future, models.TaskStatusPending, now) {
		t.Fatalf("будущий срок — не просрочка")
	}
	if IsOverdue(nil, models.TaskStatusPending, now) {
		t.Fatalf("без срока не бывает просрочки")
	}
}
