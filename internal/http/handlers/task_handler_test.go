package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/mis-sentinel/backend/internal/dto"
	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/service"
)

type memTaskStore struct {
	tasks map[uuid.UUID]*models.Task
}

func newMemTaskStore() *memTaskStore {
	return &memTaskStore{tasks: make(map[uuid.UUID]*models.Task)}
}

func (m *memTaskStore) Create(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error {
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *memTaskStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, ok := m.tasks[id]
	if !ok {
		return nil, repository.ErrTaskNotFound
	}
	copied := *task
	return &copied, nil
}

func (m *memTaskStore) Update(ctx context.Context, task *models.Task, msgs []models.OutboxMessage) error {
	if _, ok := m.tasks[task.ID]; !ok {
		return repository.ErrTaskNotFound
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return nil
}

func (m *memTaskStore) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.tasks[id]; !ok {
		return repository.ErrTaskNotFound
	}
	delete(m.tasks, id)
	return nil
}

func (m *memTaskStore) List(ctx context.Context, f models.TaskFilters) ([]models.Task, error) {
	var out []models.Task
	for _, task := range m.tasks {
		out = append(out, *task)
	}
	return out, nil
}

type memProjectStore struct{}

func (memProjectStore) EnsureByKey(ctx context.Context, key string) (*models.Project, error) {
	return &models.Project{ID: uuid.New(), Key: key}, nil
}

func (memProjectStore) GetByKey(ctx context.Context, key string) (*models.Project, error) {
	return nil, repository.ErrProjectNotFound
}

func (memProjectStore) List(ctx context.Context) ([]models.Project, error) { return nil, nil }

func (memProjectStore) Summary(ctx context.Context, key string) (*models.ProjectSummary, error) {
	return nil, repository.ErrProjectNotFound
}

func newActionsTestRouter() (*gin.Engine, *memTaskStore) {
	gin.SetMode(gin.TestMode)
	store := newMemTaskStore()
	svc := service.NewTaskService(store, memProjectStore{})
	handler := NewTaskHandler(svc, nil)

	r := gin.New()
	r.POST("/tasks/actions", handler.Actions)
	return r, store
}

func postAction(t *testing.T, r *gin.Engine, body string) (*httptest.ResponseRecorder, dto.ActionResponse) {
	t.Helper()
	req, _ := http.NewRequest("POST", "/tasks/actions", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp dto.ActionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("не удалось разобрать ответ: %v", err)
	}
	return w, resp
}

func TestTaskActions_UnknownAction(t *testing.T) {
	r, _ := newActionsTestRouter()

	w, resp := postAction(t, r, `{"action":"explode"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestTaskActions_AddTask(t *testing.T) {
	r, store := newActionsTestRouter()

	w, resp := postAction(t, r, `{"action":"add_task","project":"ops","title":"Новая задача"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Len(t, store.tasks, 1)
}

func TestTaskActions_AddTask_ValidationIs400(t *testing.T) {
	r, store := newActionsTestRouter()

	w, resp := postAction(t, r, `{"action":"add_task","project":"ops","title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
	assert.Empty(t, store.tasks)
}

func TestTaskActions_CompleteTask_MissingRowIs200(t *testing.T) {
	r, _ := newActionsTestRouter()

	// Ошибка хранилища отдаётся с кодом 200: клиент конверта различает
	// исходы по полю success.
	body := `{"action":"complete_task","task_id":"` + uuid.NewString() + `"}`
	w, resp := postAction(t, r, body)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestTaskActions_CompleteTask_BadUUIDIs400(t *testing.T) {
	r, _ := newActionsTestRouter()

	w, resp := postAction(t, r, `{"action":"complete_task","task_id":"not-a-uuid"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, resp.Success)
}

func TestTaskActions_ListTasks(t *testing.T) {
	r, _ := newActionsTestRouter()

	if _, resp := postAction(t, r, `{"action":"add_task","project":"ops","title":"Задача"}`); !resp.Success {
		t.Fatalf("add_task должен пройти: %s", resp.Error)
	}

	w, resp := postAction(t, r, `{"action":"list_tasks","project":"ops"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}
