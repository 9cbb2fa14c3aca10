package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/dto"
	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/models"
	"github.com/mis-sentinel/backend/internal/pkg/apperror"
	"github.com/mis-sentinel/backend/internal/service"
)

// TaskHandler предоставляет HTTP слой для задач и проектов.
type TaskHandler struct {
	tasks         *service.TaskService
	notifications *service.NotificationService
}

// NewTaskHandler создаёт хэндлер.
func NewTaskHandler(tasks *service.TaskService, notifications *service.NotificationService) *TaskHandler {
	return &TaskHandler{tasks: tasks, notifications: notifications}
}

// ListTasks обрабатывает GET /tasks.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	filters := models.TaskFilters{
		ProjectKey: c.Query("project"),
		Status:     c.Query("status"),
		Priority:   c.Query("priority"),
		AssignedTo: c.Query("assignee"),
	}

	tasks, err := h.tasks.ListTasks(c.Request.Context(), filters)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks, "count": len(tasks)})
}

// GetTask обрабатывает GET /tasks/:id.
func (h *TaskHandler) GetTask(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.GetTask(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, task)
}

// CreateTask обрабатывает POST /tasks.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var req dto.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.CreateTask(c.Request.Context(), service.CreateTaskInput{
		ProjectKey:     req.Project,
		Title:          req.Title,
		Description:    req.Description,
		Priority:       req.Priority,
		DueDate:        req.DueDate,
		AssignedTo:     req.AssignedTo,
		EstimatedHours: req.EstimatedHours,
		Notes:          req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.notifyEvent(c, models.EventTaskCreated, task)
	c.JSON(http.StatusCreated, task)
}

// UpdateTask обрабатывает PUT /tasks/:id.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.UpdateTask(c.Request.Context(), id, service.UpdateTaskInput{
		Title:          req.Title,
		Description:    req.Description,
		Status:         req.Status,
		Priority:       req.Priority,
		DueDate:        req.DueDate,
		AssignedTo:     req.AssignedTo,
		EstimatedHours: req.EstimatedHours,
		ActualHours:    req.ActualHours,
		Notes:          req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.notifyEvent(c, models.EventTaskStatusChanged, task)
	c.JSON(http.StatusOK, task)
}

// CompleteTask обрабатывает POST /tasks/:id/complete.
func (h *TaskHandler) CompleteTask(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.CompleteTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	task, err := h.tasks.CompleteTask(c.Request.Context(), id, req.ActualHours, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.notifyEvent(c, models.EventTaskCompleted, task)
	c.JSON(http.StatusOK, task)
}

// DeleteTask обрабатывает DELETE /tasks/:id.
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.tasks.DeleteTask(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "задача удалена"})
}

// ListProjects обрабатывает GET /projects.
func (h *TaskHandler) ListProjects(c *gin.Context) {
	projects, err := h.tasks.ListProjects(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// ProjectSummary обрабатывает GET /projects/:key/summary.
func (h *TaskHandler) ProjectSummary(c *gin.Context) {
	summary, err := h.tasks.ProjectSummary(c.Request.Context(), c.Param("key"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// Actions обрабатывает POST /tasks/actions — совместимый конверт с полем
// action. Ошибки валидации отдаются как 400, ошибки хранилища — как 200
// с success=false: клиенты конверта различают их именно так.
func (h *TaskHandler) Actions(c *gin.Context) {
	var req dto.TaskActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.FailActionResponse("ошибка разбора запроса: "+err.Error()))
		return
	}

	data, err := h.dispatchAction(c, req)
	if err != nil {
		if apperror.IsValidation(err) {
			c.JSON(http.StatusBadRequest, dto.FailActionResponse(err.Error()))
			return
		}
		c.JSON(http.StatusOK, dto.FailActionResponse(err.Error()))
		return
	}

	c.JSON(http.StatusOK, dto.OkActionResponse(data))
}

func (h *TaskHandler) dispatchAction(c *gin.Context, req dto.TaskActionRequest) (interface{}, error) {
	ctx := c.Request.Context()

	switch req.Action {
	case "list_tasks":
		return h.tasks.ListTasks(ctx, models.TaskFilters{
			ProjectKey: req.Project,
			Status:     req.Status,
			Priority:   req.Priority,
			AssignedTo: req.Assignee,
			Limit:      req.Limit,
			Offset:     req.Offset,
		})

	case "add_task":
		task, err := h.tasks.CreateTask(ctx, service.CreateTaskInput{
			ProjectKey:     req.Project,
			Title:          req.Title,
			Description:    req.Description,
			Priority:       req.Priority,
			DueDate:        req.DueDate,
			AssignedTo:     req.AssignedTo,
			EstimatedHours: req.EstimatedHours,
			Notes:          req.Notes,
		})
		if err == nil {
			h.notifyEvent(c, models.EventTaskCreated, task)
		}
		return task, err

	case "update_task":
		id, err := parseActionTaskID(req.TaskID)
		if err != nil {
			return nil, err
		}
		task, err := h.tasks.UpdateTask(ctx, id, service.UpdateTaskInput{
			Status:         req.NewStatus,
			Description:    req.Description,
			DueDate:        req.DueDate,
			AssignedTo:     req.AssignedTo,
			EstimatedHours: req.EstimatedHours,
			ActualHours:    req.ActualHours,
			Notes:          req.Notes,
		})
		if err == nil {
			h.notifyEvent(c, models.EventTaskStatusChanged, task)
		}
		return task, err

	case "complete_task":
		id, err := parseActionTaskID(req.TaskID)
		if err != nil {
			return nil, err
		}
		task, err := h.tasks.CompleteTask(ctx, id, req.ActualHours, req.Notes)
		if err == nil {
			h.notifyEvent(c, models.EventTaskCompleted, task)
		}
		return task, err

	case "delete_task":
		id, err := parseActionTaskID(req.TaskID)
		if err != nil {
			return nil, err
		}
		if err := h.tasks.DeleteTask(ctx, id); err != nil {
			return nil, err
		}
		return gin.H{"deleted": true}, nil

	case "list_projects":
		return h.tasks.ListProjects(ctx)

	case "project_summary":
		if req.Project == "" {
			return nil, apperror.New(apperror.ErrCodeValidation, "ключ проекта обязателен")
		}
		return h.tasks.ProjectSummary(ctx, req.Project)

	default:
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестное действие: "+req.Action)
	}
}

func parseActionTaskID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, apperror.New(apperror.ErrCodeValidation, "task_id обязателен")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperror.New(apperror.ErrCodeValidation, "task_id должен быть валидным UUID")
	}
	return id, nil
}

// notifyEvent рассылает событие в ленту дашборда. Срез мутации уже
// зафиксирован, ошибки доставки клиенту не видны.
func (h *TaskHandler) notifyEvent(c *gin.Context, event string, task *models.Task) {
	if h.notifications == nil || task == nil {
		return
	}
	userID, _ := common.CurrentUserID(c)
	h.notifications.NotifyTaskEvent(c.Request.Context(), userID, event, task)
}
