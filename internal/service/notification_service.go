package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/models"
)

// NotificationStore — операции репозитория уведомлений.
type NotificationStore interface {
	Create(ctx context.Context, userID uuid.UUID, payload json.RawMessage) (*models.Notification, error)
	ListByUser(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

// EventBroadcaster доставляет события живым подключениям дашборда.
type EventBroadcaster interface {
	BroadcastToUser(userID uuid.UUID, event string, data any) error
	BroadcastAll(event string, data any) error
}

// NotificationService хранит уведомления и рассылает события задач
// подключённым клиентам дашборда.
type NotificationService struct {
	repo NotificationStore
	hub  EventBroadcaster
}

// NewNotificationService создаёт сервис уведомлений.
func NewNotificationService(repo NotificationStore, hub EventBroadcaster) *NotificationService {
	return &NotificationService{repo: repo, hub: hub}
}

// taskEventPayload — содержимое уведомления о событии задачи.
type taskEventPayload struct {
	Event      string `json:"event"`
	TaskID     string `json:"task_id"`
	ProjectKey string `json:"project_key"`
	Title      string `json:"title"`
	Status     string `json:"status"`
}

// NotifyTaskEvent сохраняет уведомление для пользователя и рассылает
// событие всем подключённым клиентам. Ошибки доставки не прерывают
// вызвавшую мутацию: лента дашборда — это best effort.
func (s *NotificationService) NotifyTaskEvent(ctx context.Context, userID uuid.UUID, event string, task *models.Task) {
	log := logger.WithComponent("notifications")

	payload := taskEventPayload{
		Event:      event,
		TaskID:     task.ID.String(),
		ProjectKey: task.ProjectKey,
		Title:      task.Title,
		Status:     task.Status,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("не удалось сериализовать уведомление")
		return
	}

	if userID != uuid.Nil {
		if _, err := s.repo.Create(ctx, userID, raw); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("не удалось сохранить уведомление")
		}
	}

	if s.hub != nil {
		if err := s.hub.BroadcastAll(event, payload); err != nil {
			log.WithError(err).Warn("не удалось разослать событие")
		}
	}
}

// List возвращает уведомления пользователя.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, onlyUnread bool, limit, offset int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, userID, onlyUnread, limit, offset)
}

// MarkRead помечает уведомление прочитанным.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

// MarkAllRead помечает все уведомления пользователя прочитанными.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}
