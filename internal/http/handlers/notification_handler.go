package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/service"
)

// NotificationHandler предоставляет HTTP слой для уведомлений дашборда.
type NotificationHandler struct {
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// List обрабатывает GET /notifications.
func (h *NotificationHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	onlyUnread := c.Query("unread") == "true"
	limit, offset := paginationParams(c)

	notifications, err := h.notifications.List(c.Request.Context(), userID, onlyUnread, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "count": len(notifications)})
}

// MarkRead обрабатывает POST /notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), userID, id); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "уведомление прочитано"})
}

// MarkAllRead обрабатывает POST /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	if err := h.notifications.MarkAllRead(c.Request.Context(), userID); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "все уведомления прочитаны"})
}
