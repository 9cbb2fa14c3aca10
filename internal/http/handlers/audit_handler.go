package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/repository"
)

// AuditHandler отдаёт журнал аудита, заполняемый триггерами БД.
type AuditHandler struct {
	repo *repository.AuditRepository
}

func NewAuditHandler(repo *repository.AuditRepository) *AuditHandler {
	return &AuditHandler{repo: repo}
}

// List обрабатывает GET /audit. Доступен только администраторам.
func (h *AuditHandler) List(c *gin.Context) {
	if role, _ := common.CurrentUserRole(c); role != "admin" {
		common.RespondError(c, http.StatusForbidden, "недостаточно прав")
		return
	}

	limit, offset := paginationParams(c)
	entries, err := h.repo.ListRecent(c.Request.Context(), c.Query("table"), limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
