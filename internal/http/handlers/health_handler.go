package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

// HealthHandler отвечает за проверку живости сервиса.
type HealthHandler struct {
	db        *sqlx.DB
	startedAt time.Time
}

func NewHealthHandler(db *sqlx.DB) *HealthHandler {
	return &HealthHandler{db: db, startedAt: time.Now()}
}

// Health обрабатывает GET /health. База проверяется пингом с коротким
// таймаутом, чтобы зависший пул не ронял весь эндпоинт.
func (h *HealthHandler) Health(c *gin.Context) {
	uptime := time.Since(h.startedAt).Round(time.Second).String()

	if h.db == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "not configured", "uptime": uptime})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "degraded",
			"database": "unreachable",
			"uptime":   uptime,
		})
		return
	}

	stats := h.db.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "ok",
		"uptime":   uptime,
		"db_pool": gin.H{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
		},
	})
}
