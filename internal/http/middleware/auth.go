package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mis-sentinel/backend/internal/service"
)

// Ключи gin.Context, под которыми лежат данные авторизованного оператора.
const (
	ContextUserIDKey = "userID"
	ContextRoleKey   = "role"
)

const bearerPrefix = "Bearer "

// AuthMiddleware проверяет access токен из заголовка Authorization
// и кладёт идентификатор и роль оператора в контекст запроса.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "требуется авторизация"})
			return
		}

		userID, role, err := tokens.ParseAccess(strings.TrimPrefix(header, bearerPrefix))
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "токен невалиден"})
			return
		}

		c.Set(ContextUserIDKey, userID)
		c.Set(ContextRoleKey, role)
		c.Next()
	}
}
