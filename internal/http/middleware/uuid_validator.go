package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UUIDValidator проверяет, что path-параметр является валидным UUID,
// чтобы репозитории не получали мусор в качестве идентификатора.
// Использование: router.GET("/tasks/:id", UUIDValidator("id"), handler.GetTask)
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Param(paramName)
		if raw == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " обязателен",
			})
			c.Abort()
			return
		}

		if _, err := uuid.Parse(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "параметр " + paramName + " должен быть валидным UUID",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
