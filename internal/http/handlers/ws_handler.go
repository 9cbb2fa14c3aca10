package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/service"
	"github.com/mis-sentinel/backend/internal/ws"
)

// WSHandler апгрейдит соединение до WebSocket для живой ленты дашборда.
type WSHandler struct {
	hub      *ws.Hub
	tokens   *service.TokenManager
	upgrader websocket.Upgrader
}

func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return &WSHandler{
		hub:    hub,
		tokens: tokens,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				// Без Origin подключаются не-браузерные клиенты.
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Serve обрабатывает GET /ws?token=... Браузерный WebSocket не умеет
// ставить заголовки, поэтому access токен передаётся query параметром.
func (h *WSHandler) Serve(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		common.RespondUnauthorized(c, "token обязателен")
		return
	}

	userID, _, err := h.tokens.ParseAccess(token)
	if err != nil {
		common.RespondUnauthorized(c, "неверный токен")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.WithComponent("ws").WithError(err).Warn("не удалось апгрейдить соединение")
		return
	}

	client := ws.NewClient(conn, h.hub, userID)
	h.hub.Register(client)
	client.Run(c.Request.Context())
}
