package router

import (
	"github.com/gin-gonic/gin"

	"github.com/mis-sentinel/backend/internal/config"
	"github.com/mis-sentinel/backend/internal/http/handlers"
	"github.com/mis-sentinel/backend/internal/http/middleware"
	"github.com/mis-sentinel/backend/internal/service"
)

// Handlers собирает все HTTP хэндлеры приложения для передачи в роутер.
type Handlers struct {
	Health        *handlers.HealthHandler
	Auth          *handlers.AuthHandler
	Tasks         *handlers.TaskHandler
	Partners      *handlers.PartnerHandler
	StripeWebhook *handlers.StripeWebhookHandler
	Attachments   *handlers.AttachmentHandler
	Notifications *handlers.NotificationHandler
	Audit         *handlers.AuditHandler
	WS            *handlers.WSHandler
}

// SetupRouter настраивает маршруты и middleware приложения.
func SetupRouter(cfg *config.Config, h Handlers, tokens *service.TokenManager) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")

	// Аутентификация: публичные маршруты с жёстким rate limit.
	auth := api.Group("/auth")
	auth.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/refresh", h.Auth.Refresh)
		auth.POST("/logout", h.Auth.Logout)
	}

	// Вебхуки провайдера: аутентификация подписью, не токеном.
	if h.StripeWebhook != nil {
		api.POST("/webhooks/stripe",
			middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod),
			h.StripeWebhook.Handle)
	}

	// Живая лента: токен в query, авторизация внутри хэндлера.
	api.GET("/ws", h.WS.Serve)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(tokens))
	{
		tasks := protected.Group("/tasks")
		{
			tasks.GET("", h.Tasks.ListTasks)
			tasks.POST("", h.Tasks.CreateTask)
			tasks.POST("/actions", h.Tasks.Actions)
			tasks.GET("/:id", middleware.UUIDValidator("id"), h.Tasks.GetTask)
			tasks.PUT("/:id", middleware.UUIDValidator("id"), h.Tasks.UpdateTask)
			tasks.DELETE("/:id", middleware.UUIDValidator("id"), h.Tasks.DeleteTask)
			tasks.POST("/:id/complete", middleware.UUIDValidator("id"), h.Tasks.CompleteTask)
			tasks.GET("/:id/attachments", middleware.UUIDValidator("id"), h.Attachments.List)
			tasks.POST("/:id/attachments", middleware.UUIDValidator("id"), h.Attachments.Upload)
		}

		projects := protected.Group("/projects")
		{
			projects.GET("", h.Tasks.ListProjects)
			projects.GET("/:key/summary", h.Tasks.ProjectSummary)
		}

		partners := protected.Group("/partners")
		{
			partners.GET("", h.Partners.List)
			partners.POST("", h.Partners.Onboard)
			partners.GET("/:id", middleware.UUIDValidator("id"), h.Partners.Get)
			partners.DELETE("/:id", middleware.UUIDValidator("id"), h.Partners.Delete)
			partners.PUT("/:id/tier", middleware.UUIDValidator("id"), h.Partners.ChangeTier)
			partners.GET("/:id/balance", middleware.UUIDValidator("id"), h.Partners.Balance)
			partners.GET("/:id/transactions", middleware.UUIDValidator("id"), h.Partners.Transactions)
			partners.GET("/:id/payouts", middleware.UUIDValidator("id"), h.Partners.Payouts)
		}

		protected.POST("/commission/preview", h.Partners.PreviewSplit)

		attachments := protected.Group("/attachments")
		{
			attachments.GET("/:id", middleware.UUIDValidator("id"), h.Attachments.Download)
			attachments.DELETE("/:id", middleware.UUIDValidator("id"), h.Attachments.Delete)
		}

		notifications := protected.Group("/notifications")
		{
			notifications.GET("", h.Notifications.List)
			notifications.POST("/read-all", h.Notifications.MarkAllRead)
			notifications.POST("/:id/read", middleware.UUIDValidator("id"), h.Notifications.MarkRead)
		}

		protected.GET("/audit", h.Audit.List)
	}

	return r
}
