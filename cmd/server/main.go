package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mis-sentinel/backend/internal/config"
	"github.com/mis-sentinel/backend/internal/db"
	"github.com/mis-sentinel/backend/internal/goroutine"
	"github.com/mis-sentinel/backend/internal/http/handlers"
	"github.com/mis-sentinel/backend/internal/http/router"
	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/repository"
	"github.com/mis-sentinel/backend/internal/service"
	"github.com/mis-sentinel/backend/internal/storage"
	"github.com/mis-sentinel/backend/internal/stripe"
	"github.com/mis-sentinel/backend/internal/webhook"
	"github.com/mis-sentinel/backend/internal/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Init("info", "development")

	cfg, err := config.Load()
	if err != nil {
		logger.Log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}

	logger.Init(cfg.LogLevel, cfg.Env)
	log := logger.WithComponent("main")

	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("не удалось подключиться к базе данных")
	}
	defer conn.Close()

	if err := db.RunMigrations(ctx, conn, cfg.MigrationsPath); err != nil {
		log.WithError(err).Fatal("не удалось применить миграции")
	}

	fileStorage, err := storage.NewFileStorage(cfg.StoragePath, cfg.MaxUploadSizeMB)
	if err != nil {
		log.WithError(err).Fatal("не удалось инициализировать файловое хранилище")
	}

	// Репозитории.
	taskRepo := repository.NewTaskRepository(conn)
	projectRepo := repository.NewProjectRepository(conn)
	partnerRepo := repository.NewPartnerRepository(conn)
	txnRepo := repository.NewTransactionRepository(conn)
	outboxRepo := repository.NewOutboxRepository(conn)
	userRepo := repository.NewUserRepository(conn)
	notificationRepo := repository.NewNotificationRepository(conn)
	attachmentRepo := repository.NewAttachmentRepository(conn)
	auditRepo := repository.NewAuditRepository(conn)

	// Живая лента дашборда.
	hub := ws.NewHub()
	goroutine.SafeGo(hub.Run)

	// Сервисы.
	tokens := service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := service.NewAuthService(userRepo, tokens)
	taskService := service.NewTaskService(taskRepo, projectRepo)
	partnerService := service.NewPartnerService(partnerRepo, txnRepo)
	notificationService := service.NewNotificationService(notificationRepo, hub)
	reconciler := service.NewReconciler(partnerRepo, txnRepo)

	// Доставка исходящих вебхуков из outbox и фоновый обход просрочки.
	if cfg.AutomationWebhookURL != "" {
		sender := webhook.NewSender(cfg.AutomationWebhookURL, cfg.WebhookTimeout)
		worker := webhook.NewWorker(outboxRepo, sender, cfg.OutboxPollInterval, cfg.OutboxBatchSize, cfg.OutboxMaxAttempts)
		goroutine.SafeGoWithContext(ctx, worker.Run)

		sweeper := service.NewOverdueSweeper(taskRepo, outboxRepo, cfg.OverdueSweepInterval)
		goroutine.SafeGoWithContext(ctx, sweeper.Run)
	} else {
		log.Warn("AUTOMATION_WEBHOOK_URL не задан, доставка вебхуков отключена")
	}

	// Хэндлеры.
	h := router.Handlers{
		Health:        handlers.NewHealthHandler(conn),
		Auth:          handlers.NewAuthHandler(authService),
		Tasks:         handlers.NewTaskHandler(taskService, notificationService),
		Partners:      handlers.NewPartnerHandler(partnerService),
		Attachments:   handlers.NewAttachmentHandler(attachmentRepo, fileStorage),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Audit:         handlers.NewAuditHandler(auditRepo),
		WS:            handlers.NewWSHandler(hub, tokens, cfg.AllowedOrigins),
	}
	if cfg.StripeWebhookSecret != "" {
		h.StripeWebhook = handlers.NewStripeWebhookHandler(stripe.NewVerifier(cfg.StripeWebhookSecret), reconciler)
	} else {
		log.Warn("STRIPE_WEBHOOK_SECRET не задан, приём событий Stripe отключён")
	}

	engine := router.SetupRouter(cfg, h, tokens)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	goroutine.SafeGo(func() {
		log.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("ошибка HTTP сервера")
			stop()
		}
	})

	<-ctx.Done()
	log.Info("получен сигнал остановки, завершаем работу")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("ошибка при остановке HTTP сервера")
		os.Exit(1)
	}

	log.Info("сервер остановлен")
}
