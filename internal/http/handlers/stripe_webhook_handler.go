package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/logger"
	"github.com/mis-sentinel/backend/internal/service"
	"github.com/mis-sentinel/backend/internal/stripe"
)

// Максимальный размер тела вебхука: события Stripe небольшие,
// всё остальное — мусор или атака.
const maxWebhookBodyBytes = 1 << 20

// StripeWebhookHandler принимает события Stripe.
type StripeWebhookHandler struct {
	verifier   *stripe.Verifier
	reconciler *service.Reconciler
}

func NewStripeWebhookHandler(verifier *stripe.Verifier, reconciler *service.Reconciler) *StripeWebhookHandler {
	return &StripeWebhookHandler{verifier: verifier, reconciler: reconciler}
}

// Handle обрабатывает POST /webhooks/stripe. Подпись проверяется по
// сырому телу до разбора JSON. Любой ответ кроме 2xx заставит Stripe
// повторить доставку, поэтому ошибки сверки возвращают 500.
func (h *StripeWebhookHandler) Handle(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "не удалось прочитать тело запроса")
		return
	}

	if err := h.verifier.Verify(payload, c.GetHeader(stripe.SignatureHeader)); err != nil {
		logger.WithComponent("stripe_webhook").WithError(err).Warn("отклонено событие с неверной подписью")
		common.RespondError(c, http.StatusBadRequest, "неверная подпись")
		return
	}

	evt, err := stripe.ParseEvent(payload)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, "не удалось разобрать событие")
		return
	}

	if err := h.reconciler.ProcessEvent(c.Request.Context(), evt); err != nil {
		logger.WithComponent("stripe_webhook").
			WithField("event_id", evt.ID).
			WithField("event_type", evt.Type).
			WithError(err).
			Error("ошибка сверки события")
		common.RespondError(c, http.StatusInternalServerError, "ошибка обработки события")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
