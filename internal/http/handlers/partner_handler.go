package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mis-sentinel/backend/internal/dto"
	"github.com/mis-sentinel/backend/internal/http/handlers/common"
	"github.com/mis-sentinel/backend/internal/service"
)

// PartnerHandler предоставляет HTTP слой для партнёров и их финансов.
type PartnerHandler struct {
	partners *service.PartnerService
}

func NewPartnerHandler(partners *service.PartnerService) *PartnerHandler {
	return &PartnerHandler{partners: partners}
}

// Onboard обрабатывает POST /partners.
func (h *PartnerHandler) Onboard(c *gin.Context) {
	var req dto.OnboardPartnerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	partner, err := h.partners.Onboard(c.Request.Context(), service.OnboardInput{
		Name:            req.Name,
		Email:           req.Email,
		Tier:            req.Tier,
		StripeAccountID: req.StripeAccountID,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, partner)
}

// List обрабатывает GET /partners.
func (h *PartnerHandler) List(c *gin.Context) {
	includeInactive := c.Query("include_inactive") == "true"

	partners, err := h.partners.ListPartners(c.Request.Context(), includeInactive)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"partners": partners, "count": len(partners)})
}

// Get обрабатывает GET /partners/:id.
func (h *PartnerHandler) Get(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	partner, err := h.partners.GetPartner(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, partner)
}

// Delete обрабатывает DELETE /partners/:id. Партнёр деактивируется,
// финансовая история остаётся.
func (h *PartnerHandler) Delete(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.partners.DeletePartner(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "партнёр деактивирован"})
}

// ChangeTier обрабатывает PUT /partners/:id/tier.
func (h *PartnerHandler) ChangeTier(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var req dto.ChangeTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	partner, err := h.partners.ChangeTier(c.Request.Context(), id, req.Tier)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, partner)
}

// Balance обрабатывает GET /partners/:id/balance.
func (h *PartnerHandler) Balance(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	balance, err := h.partners.GetBalance(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, balance)
}

// Transactions обрабатывает GET /partners/:id/transactions.
func (h *PartnerHandler) Transactions(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := paginationParams(c)
	transactions, err := h.partners.ListTransactions(c.Request.Context(), id, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": transactions, "count": len(transactions)})
}

// Payouts обрабатывает GET /partners/:id/payouts.
func (h *PartnerHandler) Payouts(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	limit, offset := paginationParams(c)
	payouts, err := h.partners.ListPayouts(c.Request.Context(), id, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payouts": payouts, "count": len(payouts)})
}

// PreviewSplit обрабатывает POST /commission/preview — расчёт разбиения
// платежа без записи в леджер. Ставку можно передать явно или через тир.
func (h *PartnerHandler) PreviewSplit(c *gin.Context) {
	var req dto.SplitPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	var rate float64
	switch {
	case req.Rate != nil:
		rate = *req.Rate
	case req.Tier != "":
		tierRate, err := service.RateForTier(req.Tier)
		if err != nil {
			common.RespondError(c, http.StatusBadRequest, err.Error())
			return
		}
		rate = tierRate
	default:
		common.RespondError(c, http.StatusBadRequest, "нужно указать rate или tier")
		return
	}

	split, err := service.CalculateSplit(req.AmountCents, rate)
	if err != nil {
		common.RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"split":                split,
		"estimated_fee_cents":  service.EstimateProcessorFee(req.AmountCents),
		"commission_rate_used": rate,
	})
}

func paginationParams(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
