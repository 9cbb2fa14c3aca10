package service

import (
	"fmt"
	"math"

	"github.com/mis-sentinel/backend/internal/models"
)

// Split — результат разделения платежа между платформой и партнёром.
// Все суммы в минорных единицах валюты (центах).
type Split struct {
	GrossCents       int64   `json:"gross_cents"`
	CommissionRate   float64 `json:"commission_rate"`
	CommissionCents  int64   `json:"commission_cents"`
	PlatformCents    int64   `json:"platform_cents"`
	FeeEstimateCents int64   `json:"fee_estimate_cents"`
}

// RefundSplit — разбивка возврата. Суммы отрицательные: они
// компенсируют исходную транзакцию в леджере.
type RefundSplit struct {
	RefundCents     int64 `json:"refund_cents"`
	CommissionCents int64 `json:"commission_cents"`
	NetCents        int64 `json:"net_cents"`
}

// processorFeeRate и processorFeeFixedCents — параметры оценки комиссии
// платёжного процессора. Оценка информационная и в разделении не участвует.
const (
	processorFeeRate       = 0.029
	processorFeeFixedCents = 30
)

// CalculateSplit детерминированно делит сумму между платформой и партнёром.
// Комиссия округляется до ближайшего целого, доля платформы — точное
// дополнение без независимого округления, поэтому инвариант
// commission + platform == amount выполняется всегда.
func CalculateSplit(amountCents int64, rate float64) (Split, error) {
	if amountCents < 0 {
		return Split{}, fmt.Errorf("commission: сумма не может быть отрицательной")
	}
	if rate < 0 || rate > 1 {
		return Split{}, fmt.Errorf("commission: ставка должна быть в диапазоне [0,1]")
	}

	commission := int64(math.Round(float64(amountCents) * rate))
	return Split{
		GrossCents:       amountCents,
		CommissionRate:   rate,
		CommissionCents:  commission,
		PlatformCents:    amountCents - commission,
		FeeEstimateCents: EstimateProcessorFee(amountCents),
	}, nil
}

// EstimateProcessorFee оценивает комиссию процессора (2.9% + 30¢).
func EstimateProcessorFee(amountCents int64) int64 {
	return int64(math.Round(float64(amountCents)*processorFeeRate)) + processorFeeFixedCents
}

// CalculateRefundSplit вычисляет разбивку возврата по ставке исходной
// транзакции. Возврат зеркален: комиссия и нетто — отрицательные значения
// взвешенных по ставке долей возвращаемой суммы.
func CalculateRefundSplit(refundCents int64, originalRate float64) (RefundSplit, error) {
	if refundCents < 0 {
		return RefundSplit{}, fmt.Errorf("commission: сумма возврата не может быть отрицательной")
	}
	if originalRate < 0 || originalRate > 1 {
		return RefundSplit{}, fmt.Errorf("commission: ставка должна быть в диапазоне [0,1]")
	}

	refundCommission := int64(math.Round(float64(refundCents) * originalRate))
	return RefundSplit{
		RefundCents:     refundCents,
		CommissionCents: -refundCommission,
		NetCents:        -(refundCents - refundCommission),
	}, nil
}

// RateForTier возвращает комиссионную ставку для уровня партнёра.
func RateForTier(tier string) (float64, error) {
	rate, ok := models.TierCommissionRates[tier]
	if !ok {
		return 0, fmt.Errorf("commission: неизвестный уровень партнёра %q", tier)
	}
	return rate, nil
}
