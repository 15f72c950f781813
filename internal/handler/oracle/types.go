package oracle

import (
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type LockRateRequest struct {
	NetworkID uint `json:"network_id" binding:"required"`
}

type CurrentRateResponse struct {
	*model.FixedRate
	RemainingMs int64 `json:"remaining_ms"`
}

// CalculateRequest carries exactly one of Amount (USD) or CurrencyAmount.
type CalculateRequest struct {
	FixedRateID    uint             `json:"fixed_rate_id" binding:"required"`
	Amount         *decimal.Decimal `json:"amount" binding:"omitempty,gt=0"`
	CurrencyAmount *decimal.Decimal `json:"currency_amount" binding:"omitempty,gt=0"`
}

type CalculateResponse struct {
	FixedRateID    uint            `json:"fixed_rate_id"`
	Amount         decimal.Decimal `json:"amount"`
	CurrencyAmount decimal.Decimal `json:"currency_amount"`
}
