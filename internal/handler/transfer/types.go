package transfer

import "github.com/shopspring/decimal"

type CreateDepositRequest struct {
	FixedRateID uint            `json:"fixed_rate_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"gt=0"`
	FromAddress string          `json:"from_address" binding:"omitempty,chainaddr"`
}

type CreateWithdrawalRequest struct {
	FixedRateID       uint            `json:"fixed_rate_id" binding:"required"`
	Amount            decimal.Decimal `json:"amount" binding:"gt=0"`
	WithdrawalAddress string          `json:"withdrawal_address" binding:"required,chainaddr"`
}

type SubmitTxRequest struct {
	TxID string `json:"tx_id"`
}

type ListTransfersRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=pending processed completed canceled"`
	Type   string `form:"type" binding:"omitempty,oneof=deposit withdrawal"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset int    `form:"offset" binding:"omitempty,min=0"`
}
