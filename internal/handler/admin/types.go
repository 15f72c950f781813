package admin

import "github.com/dwarvesf/custody-backend/internal/model"

type ListTransfersRequest struct {
	UserID      uint   `form:"user_id"`
	Status      string `form:"status" binding:"omitempty,oneof=pending processed completed canceled"`
	Type        string `form:"type" binding:"omitempty,oneof=deposit withdrawal"`
	NeedsReview *bool  `form:"needs_review"`
	Limit       int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset      int    `form:"offset" binding:"omitempty,min=0"`
}

type ProcessRequest struct {
	TxID string `json:"tx_id"`
}

type CancelRequest struct {
	Note string `json:"note"`
}

type ReconcileResponse struct {
	Outcome  string          `json:"outcome"`
	Transfer *model.Transfer `json:"transfer"`
}
