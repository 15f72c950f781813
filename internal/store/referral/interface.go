package referral

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IStore interface {
	// GetReferrer reports who referred userID, if anyone
	GetReferrer(tx *gorm.DB, userID uint) (uint, bool, error)

	// CreatePayout inserts unless (transfer_id, level) exists
	CreatePayout(tx *gorm.DB, payout *model.ReferralPayout) (bool, error)
	ListPendingPayouts(tx *gorm.DB, limit int) ([]*model.ReferralPayout, error)

	// UpdatePayout writes payout when its stored status is still expectedStatus
	UpdatePayout(tx *gorm.DB, payout *model.ReferralPayout, expectedStatus model.ReferralPayoutStatus) (bool, error)
}
