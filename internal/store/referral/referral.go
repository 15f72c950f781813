package referral

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type Store struct{}

func New() IStore {
	return &Store{}
}

func (s *Store) GetReferrer(tx *gorm.DB, userID uint) (uint, bool, error) {
	var referral model.Referral
	err := tx.Where("user_id = ?", userID).First(&referral).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return referral.ReferrerID, true, nil
}

func (s *Store) CreatePayout(tx *gorm.DB, payout *model.ReferralPayout) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transfer_id"}, {Name: "level"}},
		DoNothing: true,
	}).Create(payout)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) ListPendingPayouts(tx *gorm.DB, limit int) ([]*model.ReferralPayout, error) {
	var payouts []*model.ReferralPayout
	err := tx.Where("status = ?", model.ReferralPayoutPending).
		Order("id").
		Limit(limit).
		Find(&payouts).Error
	return payouts, err
}

func (s *Store) UpdatePayout(tx *gorm.DB, payout *model.ReferralPayout, expectedStatus model.ReferralPayoutStatus) (bool, error) {
	payout.UpdatedAt = time.Now()
	res := tx.Model(&model.ReferralPayout{}).
		Where("id = ? AND status = ?", payout.ID, expectedStatus).
		Updates(map[string]interface{}{
			"status":     payout.Status,
			"attempts":   payout.Attempts,
			"last_error": payout.LastError,
			"updated_at": payout.UpdatedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
