package transfer

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/custody-backend/internal/model"
)

const defaultListLimit = 50

type Store struct{}

func New() IStore {
	return &Store{}
}

func (s *Store) Create(tx *gorm.DB, transfer *model.Transfer) (*model.Transfer, error) {
	return transfer, tx.Create(transfer).Error
}

func (s *Store) GetByID(tx *gorm.DB, id uint) (*model.Transfer, error) {
	var transfer model.Transfer
	err := tx.Where("id = ?", id).First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) GetForUpdate(tx *gorm.DB, id uint) (*model.Transfer, error) {
	var transfer model.Transfer
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) FindActiveByTxID(tx *gorm.DB, networkID uint, txID string, excludeID uint) (*model.Transfer, error) {
	var transfer model.Transfer
	err := tx.Where("network_id = ? AND tx_id = ? AND id <> ? AND status <> ?",
		networkID, txID, excludeID, model.TransferStatusCanceled).
		First(&transfer).Error
	if err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (s *Store) Update(tx *gorm.DB, transfer *model.Transfer, expectedStatus model.TransferStatus, expectedVersion int) (bool, error) {
	transfer.Version = expectedVersion + 1
	transfer.UpdatedAt = time.Now()

	res := tx.Model(&model.Transfer{}).
		Where("id = ? AND status = ? AND version = ?", transfer.ID, expectedStatus, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(transfer)
	if res.Error != nil || res.RowsAffected == 0 {
		transfer.Version = expectedVersion
		return false, res.Error
	}
	return true, nil
}

func (s *Store) List(tx *gorm.DB, filter model.TransferFilter) ([]*model.Transfer, int64, error) {
	query := tx.Model(&model.Transfer{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.NeedsReview != nil {
		query = query.Where("needs_review = ?", *filter.NeedsReview)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var transfers []*model.Transfer
	err := query.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&transfers).Error
	if err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}

func (s *Store) ListDue(tx *gorm.DB, now time.Time, limit int) ([]*model.Transfer, error) {
	var transfers []*model.Transfer
	err := tx.Where("status IN ? AND tx_id IS NOT NULL AND needs_review = ?",
		[]model.TransferStatus{model.TransferStatusPending, model.TransferStatusProcessed}, false).
		Where("next_check_at IS NULL OR next_check_at <= ?", now).
		Order("next_check_at ASC NULLS FIRST, id ASC").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}

func (s *Store) ListReferralPending(tx *gorm.DB, limit int) ([]*model.Transfer, error) {
	var transfers []*model.Transfer
	err := tx.Where("referral_pending = ? AND status = ? AND type = ?",
		true, model.TransferStatusCompleted, model.TransferTypeDeposit).
		Order("id ASC").
		Limit(limit).
		Find(&transfers).Error
	return transfers, err
}

func (s *Store) ClearReferralPending(tx *gorm.DB, id uint) error {
	return tx.Model(&model.Transfer{}).
		Where("id = ?", id).
		UpdateColumn("referral_pending", false).Error
}
