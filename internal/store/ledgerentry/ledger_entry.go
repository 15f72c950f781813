package ledgerentry

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type Store struct{}

func New() IStore {
	return &Store{}
}

func (s *Store) Create(tx *gorm.DB, entry *model.LedgerEntry) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) GetByKey(tx *gorm.DB, key string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := tx.Where("idempotency_key = ?", key).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Store) FindByTransfer(tx *gorm.DB, transferID uint, kind model.LedgerEntryKind) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := tx.Where("transfer_id = ? AND kind = ?", transferID, kind).
		Order("id").
		Find(&entries).Error
	return entries, err
}
