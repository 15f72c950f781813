package fixedrate

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type Store struct{}

func New() IStore {
	return &Store{}
}

func (s *Store) Create(tx *gorm.DB, rate *model.FixedRate) (*model.FixedRate, error) {
	return rate, tx.Create(rate).Error
}

func (s *Store) GetByID(tx *gorm.DB, id uint) (*model.FixedRate, error) {
	var rate model.FixedRate
	err := tx.Where("id = ?", id).First(&rate).Error
	if err != nil {
		return nil, err
	}
	return &rate, nil
}
