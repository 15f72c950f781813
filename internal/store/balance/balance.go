package balance

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type Store struct{}

func New() IStore {
	return &Store{}
}

func (s *Store) Get(tx *gorm.DB, userID uint) (*model.Balance, error) {
	var balance model.Balance
	err := tx.Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return emptyBalance(userID), nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *Store) GetForUpdate(tx *gorm.DB, userID uint) (*model.Balance, error) {
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(emptyBalance(userID)).Error
	if err != nil {
		return nil, err
	}

	var balance model.Balance
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (s *Store) Save(tx *gorm.DB, balance *model.Balance) error {
	return tx.Save(balance).Error
}

func emptyBalance(userID uint) *model.Balance {
	return &model.Balance{
		UserID:   userID,
		Balance:  decimal.Zero,
		Reserved: decimal.Zero,
		Invested: decimal.Zero,
		Income:   decimal.Zero,
	}
}
