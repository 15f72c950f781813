package balance

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IStore interface {
	// Get returns a zero balance for users that have none yet
	Get(tx *gorm.DB, userID uint) (*model.Balance, error)

	// GetForUpdate locks the user's balance row, creating it if missing
	GetForUpdate(tx *gorm.DB, userID uint) (*model.Balance, error)

	Save(tx *gorm.DB, balance *model.Balance) error
}
