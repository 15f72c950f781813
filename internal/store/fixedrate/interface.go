package fixedrate

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IStore interface {
	Create(tx *gorm.DB, rate *model.FixedRate) (*model.FixedRate, error)
	GetByID(tx *gorm.DB, id uint) (*model.FixedRate, error)
}
