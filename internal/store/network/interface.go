package network

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IStore interface {
	// GetByID returns the network with its currency preloaded
	GetByID(tx *gorm.DB, id uint) (*model.Network, error)

	// ListActive returns every active network with its currency preloaded
	ListActive(tx *gorm.DB) ([]*model.Network, error)
}
