package network

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type Store struct{}

func New() IStore {
	return &Store{}
}

func (s *Store) GetByID(tx *gorm.DB, id uint) (*model.Network, error) {
	var network model.Network
	err := tx.Preload("Currency").Where("id = ?", id).First(&network).Error
	if err != nil {
		return nil, err
	}
	return &network, nil
}

func (s *Store) ListActive(tx *gorm.DB) ([]*model.Network, error) {
	var networks []*model.Network
	err := tx.Preload("Currency").Where("is_active = ?", true).Order("id").Find(&networks).Error
	return networks, err
}
