package model

import "time"

// Network pairs a chain/token standard with its currency. DepositAddress
// is the single active deposit address for the network.
type Network struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Code             string    `json:"code" gorm:"column:code;type:varchar(32);not null;uniqueIndex"`
	Name             string    `json:"name" gorm:"column:name;type:varchar(128)"`
	CurrencyID       uint      `json:"currency_id" gorm:"column:currency_id;not null"`
	Currency         *Currency `json:"currency,omitempty" gorm:"foreignKey:CurrencyID"`
	DepositAddress   string    `json:"deposit_address" gorm:"column:deposit_address;type:varchar(128);not null"`
	MinConfirmations int       `json:"min_confirmations" gorm:"column:min_confirmations;not null;default:19"`
	IsActive         bool      `json:"is_active" gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Network) TableName() string {
	return "networks"
}
