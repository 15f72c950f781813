package model

import "time"

// Currency is a tradable token. Decimals is both the token's on-chain
// precision and the rounding precision for currency amounts.
type Currency struct {
	ID                    uint      `json:"id" gorm:"primaryKey"`
	Symbol                string    `json:"symbol" gorm:"column:symbol;type:varchar(32);not null"`
	Name                  string    `json:"name" gorm:"column:name;type:varchar(128)"`
	Decimals              int       `json:"decimals" gorm:"column:decimals;not null"`
	SenderAddressRequired bool      `json:"sender_address_required" gorm:"column:sender_address_required;not null;default:false"`
	ContractAddress       string    `json:"contract_address" gorm:"column:contract_address;type:varchar(128)"`
	PriceSourceID         string    `json:"-" gorm:"column:price_source_id;type:varchar(64);not null"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (Currency) TableName() string {
	return "currencies"
}
