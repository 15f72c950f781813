package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance holds a user's running USD totals. Balance is what the user can
// spend; Reserved is held by withdrawals that are not final yet.
type Balance struct {
	UserID         uint            `json:"user_id" gorm:"primaryKey;column:user_id"`
	Balance        decimal.Decimal `json:"balance" gorm:"column:balance;type:numeric(36,18);not null;default:0"`
	Reserved       decimal.Decimal `json:"reserved" gorm:"column:reserved;type:numeric(36,18);not null;default:0"`
	Invested       decimal.Decimal `json:"invested" gorm:"column:invested;type:numeric(36,18);not null;default:0"`
	Income         decimal.Decimal `json:"income" gorm:"column:income;type:numeric(36,18);not null;default:0"`
	LastUpdateDate time.Time       `json:"last_update_date" gorm:"column:last_update_date"`
}

func (Balance) TableName() string {
	return "balances"
}
