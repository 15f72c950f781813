package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Referral struct {
	UserID     uint      `json:"user_id" gorm:"primaryKey;column:user_id"`
	ReferrerID uint      `json:"referrer_id" gorm:"column:referrer_id;not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Referral) TableName() string {
	return "referrals"
}

type ReferralPayoutStatus string

const (
	ReferralPayoutPending ReferralPayoutStatus = "pending"
	ReferralPayoutPaid    ReferralPayoutStatus = "paid"
	ReferralPayoutFailed  ReferralPayoutStatus = "failed"
)

type ReferralPayout struct {
	ID            uint                 `json:"id" gorm:"primaryKey"`
	TransferID    uint                 `json:"transfer_id" gorm:"column:transfer_id;not null;uniqueIndex:idx_referral_payout_level"`
	Level         int                  `json:"level" gorm:"column:level;not null;uniqueIndex:idx_referral_payout_level"`
	BeneficiaryID uint                 `json:"beneficiary_id" gorm:"column:beneficiary_id;not null"`
	Amount        decimal.Decimal      `json:"amount" gorm:"column:amount;type:numeric(36,18);not null"`
	Status        ReferralPayoutStatus `json:"status" gorm:"column:status;type:varchar(16);not null;default:'pending'"`
	Attempts      int                  `json:"attempts" gorm:"column:attempts;not null;default:0"`
	LastError     string               `json:"last_error,omitempty" gorm:"column:last_error;type:text"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func (ReferralPayout) TableName() string {
	return "referral_payouts"
}
