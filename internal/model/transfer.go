package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type TransferType string

const (
	TransferTypeDeposit    TransferType = "deposit"
	TransferTypeWithdrawal TransferType = "withdrawal"
)

type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusProcessed TransferStatus = "processed"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusCanceled  TransferStatus = "canceled"
)

func (s TransferStatus) IsTerminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusCanceled
}

type Transfer struct {
	ID                uint            `json:"id" gorm:"primaryKey"`
	UserID            uint            `json:"user_id" gorm:"column:user_id;not null;index"`
	NetworkID         uint            `json:"network_id" gorm:"column:network_id;not null"`
	CurrencyID        uint            `json:"currency_id" gorm:"column:currency_id;not null"`
	FixedRateID       uint            `json:"fixed_rate_id" gorm:"column:fixed_rate_id;not null"`
	Amount            decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(36,18);not null"`
	CurrencyAmount    decimal.Decimal `json:"currency_amount" gorm:"column:currency_amount;type:numeric(36,18);not null"`
	Type              TransferType    `json:"type" gorm:"column:type;type:varchar(16);not null"`
	Status            TransferStatus  `json:"status" gorm:"column:status;type:varchar(16);not null;default:'pending';index"`
	TxID              *string         `json:"tx_id,omitempty" gorm:"column:tx_id;type:varchar(128)"`
	WithdrawalAddress *string         `json:"withdrawal_address,omitempty" gorm:"column:withdrawal_address;type:varchar(128)"`
	FromAddress       *string         `json:"from_address,omitempty" gorm:"column:from_address;type:varchar(128)"`
	Note              *string         `json:"note,omitempty" gorm:"column:note;type:text"`
	NeedsReview       bool            `json:"needs_review" gorm:"column:needs_review;not null;default:false"`
	ReviewReason      *string         `json:"review_reason,omitempty" gorm:"column:review_reason;type:text"`
	CheckAttempts     int             `json:"check_attempts" gorm:"column:check_attempts;not null;default:0"`
	NextCheckAt       *time.Time      `json:"next_check_at,omitempty" gorm:"column:next_check_at"`
	Version           int             `json:"-" gorm:"column:version;not null;default:0"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	ProcessedAt       *time.Time      `json:"processed_at,omitempty" gorm:"column:processed_at"`
	EndedAt           *time.Time      `json:"ended_at,omitempty" gorm:"column:ended_at"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty" gorm:"column:completed_at"`
	ReferralPending   bool            `json:"-" gorm:"column:referral_pending;not null;default:false"`
}

func (Transfer) TableName() string {
	return "transfers"
}

func (t *Transfer) TxIDValue() string {
	if t.TxID == nil {
		return ""
	}
	return *t.TxID
}

// IdempotencyKey identifies the ledger effect of completing this transfer
// with its current transaction hash.
func (t *Transfer) IdempotencyKey() string {
	return fmt.Sprintf("%d:%s", t.ID, t.TxIDValue())
}

func (t *Transfer) IsDeposit() bool {
	return t.Type == TransferTypeDeposit
}

// ExpectedRecipient is the address the chain transaction must pay into.
func (t *Transfer) ExpectedRecipient(network *Network) string {
	if t.Type == TransferTypeWithdrawal && t.WithdrawalAddress != nil {
		return *t.WithdrawalAddress
	}
	return network.DepositAddress
}

// TransferFilter narrows transfer listings.
type TransferFilter struct {
	UserID      *uint
	Status      TransferStatus
	Type        TransferType
	NeedsReview *bool
	Limit       int
	Offset      int
}
