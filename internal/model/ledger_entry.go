package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type LedgerEntryKind string

const (
	LedgerEntryDepositCredit     LedgerEntryKind = "deposit_credit"
	LedgerEntryWithdrawalReserve LedgerEntryKind = "withdrawal_reserve"
	LedgerEntryWithdrawalRelease LedgerEntryKind = "withdrawal_release"
	LedgerEntryWithdrawalDebit   LedgerEntryKind = "withdrawal_debit"
	LedgerEntryReferralIncome    LedgerEntryKind = "referral_income"
)

// LedgerEntry records one balance effect. IdempotencyKey is unique, which
// is what makes every effect apply at most once.
type LedgerEntry struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	UserID         uint            `json:"user_id" gorm:"column:user_id;not null;index"`
	TransferID     uint            `json:"transfer_id" gorm:"column:transfer_id;not null;index"`
	TxID           string          `json:"tx_id" gorm:"column:tx_id;type:varchar(128)"`
	Kind           LedgerEntryKind `json:"kind" gorm:"column:kind;type:varchar(32);not null"`
	Amount         decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(36,18);not null"`
	IdempotencyKey string          `json:"idempotency_key" gorm:"column:idempotency_key;type:varchar(255);not null;uniqueIndex"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
