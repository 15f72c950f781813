package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

// ILedger owns every balance mutation. The tx-scoped methods run inside the
// caller's transaction so a transfer transition and its ledger effect commit
// or roll back together.
type ILedger interface {
	// Reserve moves a withdrawal's amount from balance into reserved.
	Reserve(tx *gorm.DB, transfer *model.Transfer) error

	// Release returns a withdrawal's reservation to balance. released is
	// false when nothing was reserved or it was already returned.
	Release(tx *gorm.DB, transfer *model.Transfer) (released bool, err error)

	// ApplyCompletion credits a deposit or finalizes a withdrawal debit at
	// most once per transfer. applied is false on a repeat call.
	ApplyCompletion(tx *gorm.DB, transfer *model.Transfer) (applied bool, err error)

	// QueueReferralIncome records pending payouts up the referral chain of
	// a completed deposit.
	QueueReferralIncome(ctx context.Context, transfer *model.Transfer) error

	// RequeueReferralIncome retries the fan-out for completed deposits still
	// marked referral pending and reports how many were queued.
	RequeueReferralIncome(ctx context.Context) (int, error)

	// PayPendingReferrals credits queued payouts and reports how many were paid.
	PayPendingReferrals(ctx context.Context) (int, error)

	GetBalance(ctx context.Context, userID uint) (*model.Balance, error)
}
