package transfer

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IStore interface {
	Create(tx *gorm.DB, transfer *model.Transfer) (*model.Transfer, error)
	GetByID(tx *gorm.DB, id uint) (*model.Transfer, error)

	// GetForUpdate loads the row under SELECT ... FOR UPDATE
	GetForUpdate(tx *gorm.DB, id uint) (*model.Transfer, error)

	// FindActiveByTxID returns another non-canceled transfer on the network
	// carrying txID, or gorm.ErrRecordNotFound
	FindActiveByTxID(tx *gorm.DB, networkID uint, txID string, excludeID uint) (*model.Transfer, error)

	// Update writes every column of transfer when the stored row still has
	// expectedStatus and expectedVersion, bumping the version. It reports
	// false when another writer got there first.
	Update(tx *gorm.DB, transfer *model.Transfer, expectedStatus model.TransferStatus, expectedVersion int) (bool, error)

	List(tx *gorm.DB, filter model.TransferFilter) ([]*model.Transfer, int64, error)

	// ListDue returns non-terminal transfers with a tx hash, not held for
	// review, whose next check time has passed
	ListDue(tx *gorm.DB, now time.Time, limit int) ([]*model.Transfer, error)

	// ListReferralPending returns completed deposits whose referral payouts
	// have not been written yet, oldest first
	ListReferralPending(tx *gorm.DB, limit int) ([]*model.Transfer, error)

	// ClearReferralPending drops the marker without touching the version;
	// the row is terminal so no transition races it
	ClearReferralPending(tx *gorm.DB, id uint) error
}
