package ledgerentry

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IStore interface {
	// Create inserts the entry unless its idempotency key already exists.
	// created is false for a duplicate key.
	Create(tx *gorm.DB, entry *model.LedgerEntry) (created bool, err error)
	GetByKey(tx *gorm.DB, key string) (*model.LedgerEntry, error)
	FindByTransfer(tx *gorm.DB, transferID uint, kind model.LedgerEntryKind) ([]*model.LedgerEntry, error)
}
