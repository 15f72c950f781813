package store

import (
	"github.com/dwarvesf/custody-backend/internal/store/balance"
	"github.com/dwarvesf/custody-backend/internal/store/fixedrate"
	"github.com/dwarvesf/custody-backend/internal/store/ledgerentry"
	"github.com/dwarvesf/custody-backend/internal/store/network"
	"github.com/dwarvesf/custody-backend/internal/store/referral"
	"github.com/dwarvesf/custody-backend/internal/store/transfer"
)

type Store struct {
	Network     network.IStore
	FixedRate   fixedrate.IStore
	Transfer    transfer.IStore
	Balance     balance.IStore
	LedgerEntry ledgerentry.IStore
	Referral    referral.IStore
}

func New() *Store {
	return &Store{
		Network:     network.New(),
		FixedRate:   fixedrate.New(),
		Transfer:    transfer.New(),
		Balance:     balance.New(),
		LedgerEntry: ledgerentry.New(),
		Referral:    referral.New(),
	}
}
