package oracle

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IOracle interface {
	// Lock fetches a fresh USD price for the network's currency and persists
	// it as a new FixedRate valid for the configured TTL. It never extends
	// an existing lock.
	Lock(ctx context.Context, networkID uint) (*model.FixedRate, error)

	// GetActive returns the rate while it is still valid, RateExpired after
	GetActive(ctx context.Context, rateID uint) (*model.FixedRate, error)

	// CurrentLock returns the scheduled lock for the network, locking one
	// on demand when the cached lock is missing or expired
	CurrentLock(ctx context.Context, networkID uint) (*model.FixedRate, error)

	// RefreshLocks re-locks every active network; run every TTL by cron
	RefreshLocks(ctx context.Context) error
}

type ICalculator interface {
	// Calculate derives the other side of a USD/currency pair from exactly
	// one of amountUSD or currencyAmount using an active rate
	Calculate(ctx context.Context, rateID uint, amountUSD, currencyAmount *decimal.Decimal) (*Quote, error)
}

// Quote is a calculated pair together with what it was calculated from.
type Quote struct {
	FixedRate      *model.FixedRate
	Network        *model.Network
	Amount         decimal.Decimal
	CurrencyAmount decimal.Decimal
}
