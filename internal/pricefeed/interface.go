package pricefeed

import (
	"context"

	"github.com/shopspring/decimal"
)

type IPriceFeed interface {
	// GetUSDPrice returns the USD price of one unit of the asset known to the
	// upstream as sourceID. Failures carry apperror.CodePriceUnavailable.
	GetUSDPrice(ctx context.Context, sourceID string) (decimal.Decimal, error)
}
