package oracle

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/store"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
)

// USDDecimals is the precision of every USD amount: cents.
const USDDecimals = 2

type Calculator struct {
	repo   store.DBRepo
	store  *store.Store
	oracle IOracle
}

func NewCalculator(repo store.DBRepo, store *store.Store, oracle IOracle) *Calculator {
	return &Calculator{
		repo:   repo,
		store:  store,
		oracle: oracle,
	}
}

func (c *Calculator) Calculate(ctx context.Context, rateID uint, amountUSD, currencyAmount *decimal.Decimal) (*Quote, error) {
	if (amountUSD == nil) == (currencyAmount == nil) {
		return nil, apperror.Newf(apperror.CodeInvalidInput, "exactly one of amount or currency_amount is required")
	}

	rate, err := c.oracle.GetActive(ctx, rateID)
	if err != nil {
		return nil, err
	}

	network, err := c.store.Network.GetByID(c.repo.DB(ctx), rate.NetworkID)
	if err != nil {
		return nil, errors.Wrap(err, "get network of fixed rate")
	}
	if network.Currency == nil {
		return nil, errors.Errorf("network %s has no currency", network.Code)
	}

	var usd, amount decimal.Decimal
	if amountUSD != nil {
		usd, amount, err = FromUSD(rate, network.Currency, *amountUSD)
	} else {
		usd, amount, err = FromCurrency(rate, network.Currency, *currencyAmount)
	}
	if err != nil {
		return nil, err
	}

	return &Quote{
		FixedRate:      rate,
		Network:        network,
		Amount:         usd,
		CurrencyAmount: amount,
	}, nil
}

// FromUSD derives the currency amount for a USD amount:
// currencyAmount = amountUSD / rate, rounded half-up to the currency's decimals.
func FromUSD(rate *model.FixedRate, currency *model.Currency, amountUSD decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if !amountUSD.IsPositive() {
		return decimal.Zero, decimal.Zero, apperror.Newf(apperror.CodeInvalidInput, "amount must be positive")
	}
	if !rate.Rate.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Errorf("fixed rate %d is not positive", rate.ID)
	}

	usd := amountUSD.Round(USDDecimals)
	amount := usd.DivRound(rate.Rate, int32(currency.Decimals))
	if !usd.IsPositive() || !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, apperror.Newf(apperror.CodeInvalidInput, "amount is below the smallest unit")
	}
	return usd, amount, nil
}

// FromCurrency derives the USD amount for a currency amount:
// amountUSD = currencyAmount * rate, rounded half-up to cents.
func FromCurrency(rate *model.FixedRate, currency *model.Currency, currencyAmount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	if !currencyAmount.IsPositive() {
		return decimal.Zero, decimal.Zero, apperror.Newf(apperror.CodeInvalidInput, "currency_amount must be positive")
	}
	if !rate.Rate.IsPositive() {
		return decimal.Zero, decimal.Zero, errors.Errorf("fixed rate %d is not positive", rate.ID)
	}

	amount := currencyAmount.Round(int32(currency.Decimals))
	usd := amount.Mul(rate.Rate).Round(USDDecimals)
	if !usd.IsPositive() || !amount.IsPositive() {
		return decimal.Zero, decimal.Zero, apperror.Newf(apperror.CodeInvalidInput, "currency_amount is below the smallest unit")
	}
	return usd, amount, nil
}
