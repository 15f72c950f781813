package storetest

import (
	"time"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/model"
)

// TronAddress builds a valid base58check Tron address from a seed byte.
func TronAddress(seed byte) string {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = seed + byte(i)
	}
	return base58.CheckEncode(payload, 0x41)
}

// Market is one USDT network with a locked rate, the common starting point
// of service tests.
type Market struct {
	Currency model.Currency
	Network  model.Network
	Rate     model.FixedRate
}

// SeedMarket adds USDT (6 decimals) on an active TRC20 network needing 19
// confirmations, plus a rate locked at now for ttl.
func (f *Fake) SeedMarket(rate string, now time.Time, ttl time.Duration) Market {
	currency := f.AddCurrency(model.Currency{
		Symbol:          "USDT",
		Name:            "Tether USD",
		Decimals:        6,
		ContractAddress: TronAddress(200),
		PriceSourceID:   "tether",
	})
	network := f.AddNetwork(model.Network{
		Code:             "TRC20",
		Name:             "Tron",
		CurrencyID:       currency.ID,
		DepositAddress:   TronAddress(100),
		MinConfirmations: 19,
		IsActive:         true,
	})
	fixed := f.PutFixedRate(model.FixedRate{
		NetworkID: network.ID,
		Rate:      decimal.RequireFromString(rate),
		CreatedAt: now,
		EndedAt:   now.Add(ttl),
	})
	network.Currency = &currency
	return Market{Currency: currency, Network: network, Rate: fixed}
}
