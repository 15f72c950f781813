package model

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxTokenDecimals bounds what we accept from an explorer; real tokens use 0-18.
const MaxTokenDecimals = 36

// RawAmount is an on-chain integer amount plus the token's declared decimals.
type RawAmount struct {
	Value   string `json:"value"`
	Decimal int    `json:"decimal"`
}

func (w RawAmount) Int() (*big.Int, bool) {
	amt, ok := new(big.Int).SetString(w.Value, 10)
	if !ok {
		return nil, false
	}
	return amt, true
}

// ToDecimal normalizes to token units: int(Value) / 10^Decimal, exactly.
func (w RawAmount) ToDecimal() (decimal.Decimal, error) {
	if w.Decimal < 0 || w.Decimal > MaxTokenDecimals {
		return decimal.Zero, fmt.Errorf("decimals %d out of range", w.Decimal)
	}
	amt, ok := w.Int()
	if !ok {
		return decimal.Zero, fmt.Errorf("amount %q is not a base-10 integer", w.Value)
	}
	if amt.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("amount %q is negative", w.Value)
	}

	return decimal.NewFromBigInt(amt, -int32(w.Decimal)), nil
}

// RawAmountFrom is the inverse of ToDecimal; digits beyond decimals are truncated.
func RawAmountFrom(amount decimal.Decimal, decimals int) RawAmount {
	return RawAmount{
		Value:   amount.Shift(int32(decimals)).Truncate(0).String(),
		Decimal: decimals,
	}
}
