package model

import "github.com/shopspring/decimal"

// ChainEvidence is what the explorer told us about one transaction hash,
// after normalization. It is never stored.
type ChainEvidence struct {
	TxHash          string          `json:"tx_hash"`
	ToAddress       string          `json:"to_address"`
	FromAddress     string          `json:"from_address"`
	TokenSymbol     string          `json:"token_symbol"`
	ContractAddress string          `json:"contract_address"`
	RawAmount       RawAmount       `json:"raw_amount"`
	Amount          decimal.Decimal `json:"amount"`
	Confirmations   int64           `json:"confirmations"`
	Success         bool            `json:"success"`
}
