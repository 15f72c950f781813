package explorer

// TransactionInfo is the subset of the explorer's transaction-info payload
// the service consumes.
type TransactionInfo struct {
	Hash          string          `json:"hash"`
	ContractRet   string          `json:"contractRet"`
	Confirmed     bool            `json:"confirmed"`
	Confirmations int64           `json:"confirmations"`
	TokenTransfer []TokenTransfer `json:"trc20TransferInfo"`
}

type TokenTransfer struct {
	Symbol          string `json:"symbol"`
	ContractAddress string `json:"contract_address"`
	Decimals        int    `json:"decimals"`
	AmountStr       string `json:"amount_str"`
	FromAddress     string `json:"from_address"`
	ToAddress       string `json:"to_address"`
}

const contractRetSuccess = "SUCCESS"

// Succeeded reports whether the chain executed the call. An empty result
// is treated as success since some explorers omit it for plain transfers.
func (t *TransactionInfo) Succeeded() bool {
	return t.ContractRet == "" || t.ContractRet == contractRetSuccess
}
