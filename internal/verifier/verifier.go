package verifier

import (
	"context"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/dwarvesf/custody-backend/internal/explorer"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

// Expectation is what a transfer expects to see on chain.
type Expectation struct {
	Address          string
	Symbol           string
	ContractAddress  string
	Amount           decimal.Decimal
	Tolerance        decimal.Decimal
	MinConfirmations int64
}

// ToleranceFor is one unit at the given decimal precision, 10^-decimals.
func ToleranceFor(decimals int) decimal.Decimal {
	return decimal.New(1, -int32(decimals))
}

// ExpectationFor builds the expectation for a transfer on its network.
func ExpectationFor(transfer *model.Transfer, network *model.Network) Expectation {
	currency := network.Currency
	return Expectation{
		Address:          transfer.ExpectedRecipient(network),
		Symbol:           currency.Symbol,
		ContractAddress:  currency.ContractAddress,
		Amount:           transfer.CurrencyAmount,
		Tolerance:        ToleranceFor(currency.Decimals),
		MinConfirmations: int64(network.MinConfirmations),
	}
}

type Verifier struct {
	explorer explorer.IExplorer
	logger   *logger.Logger
}

func New(explorer explorer.IExplorer, logger *logger.Logger) *Verifier {
	return &Verifier{
		explorer: explorer,
		logger:   logger,
	}
}

func (v *Verifier) Fetch(ctx context.Context, txHash string) (*model.ChainEvidence, error) {
	hash, err := NormalizeTxID(txHash)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidTxID, txHash)
	}

	info, err := v.explorer.GetTransaction(ctx, hash)
	if err != nil {
		return nil, err
	}

	if got, err := NormalizeTxID(info.Hash); err != nil || got != hash {
		v.logger.Error("[Verifier][Fetch] explorer answered for another hash", map[string]string{
			"requested": hash,
			"returned":  info.Hash,
		})
		return nil, apperror.Newf(apperror.CodeChainUnavailable, "explorer returned hash %q for %s", info.Hash, hash)
	}
	if info.Confirmations < 0 {
		return nil, apperror.Newf(apperror.CodeChainUnavailable, "negative confirmations %d", info.Confirmations)
	}
	if len(info.TokenTransfer) == 0 {
		return nil, apperror.Newf(apperror.CodeTokenMismatch, "transaction %s moves no token", hash)
	}
	if len(info.TokenTransfer) > 1 {
		v.logger.Warn("[Verifier][Fetch] multiple token transfers, using the first", map[string]string{
			"hash":  hash,
			"count": strconv.Itoa(len(info.TokenTransfer)),
		})
	}

	transfer := info.TokenTransfer[0]
	raw := model.RawAmount{Value: strings.TrimSpace(transfer.AmountStr), Decimal: transfer.Decimals}
	amount, err := raw.ToDecimal()
	if err != nil {
		v.logger.Error("[Verifier][Fetch] malformed token amount", map[string]string{
			"hash":     hash,
			"amount":   transfer.AmountStr,
			"decimals": strconv.Itoa(transfer.Decimals),
			"error":    err.Error(),
		})
		return nil, apperror.Wrap(err, apperror.CodeChainUnavailable, "malformed token amount")
	}

	return &model.ChainEvidence{
		TxHash:          hash,
		ToAddress:       transfer.ToAddress,
		FromAddress:     transfer.FromAddress,
		TokenSymbol:     transfer.Symbol,
		ContractAddress: transfer.ContractAddress,
		RawAmount:       raw,
		Amount:          amount,
		Confirmations:   info.Confirmations,
		Success:         info.Succeeded(),
	}, nil
}

func (v *Verifier) Validate(evidence *model.ChainEvidence, expected Expectation) error {
	var errs error

	if !SameAddress(evidence.ToAddress, expected.Address) {
		errs = multierr.Append(errs, apperror.Newf(apperror.CodeAddressMismatch,
			"paid to %s, expected %s", evidence.ToAddress, expected.Address))
	}

	symbolOK := expected.Symbol == "" || strings.EqualFold(evidence.TokenSymbol, expected.Symbol)
	contractOK := expected.ContractAddress == "" || SameAddress(evidence.ContractAddress, expected.ContractAddress)
	if !symbolOK || !contractOK {
		errs = multierr.Append(errs, apperror.Newf(apperror.CodeTokenMismatch,
			"token %s (%s), expected %s (%s)", evidence.TokenSymbol, evidence.ContractAddress, expected.Symbol, expected.ContractAddress))
	}

	if evidence.Amount.Sub(expected.Amount).Abs().GreaterThan(expected.Tolerance) {
		errs = multierr.Append(errs, apperror.Newf(apperror.CodeAmountMismatch,
			"amount %s, expected %s within %s", evidence.Amount, expected.Amount, expected.Tolerance))
	}

	if evidence.Confirmations < expected.MinConfirmations {
		errs = multierr.Append(errs, apperror.Newf(apperror.CodeInsufficientConfirmations,
			"%d of %d confirmations", evidence.Confirmations, expected.MinConfirmations))
	}

	if !evidence.Success {
		errs = multierr.Append(errs, apperror.Newf(apperror.CodeTxReverted, "transaction %s failed on chain", evidence.TxHash))
	}

	return errs
}
