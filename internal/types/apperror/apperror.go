// Package apperror holds the error taxonomy shared by the reconciliation
// engine and the HTTP layer. Codes and messages are rendered verbatim to
// API callers, so they must stay stable.
package apperror

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

type Code string

const (
	CodeRateExpired               Code = "RateExpired"
	CodeTxRequired                Code = "TxRequired"
	CodeReasonRequired            Code = "ReasonRequired"
	CodeTxNotFound                Code = "TxNotFound"
	CodeChainUnavailable          Code = "ChainUnavailable"
	CodeAddressMismatch           Code = "AddressMismatch"
	CodeTokenMismatch             Code = "TokenMismatch"
	CodeAmountMismatch            Code = "AmountMismatch"
	CodeInsufficientConfirmations Code = "InsufficientConfirmations"
	CodeAlreadyTerminal           Code = "AlreadyTerminal"
	CodeLedgerApplyFailed         Code = "LedgerApplyFailed"

	CodeNotFound              Code = "NotFound"
	CodeInvalidInput          Code = "InvalidInput"
	CodeInvalidTransition     Code = "InvalidTransition"
	CodeInsufficientBalance   Code = "InsufficientBalance"
	CodeSenderAddressRequired Code = "SenderAddressRequired"
	CodeInvalidTxID           Code = "InvalidTxID"
	CodeTxAlreadyUsed         Code = "TxAlreadyUsed"
	CodeTxReverted            Code = "TxReverted"
	CodePriceUnavailable      Code = "PriceUnavailable"
	CodeForbidden             Code = "Forbidden"
)

type definition struct {
	message    string
	httpStatus int
	retryable  bool
}

var definitions = map[Code]definition{
	CodeRateExpired:               {"rate lock has expired, lock a new rate and resubmit", http.StatusConflict, false},
	CodeTxRequired:                {"transaction hash is required", http.StatusBadRequest, false},
	CodeReasonRequired:            {"cancellation reason is required", http.StatusBadRequest, false},
	CodeTxNotFound:                {"transaction not found on chain yet", http.StatusAccepted, true},
	CodeChainUnavailable:          {"chain explorer is unavailable", http.StatusServiceUnavailable, true},
	CodeAddressMismatch:           {"transaction recipient does not match the expected address", http.StatusUnprocessableEntity, false},
	CodeTokenMismatch:             {"transaction token does not match the network token", http.StatusUnprocessableEntity, false},
	CodeAmountMismatch:            {"transaction amount does not match the expected amount", http.StatusUnprocessableEntity, false},
	CodeInsufficientConfirmations: {"transaction does not have enough confirmations yet", http.StatusAccepted, true},
	CodeAlreadyTerminal:           {"transfer is already in a terminal state", http.StatusOK, false},
	CodeLedgerApplyFailed:         {"ledger update failed, transfer left unchanged", http.StatusInternalServerError, false},
	CodeNotFound:                  {"resource not found", http.StatusNotFound, false},
	CodeInvalidInput:              {"invalid input", http.StatusBadRequest, false},
	CodeInvalidTransition:         {"transition is not allowed from the current status", http.StatusConflict, false},
	CodeInsufficientBalance:       {"insufficient balance", http.StatusUnprocessableEntity, false},
	CodeSenderAddressRequired:     {"sender address is required for this currency", http.StatusBadRequest, false},
	CodeInvalidTxID:               {"transaction hash is malformed", http.StatusBadRequest, false},
	CodeTxAlreadyUsed:             {"transaction hash is already attached to another transfer", http.StatusConflict, false},
	CodeTxReverted:                {"transaction failed on chain", http.StatusUnprocessableEntity, false},
	CodePriceUnavailable:          {"price source is unavailable", http.StatusServiceUnavailable, true},
	CodeForbidden:                 {"forbidden", http.StatusForbidden, false},
}

// Error is a taxonomy error. Detail is operator-facing context and is
// never rendered as the message.
type Error struct {
	Code   Code
	Detail string
	cause  error
}

func New(code Code) *Error {
	return &Error{Code: code}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Detail: fmt.Sprintf(format, args...)}
}

// Wrap attaches a taxonomy code to an underlying cause.
func Wrap(err error, code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail, cause: err}
}

func (e *Error) Error() string {
	msg := string(e.Code) + ": " + e.Message()
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.cause != nil {
		msg += ": " + e.cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches on code so sentinel-style checks work:
// errors.Is(err, apperror.New(apperror.CodeRateExpired)).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Message() string {
	if d, ok := definitions[e.Code]; ok {
		return d.message
	}
	return string(e.Code)
}

func (e *Error) HTTPStatus() int {
	if d, ok := definitions[e.Code]; ok {
		return d.httpStatus
	}
	return http.StatusInternalServerError
}

func (e *Error) Retryable() bool {
	return definitions[e.Code].retryable
}

// CodeOf returns the first taxonomy code found in the chain, or "".
func CodeOf(err error) Code {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func HasCode(err error, code Code) bool {
	for _, e := range multierr.Errors(err) {
		if CodeOf(e) == code {
			return true
		}
	}
	return false
}

// Codes flattens a combined error into its taxonomy codes, in order.
func Codes(err error) []Code {
	var codes []Code
	for _, e := range multierr.Errors(err) {
		if c := CodeOf(e); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

// IsRetryable reports whether every error in err is a retryable taxonomy error.
func IsRetryable(err error) bool {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		var appErr *Error
		if !errors.As(e, &appErr) || !appErr.Retryable() {
			return false
		}
	}
	return true
}
