package explorer

import "context"

type IExplorer interface {
	// GetTransaction looks a hash up. Errors carry apperror.CodeTxNotFound
	// or apperror.CodeChainUnavailable; the payload is returned as the
	// explorer sent it and must be validated by the caller.
	GetTransaction(ctx context.Context, hash string) (*TransactionInfo, error)
}
