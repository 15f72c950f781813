package verifier

import (
	"context"

	"github.com/dwarvesf/custody-backend/internal/model"
)

type IVerifier interface {
	// Fetch looks the hash up on the explorer and returns validated,
	// normalized evidence. Errors: TxNotFound, ChainUnavailable (both
	// retryable) or TokenMismatch when the transaction moves no token.
	Fetch(ctx context.Context, txHash string) (*model.ChainEvidence, error)

	// Validate runs every check and combines all failures; nil means the
	// evidence satisfies the expectation.
	Validate(evidence *model.ChainEvidence, expected Expectation) error
}
