package reconciler

import "context"

type IReconciler interface {
	Reconcile(ctx context.Context, transferID uint, txID string) (Outcome, error)
	Recheck(ctx context.Context, transferID uint) (Outcome, error)
}

// IQueue accepts background reconciliation requests.
type IQueue interface {
	Enqueue(transferID uint, txID string) bool
}
