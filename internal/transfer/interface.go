package transfer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/model"
)

// IService is the only writer of transfer status. Every operation on a
// completed or canceled transfer returns it unchanged with a nil error.
type IService interface {
	CreateDeposit(ctx context.Context, req CreateDepositRequest) (*model.Transfer, error)
	CreateWithdrawal(ctx context.Context, req CreateWithdrawalRequest) (*model.Transfer, error)

	// SubmitTxID attaches the user's transaction hash to their pending transfer.
	SubmitTxID(ctx context.Context, userID, transferID uint, txID string) (*model.Transfer, error)

	// Process moves pending to processed on an admin's say-so. Withdrawals
	// need the payout hash.
	Process(ctx context.Context, transferID uint, txID string, actor Actor) (*model.Transfer, error)

	// MarkProcessed records a verified match for txID. A non-empty review
	// holds the transfer for an operator; an empty one clears a hold.
	MarkProcessed(ctx context.Context, transferID uint, txID string, review string) (*model.Transfer, error)

	// Confirm completes a processed transfer and applies its ledger effect in
	// the same database transaction.
	Confirm(ctx context.Context, transferID uint, actor Actor) (*model.Transfer, error)

	Cancel(ctx context.Context, transferID uint, note string, actor Actor) (*model.Transfer, error)
	Flag(ctx context.Context, transferID uint, reason string) (*model.Transfer, error)

	// ScheduleRecheck sets the next reconciliation time for txID, counting
	// a failed attempt when countAttempt is set.
	ScheduleRecheck(ctx context.Context, transferID uint, txID string, next time.Time, countAttempt bool) (*model.Transfer, error)

	Get(ctx context.Context, transferID uint) (*model.Transfer, error)
	GetForUser(ctx context.Context, userID, transferID uint) (*model.Transfer, error)
	List(ctx context.Context, filter model.TransferFilter) ([]*model.Transfer, int64, error)
}

type CreateDepositRequest struct {
	UserID      uint
	FixedRateID uint
	Amount      decimal.Decimal
	FromAddress string
}

type CreateWithdrawalRequest struct {
	UserID            uint
	FixedRateID       uint
	Amount            decimal.Decimal
	WithdrawalAddress string
}

type ActorKind string

const (
	ActorUser   ActorKind = "user"
	ActorAdmin  ActorKind = "admin"
	ActorSystem ActorKind = "system"
)

// Actor is who asked for a transition.
type Actor struct {
	Kind ActorKind
	ID   uint
}

var System = Actor{Kind: ActorSystem}

func Admin(id uint) Actor {
	return Actor{Kind: ActorAdmin, ID: id}
}

func (a Actor) String() string {
	if a.Kind == ActorSystem {
		return string(a.Kind)
	}
	return string(a.Kind) + ":" + uintStr(a.ID)
}
