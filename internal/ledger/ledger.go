package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	"github.com/dwarvesf/custody-backend/internal/store"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

const (
	payoutBatchSize   = 100
	maxPayoutAttempts = 5
)

type Accountant struct {
	repo    store.DBRepo
	store   *store.Store
	logger  *logger.Logger
	metrics *monitoring.BusinessMetricsRecorder
	levels  []decimal.Decimal
	now     func() time.Time
}

type Option func(*Accountant)

func WithMetrics(metrics *monitoring.BusinessMetricsRecorder) Option {
	return func(a *Accountant) { a.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(a *Accountant) { a.now = now }
}

func New(repo store.DBRepo, store *store.Store, appConfig *config.AppConfig, logger *logger.Logger, opts ...Option) *Accountant {
	levels, err := ParseLevels(appConfig.Referral.Levels)
	if err != nil {
		logger.Error("[Accountant][New] invalid referral levels, referral income disabled", map[string]string{
			"levels": appConfig.Referral.Levels,
			"error":  err.Error(),
		})
		levels = nil
	}

	a := &Accountant{
		repo:   repo,
		store:  store,
		logger: logger,
		levels: levels,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Accountant) Reserve(tx *gorm.DB, t *model.Transfer) error {
	if t.IsDeposit() {
		return apperror.Newf(apperror.CodeInvalidInput, "transfer %d is a deposit", t.ID)
	}

	balance, err := a.store.Balance.GetForUpdate(tx, t.UserID)
	if err != nil {
		return errors.Wrap(err, "lock balance")
	}

	// an existing reservation already moved the funds out of Balance
	reserved, err := a.store.LedgerEntry.FindByTransfer(tx, t.ID, model.LedgerEntryWithdrawalReserve)
	if err != nil {
		return errors.Wrap(err, "find reservation")
	}
	if len(reserved) > 0 {
		return nil
	}

	if balance.Balance.LessThan(t.Amount) {
		a.metrics.RecordLedgerEffect(string(model.LedgerEntryWithdrawalReserve), "insufficient")
		return apperror.Newf(apperror.CodeInsufficientBalance, "available %s, requested %s", balance.Balance, t.Amount)
	}

	created, err := a.store.LedgerEntry.Create(tx, a.entry(t, model.LedgerEntryWithdrawalReserve, reserveKey(t)))
	if err != nil {
		return errors.Wrap(err, "write reserve entry")
	}
	if !created {
		return nil
	}

	balance.Balance = balance.Balance.Sub(t.Amount)
	balance.Reserved = balance.Reserved.Add(t.Amount)
	balance.LastUpdateDate = a.now()
	if err := a.store.Balance.Save(tx, balance); err != nil {
		return errors.Wrap(err, "save balance")
	}

	a.metrics.RecordLedgerEffect(string(model.LedgerEntryWithdrawalReserve), "applied")
	return nil
}

func (a *Accountant) Release(tx *gorm.DB, t *model.Transfer) (bool, error) {
	if t.IsDeposit() {
		return false, nil
	}

	reserved, err := a.store.LedgerEntry.FindByTransfer(tx, t.ID, model.LedgerEntryWithdrawalReserve)
	if err != nil {
		return false, errors.Wrap(err, "find reservation")
	}
	if len(reserved) == 0 {
		return false, nil
	}
	debited, err := a.store.LedgerEntry.FindByTransfer(tx, t.ID, model.LedgerEntryWithdrawalDebit)
	if err != nil {
		return false, errors.Wrap(err, "find debit")
	}
	if len(debited) > 0 {
		return false, nil
	}

	balance, err := a.store.Balance.GetForUpdate(tx, t.UserID)
	if err != nil {
		return false, errors.Wrap(err, "lock balance")
	}

	created, err := a.store.LedgerEntry.Create(tx, a.entry(t, model.LedgerEntryWithdrawalRelease, releaseKey(t)))
	if err != nil {
		return false, errors.Wrap(err, "write release entry")
	}
	if !created {
		return false, nil
	}

	amount := reserved[0].Amount
	balance.Balance = balance.Balance.Add(amount)
	balance.Reserved = balance.Reserved.Sub(amount)
	balance.LastUpdateDate = a.now()
	if err := a.store.Balance.Save(tx, balance); err != nil {
		return false, errors.Wrap(err, "save balance")
	}

	a.metrics.RecordLedgerEffect(string(model.LedgerEntryWithdrawalRelease), "applied")
	return true, nil
}

func (a *Accountant) ApplyCompletion(tx *gorm.DB, t *model.Transfer) (bool, error) {
	applied, err := a.applyCompletion(tx, t)
	if err != nil {
		a.metrics.RecordLedgerEffect(string(completionKind(t)), "failed")
		if apperror.CodeOf(err) == apperror.CodeLedgerApplyFailed {
			return false, err
		}
		return false, apperror.Wrap(err, apperror.CodeLedgerApplyFailed, "transfer "+strconv.FormatUint(uint64(t.ID), 10))
	}
	if applied {
		a.metrics.RecordLedgerEffect(string(completionKind(t)), "applied")
	} else {
		a.metrics.RecordLedgerEffect(string(completionKind(t)), "duplicate")
	}
	return applied, nil
}

func (a *Accountant) applyCompletion(tx *gorm.DB, t *model.Transfer) (bool, error) {
	if t.TxID == nil || *t.TxID == "" {
		return false, apperror.Newf(apperror.CodeLedgerApplyFailed, "transfer %d has no transaction hash", t.ID)
	}
	kind := completionKind(t)

	// one completion per transfer, whatever hash it was completed with
	existing, err := a.store.LedgerEntry.FindByTransfer(tx, t.ID, kind)
	if err != nil {
		return false, errors.Wrap(err, "find completion")
	}
	if len(existing) > 0 {
		return false, nil
	}

	balance, err := a.store.Balance.GetForUpdate(tx, t.UserID)
	if err != nil {
		return false, errors.Wrap(err, "lock balance")
	}

	if !t.IsDeposit() && balance.Reserved.LessThan(t.Amount) {
		return false, apperror.Newf(apperror.CodeLedgerApplyFailed, "reserved %s below withdrawal %s", balance.Reserved, t.Amount)
	}

	created, err := a.store.LedgerEntry.Create(tx, a.entry(t, kind, completionKey(t)))
	if err != nil {
		return false, errors.Wrap(err, "write completion entry")
	}
	if !created {
		return false, nil
	}

	if t.IsDeposit() {
		balance.Balance = balance.Balance.Add(t.Amount)
		balance.Invested = balance.Invested.Add(t.Amount)
	} else {
		balance.Reserved = balance.Reserved.Sub(t.Amount)
	}
	balance.LastUpdateDate = a.now()
	if err := a.store.Balance.Save(tx, balance); err != nil {
		return false, errors.Wrap(err, "save balance")
	}

	a.logger.Info("[Accountant][ApplyCompletion] ledger effect applied", map[string]string{
		"transfer_id": strconv.FormatUint(uint64(t.ID), 10),
		"user_id":     strconv.FormatUint(uint64(t.UserID), 10),
		"kind":        string(kind),
		"amount":      t.Amount.String(),
	})
	return true, nil
}

func (a *Accountant) GetBalance(ctx context.Context, userID uint) (*model.Balance, error) {
	balance, err := a.store.Balance.Get(a.repo.DB(ctx), userID)
	if err != nil {
		return nil, errors.Wrap(err, "get balance")
	}
	return balance, nil
}

func (a *Accountant) entry(t *model.Transfer, kind model.LedgerEntryKind, key string) *model.LedgerEntry {
	return &model.LedgerEntry{
		UserID:         t.UserID,
		TransferID:     t.ID,
		TxID:           t.TxIDValue(),
		Kind:           kind,
		Amount:         t.Amount,
		IdempotencyKey: key,
	}
}

func completionKind(t *model.Transfer) model.LedgerEntryKind {
	if t.IsDeposit() {
		return model.LedgerEntryDepositCredit
	}
	return model.LedgerEntryWithdrawalDebit
}
