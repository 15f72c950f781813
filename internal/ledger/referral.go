package ledger

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
)

// ParseLevels reads per-level referral percentages such as "5,3,1". An
// empty string disables referral income.
func ParseLevels(s string) ([]decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var levels []decimal.Decimal
	for _, part := range strings.Split(s, ",") {
		pct, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "level %d", len(levels)+1)
		}
		if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
			return nil, errors.Errorf("level %d: %s is not a percentage", len(levels)+1, pct)
		}
		levels = append(levels, pct)
	}
	return levels, nil
}

func (a *Accountant) QueueReferralIncome(ctx context.Context, t *model.Transfer) error {
	if !t.IsDeposit() || t.Status != model.TransferStatusCompleted {
		return nil
	}
	if len(a.levels) == 0 && !t.ReferralPending {
		return nil
	}

	queued := 0
	err := a.repo.DoInTx(ctx, func(tx *gorm.DB) error {
		var err error
		if queued, err = a.queuePayouts(tx, t); err != nil {
			return err
		}
		if err := a.store.Transfer.ClearReferralPending(tx, t.ID); err != nil {
			return errors.Wrap(err, "clear referral marker")
		}
		return nil
	})
	if err != nil {
		a.logger.Error("[Accountant][QueueReferralIncome] failed to queue payouts", map[string]string{
			"transfer_id": strconv.FormatUint(uint64(t.ID), 10),
			"error":       err.Error(),
		})
		return err
	}
	t.ReferralPending = false

	if queued > 0 {
		a.logger.Info("[Accountant][QueueReferralIncome] payouts queued", map[string]string{
			"transfer_id": strconv.FormatUint(uint64(t.ID), 10),
			"count":       strconv.Itoa(queued),
		})
	}
	return nil
}

func (a *Accountant) queuePayouts(tx *gorm.DB, t *model.Transfer) (int, error) {
	queued := 0
	seen := map[uint]bool{t.UserID: true}
	userID := t.UserID

	for i, pct := range a.levels {
		referrerID, ok, err := a.store.Referral.GetReferrer(tx, userID)
		if err != nil {
			return 0, errors.Wrap(err, "get referrer")
		}
		if !ok || seen[referrerID] {
			break
		}
		seen[referrerID] = true
		userID = referrerID

		amount := t.Amount.Mul(pct).Div(decimal.NewFromInt(100)).Round(2)
		if !amount.IsPositive() {
			continue
		}

		created, err := a.store.Referral.CreatePayout(tx, &model.ReferralPayout{
			TransferID:    t.ID,
			Level:         i + 1,
			BeneficiaryID: referrerID,
			Amount:        amount,
			Status:        model.ReferralPayoutPending,
		})
		if err != nil {
			return 0, errors.Wrap(err, "create payout")
		}
		if created {
			queued++
		}
	}
	return queued, nil
}

// RequeueReferralIncome queues payouts for completed deposits whose fan-out
// failed or never ran after the completion commit.
func (a *Accountant) RequeueReferralIncome(ctx context.Context) (int, error) {
	pending, err := a.store.Transfer.ListReferralPending(a.repo.DB(ctx), payoutBatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list referral pending deposits")
	}

	requeued := 0
	var errs error
	for _, t := range pending {
		if ctx.Err() != nil {
			return requeued, multierr.Append(errs, ctx.Err())
		}
		if err := a.QueueReferralIncome(ctx, t); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "transfer %d", t.ID))
			continue
		}
		requeued++
	}

	if requeued > 0 {
		a.logger.Info("[Accountant][RequeueReferralIncome] referral fan-out recovered", map[string]string{
			"count": strconv.Itoa(requeued),
		})
	}
	return requeued, errs
}

func (a *Accountant) PayPendingReferrals(ctx context.Context) (int, error) {
	payouts, err := a.store.Referral.ListPendingPayouts(a.repo.DB(ctx), payoutBatchSize)
	if err != nil {
		return 0, errors.Wrap(err, "list pending payouts")
	}

	paid := 0
	var errs error
	for _, p := range payouts {
		if ctx.Err() != nil {
			return paid, multierr.Append(errs, ctx.Err())
		}

		err := a.repo.DoInTx(ctx, func(tx *gorm.DB) error {
			return a.payOne(tx, p)
		})
		if err == nil {
			paid++
			a.metrics.RecordReferralPayout(string(model.ReferralPayoutPaid))
			continue
		}

		errs = multierr.Append(errs, errors.Wrapf(err, "payout %d", p.ID))
		a.recordPayoutFailure(ctx, p, err)
	}
	return paid, errs
}

func (a *Accountant) payOne(tx *gorm.DB, p *model.ReferralPayout) error {
	balance, err := a.store.Balance.GetForUpdate(tx, p.BeneficiaryID)
	if err != nil {
		return errors.Wrap(err, "lock balance")
	}

	created, err := a.store.LedgerEntry.Create(tx, &model.LedgerEntry{
		UserID:         p.BeneficiaryID,
		TransferID:     p.TransferID,
		Kind:           model.LedgerEntryReferralIncome,
		Amount:         p.Amount,
		IdempotencyKey: referralKey(p),
	})
	if err != nil {
		return errors.Wrap(err, "write referral entry")
	}
	if created {
		balance.Income = balance.Income.Add(p.Amount)
		balance.Balance = balance.Balance.Add(p.Amount)
		balance.LastUpdateDate = a.now()
		if err := a.store.Balance.Save(tx, balance); err != nil {
			return errors.Wrap(err, "save balance")
		}
	}

	next := *p
	next.Status = model.ReferralPayoutPaid
	next.Attempts++
	next.LastError = ""
	ok, err := a.store.Referral.UpdatePayout(tx, &next, model.ReferralPayoutPending)
	if err != nil {
		return errors.Wrap(err, "mark payout paid")
	}
	if !ok {
		return apperror.Newf(apperror.CodeInvalidTransition, "payout %d is no longer pending", p.ID)
	}
	return nil
}

func (a *Accountant) recordPayoutFailure(ctx context.Context, p *model.ReferralPayout, cause error) {
	next := *p
	next.Attempts++
	next.LastError = cause.Error()
	if next.Attempts >= maxPayoutAttempts {
		next.Status = model.ReferralPayoutFailed
	}

	err := a.repo.DoInTx(ctx, func(tx *gorm.DB) error {
		_, err := a.store.Referral.UpdatePayout(tx, &next, model.ReferralPayoutPending)
		return err
	})

	fields := map[string]string{
		"payout_id":   strconv.FormatUint(uint64(p.ID), 10),
		"transfer_id": strconv.FormatUint(uint64(p.TransferID), 10),
		"attempts":    strconv.Itoa(next.Attempts),
		"error":       cause.Error(),
	}
	if err != nil {
		fields["update_error"] = err.Error()
	}
	a.logger.Warn("[Accountant][PayPendingReferrals] payout failed", fields)
	a.metrics.RecordReferralPayout(string(next.Status))
}
