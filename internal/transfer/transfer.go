package transfer

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/emitter"
	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/store"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/utils/webhook"
	"github.com/dwarvesf/custody-backend/internal/verifier"
)

// errNoChange ends a transition without writing.
var errNoChange = errors.New("transfer unchanged")

type Service struct {
	repo       store.DBRepo
	store      *store.Store
	calculator oracle.ICalculator
	ledger     ledger.ILedger
	emitter    emitter.IEmitter
	alerter    *webhook.Client
	logger     *logger.Logger
	metrics    *monitoring.BusinessMetricsRecorder
	now        func() time.Time
}

type Option func(*Service)

func WithMetrics(metrics *monitoring.BusinessMetricsRecorder) Option {
	return func(s *Service) { s.metrics = metrics }
}

func WithAlerter(alerter *webhook.Client) Option {
	return func(s *Service) { s.alerter = alerter }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func New(
	repo store.DBRepo,
	store *store.Store,
	calculator oracle.ICalculator,
	ledger ledger.ILedger,
	emitter emitter.IEmitter,
	logger *logger.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		repo:       repo,
		store:      store,
		calculator: calculator,
		ledger:     ledger,
		emitter:    emitter,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateDeposit(ctx context.Context, req CreateDepositRequest) (*model.Transfer, error) {
	quote, err := s.calculator.Calculate(ctx, req.FixedRateID, &req.Amount, nil)
	if err != nil {
		return nil, err
	}

	fromAddress := strings.TrimSpace(req.FromAddress)
	if fromAddress == "" && quote.Network.Currency.SenderAddressRequired {
		return nil, apperror.Newf(apperror.CodeSenderAddressRequired, "currency %s", quote.Network.Currency.Symbol)
	}
	if fromAddress != "" {
		if err := verifier.ValidateAddress(fromAddress); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInvalidInput, "from_address")
		}
	}

	t := newTransfer(req.UserID, model.TransferTypeDeposit, quote)
	if fromAddress != "" {
		t.FromAddress = &fromAddress
	}

	err = s.repo.DoInTx(ctx, func(tx *gorm.DB) error {
		_, err := s.store.Transfer.Create(tx, t)
		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "create deposit")
	}

	s.created(ctx, t)
	return t, nil
}

// CreateWithdrawal creates a pending withdrawal and reserves its amount from
// the user's balance in the same transaction.
func (s *Service) CreateWithdrawal(ctx context.Context, req CreateWithdrawalRequest) (*model.Transfer, error) {
	address := strings.TrimSpace(req.WithdrawalAddress)
	if address == "" {
		return nil, apperror.Newf(apperror.CodeInvalidInput, "withdrawal_address is required")
	}
	if err := verifier.ValidateAddress(address); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInvalidInput, "withdrawal_address")
	}

	quote, err := s.calculator.Calculate(ctx, req.FixedRateID, &req.Amount, nil)
	if err != nil {
		return nil, err
	}

	t := newTransfer(req.UserID, model.TransferTypeWithdrawal, quote)
	t.WithdrawalAddress = &address

	err = s.repo.DoInTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.store.Transfer.Create(tx, t); err != nil {
			return errors.Wrap(err, "create withdrawal")
		}
		return s.ledger.Reserve(tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.created(ctx, t)
	return t, nil
}

// SubmitTxID attaches the user's chain transaction hash to their pending
// transfer. Attaching a different hash restarts the reconcile schedule.
func (s *Service) SubmitTxID(ctx context.Context, userID, transferID uint, txID string) (*model.Transfer, error) {
	if _, err := s.GetForUser(ctx, userID, transferID); err != nil {
		return nil, err
	}

	t, changed, err := s.transition(ctx, transferID, "SubmitTxID", func(tx *gorm.DB, t *model.Transfer) error {
		if t.Status != model.TransferStatusPending {
			return invalidTransition(t, "submit a transaction hash to")
		}
		hash, err := s.checkTxID(tx, t, txID)
		if err != nil {
			return err
		}
		if t.TxIDValue() == hash {
			return errNoChange
		}
		t.TxID = &hash
		t.CheckAttempts = 0
		t.NextCheckAt = nil
		// a hold raised against the previous hash does not apply to this one
		t.NeedsReview = false
		t.ReviewReason = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Info("[TransferService][SubmitTxID] transaction hash attached", map[string]string{
			"transfer_id": uintStr(t.ID),
			"tx_id":       t.TxIDValue(),
		})
	}
	return t, nil
}

// Process moves a pending transfer to processed, attaching txID when given.
// Withdrawals always need a hash here since the operator sends them.
func (s *Service) Process(ctx context.Context, transferID uint, txID string, actor Actor) (*model.Transfer, error) {
	t, changed, err := s.transition(ctx, transferID, "Process", func(tx *gorm.DB, t *model.Transfer) error {
		if strings.TrimSpace(txID) == "" && (t.Type == model.TransferTypeWithdrawal || t.TxID == nil) {
			return apperror.Newf(apperror.CodeTxRequired, "transfer %d", t.ID)
		}
		if strings.TrimSpace(txID) != "" {
			hash, err := s.checkTxID(tx, t, txID)
			if err != nil {
				return err
			}
			if t.Status == model.TransferStatusProcessed && t.TxIDValue() == hash {
				return errNoChange
			}
			t.TxID = &hash
		}
		if t.Status != model.TransferStatusPending {
			return invalidTransition(t, "process")
		}

		now := s.now()
		t.Status = model.TransferStatusProcessed
		t.ProcessedAt = &now
		t.NeedsReview = false
		t.ReviewReason = nil
		t.CheckAttempts = 0
		t.NextCheckAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.audit("Process", t, actor)
		s.emit(ctx, emitter.EventTransferProcessed, t, "")
	}
	return t, nil
}

// MarkProcessed records a verification result for txID. A non-empty review
// holds the transfer for an operator, an empty one clears the hold.
func (s *Service) MarkProcessed(ctx context.Context, transferID uint, txID string, review string) (*model.Transfer, error) {
	t, changed, err := s.transition(ctx, transferID, "MarkProcessed", func(tx *gorm.DB, t *model.Transfer) error {
		if t.TxIDValue() != txID {
			return apperror.Newf(apperror.CodeInvalidTransition, "transfer %d now carries another transaction hash", t.ID)
		}

		held := review != ""
		if t.Status == model.TransferStatusProcessed && t.NeedsReview == held && (!held || t.ReviewReason != nil && *t.ReviewReason == review) {
			return errNoChange
		}

		if t.Status != model.TransferStatusProcessed {
			now := s.now()
			t.ProcessedAt = &now
		}
		t.Status = model.TransferStatusProcessed
		t.NeedsReview = held
		t.ReviewReason = nil
		if held {
			t.ReviewReason = &review
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return t, nil
	}

	if t.NeedsReview {
		s.logger.Warn("[TransferService][MarkProcessed] held for review", map[string]string{
			"transfer_id": uintStr(t.ID),
			"tx_id":       t.TxIDValue(),
			"reason":      review,
		})
		s.emit(ctx, emitter.EventTransferNeedsReview, t, review)
		s.alerter.Notify(ctx, string(emitter.EventTransferNeedsReview), webhook.SeverityWarning, alertFields(t, review))
		return t, nil
	}
	s.emit(ctx, emitter.EventTransferProcessed, t, "")
	return t, nil
}

// Confirm completes a processed transfer and applies its ledger effect in the
// same transaction. Only admins may confirm a transfer held for review.
func (s *Service) Confirm(ctx context.Context, transferID uint, actor Actor) (*model.Transfer, error) {
	t, changed, err := s.transition(ctx, transferID, "Confirm", func(tx *gorm.DB, t *model.Transfer) error {
		if t.Status != model.TransferStatusProcessed {
			return invalidTransition(t, "confirm")
		}
		if t.NeedsReview && actor.Kind != ActorAdmin {
			return apperror.Newf(apperror.CodeInvalidTransition, "transfer %d is held for review", t.ID)
		}

		now := s.now()
		t.Status = model.TransferStatusCompleted
		t.NeedsReview = false
		t.ReviewReason = nil
		t.NextCheckAt = nil
		t.CompletedAt = &now
		t.EndedAt = &now
		// cleared once the referral payouts exist, see ledger.RequeueReferralIncome
		t.ReferralPending = t.IsDeposit()

		_, err := s.ledger.ApplyCompletion(tx, t)
		return err
	})
	if err != nil {
		if apperror.CodeOf(err) == apperror.CodeLedgerApplyFailed {
			s.ledgerFailed(ctx, transferID, err)
		}
		return nil, err
	}
	if !changed {
		return t, nil
	}

	s.audit("Confirm", t, actor)
	s.emit(ctx, emitter.EventTransferCompleted, t, "")

	// a failure leaves ReferralPending set and the payouts job queues it later
	if err := s.ledger.QueueReferralIncome(ctx, t); err != nil {
		s.logger.Error("[TransferService][Confirm] referral income not queued, left for the payouts job", map[string]string{
			"transfer_id": uintStr(t.ID),
			"error":       err.Error(),
		})
	}
	return t, nil
}

// Cancel ends a non-terminal transfer with a required note and releases a
// withdrawal's reservation.
func (s *Service) Cancel(ctx context.Context, transferID uint, note string, actor Actor) (*model.Transfer, error) {
	note = strings.TrimSpace(note)

	t, changed, err := s.transition(ctx, transferID, "Cancel", func(tx *gorm.DB, t *model.Transfer) error {
		if note == "" {
			return apperror.Newf(apperror.CodeReasonRequired, "transfer %d", t.ID)
		}

		now := s.now()
		t.Status = model.TransferStatusCanceled
		t.Note = &note
		t.NextCheckAt = nil
		t.EndedAt = &now

		if t.Type == model.TransferTypeWithdrawal {
			if _, err := s.ledger.Release(tx, t); err != nil {
				return errors.Wrap(err, "release reservation")
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return t, nil
	}

	if t.TxID != nil {
		// the chain transaction, if real, is not reversed by canceling here
		s.logger.Warn("[TransferService][Cancel] canceled transfer carries a chain transaction", map[string]string{
			"transfer_id": uintStr(t.ID),
			"type":        string(t.Type),
			"tx_id":       t.TxIDValue(),
		})
	}
	s.audit("Cancel", t, actor)
	s.emit(ctx, emitter.EventTransferCanceled, t, note)
	return t, nil
}

// Flag holds a transfer for manual review and stops automatic rechecks.
func (s *Service) Flag(ctx context.Context, transferID uint, reason string) (*model.Transfer, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperror.Newf(apperror.CodeInvalidInput, "review reason is required")
	}

	t, changed, err := s.transition(ctx, transferID, "Flag", func(tx *gorm.DB, t *model.Transfer) error {
		if t.NeedsReview && t.ReviewReason != nil && *t.ReviewReason == reason {
			return errNoChange
		}
		t.NeedsReview = true
		t.ReviewReason = &reason
		t.NextCheckAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logger.Warn("[TransferService][Flag] transfer needs manual review", map[string]string{
			"transfer_id": uintStr(t.ID),
			"reason":      reason,
		})
		s.emit(ctx, emitter.EventTransferNeedsReview, t, reason)
		s.alerter.Notify(ctx, string(emitter.EventTransferNeedsReview), webhook.SeverityWarning, alertFields(t, reason))
	}
	return t, nil
}

func (s *Service) ScheduleRecheck(ctx context.Context, transferID uint, txID string, next time.Time, countAttempt bool) (*model.Transfer, error) {
	t, _, err := s.transition(ctx, transferID, "ScheduleRecheck", func(tx *gorm.DB, t *model.Transfer) error {
		if t.TxIDValue() != txID {
			return apperror.Newf(apperror.CodeInvalidTransition, "transfer %d now carries another transaction hash", t.ID)
		}
		if countAttempt {
			t.CheckAttempts++
		}
		t.NextCheckAt = &next
		return nil
	})
	return t, err
}

func (s *Service) Get(ctx context.Context, transferID uint) (*model.Transfer, error) {
	t, err := s.store.Transfer.GetByID(s.repo.DB(ctx), transferID)
	if err != nil {
		return nil, notFoundOr(err, transferID)
	}
	return t, nil
}

// GetForUser hides transfers the user does not own behind NotFound.
func (s *Service) GetForUser(ctx context.Context, userID, transferID uint) (*model.Transfer, error) {
	t, err := s.Get(ctx, transferID)
	if err != nil {
		return nil, err
	}
	if t.UserID != userID {
		return nil, apperror.Newf(apperror.CodeNotFound, "transfer %d", transferID)
	}
	return t, nil
}

func (s *Service) List(ctx context.Context, filter model.TransferFilter) ([]*model.Transfer, int64, error) {
	transfers, total, err := s.store.Transfer.List(s.repo.DB(ctx), filter)
	if err != nil {
		return nil, 0, errors.Wrap(err, "list transfers")
	}
	return transfers, total, nil
}

// transition is the single write path for transfers. It locks the row, lets
// apply edit a copy, and writes the copy back with a compare-and-swap on the
// status and version it read. A terminal row is returned as is.
func (s *Service) transition(ctx context.Context, id uint, op string, apply func(tx *gorm.DB, t *model.Transfer) error) (*model.Transfer, bool, error) {
	var current, next *model.Transfer

	err := s.repo.DoInTx(ctx, func(tx *gorm.DB) error {
		var err error
		current, err = s.store.Transfer.GetForUpdate(tx, id)
		if err != nil {
			return notFoundOr(err, id)
		}
		if current.Status.IsTerminal() {
			return apperror.Newf(apperror.CodeAlreadyTerminal, "transfer %d is %s", id, current.Status)
		}

		candidate := *current
		if err := apply(tx, &candidate); err != nil {
			return err
		}

		ok, err := s.store.Transfer.Update(tx, &candidate, current.Status, current.Version)
		if err != nil {
			return errors.Wrap(err, "update transfer")
		}
		if !ok {
			return apperror.Newf(apperror.CodeInvalidTransition, "transfer %d changed concurrently", id)
		}
		next = &candidate
		return nil
	})

	switch {
	case err == nil:
		s.metrics.RecordTransition(string(next.Type), string(current.Status), string(next.Status), "ok")
		return next, true, nil

	case errors.Is(err, errNoChange):
		return current, false, nil

	case apperror.CodeOf(err) == apperror.CodeAlreadyTerminal:
		s.logger.Debug("[TransferService]["+op+"] transfer already terminal", map[string]string{
			"transfer_id": uintStr(id),
			"status":      string(current.Status),
		})
		s.metrics.RecordTransition(string(current.Type), string(current.Status), string(current.Status), "terminal")
		return current, false, nil

	default:
		if current != nil {
			s.metrics.RecordTransition(string(current.Type), string(current.Status), "", string(apperror.CodeOf(err)))
		}
		return nil, false, err
	}
}

// checkTxID normalizes txID and makes sure no other live transfer on the
// network carries it.
func (s *Service) checkTxID(tx *gorm.DB, t *model.Transfer, txID string) (string, error) {
	if strings.TrimSpace(txID) == "" {
		return "", apperror.Newf(apperror.CodeTxRequired, "transfer %d", t.ID)
	}
	hash, err := verifier.NormalizeTxID(txID)
	if err != nil {
		return "", apperror.Wrap(err, apperror.CodeInvalidTxID, txID)
	}

	other, err := s.store.Transfer.FindActiveByTxID(tx, t.NetworkID, hash, t.ID)
	if err == nil {
		return "", apperror.Newf(apperror.CodeTxAlreadyUsed, "hash %s is on transfer %d", hash, other.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", errors.Wrap(err, "check transaction hash")
	}
	return hash, nil
}

func (s *Service) created(ctx context.Context, t *model.Transfer) {
	s.metrics.RecordTransition(string(t.Type), "", string(t.Status), "ok")
	s.logger.Info("[TransferService][Create] transfer created", map[string]string{
		"transfer_id":     uintStr(t.ID),
		"user_id":         uintStr(t.UserID),
		"type":            string(t.Type),
		"amount":          t.Amount.String(),
		"currency_amount": t.CurrencyAmount.String(),
		"fixed_rate_id":   uintStr(t.FixedRateID),
	})
	s.emit(ctx, emitter.EventTransferCreated, t, "")
}

func (s *Service) ledgerFailed(ctx context.Context, transferID uint, cause error) {
	fields := map[string]string{
		"transfer_id": uintStr(transferID),
		"error":       cause.Error(),
	}
	s.logger.Error("[TransferService][Confirm] ledger apply failed, transfer left processed", fields)
	s.alerter.Notify(ctx, string(emitter.EventLedgerApplyFailed), webhook.SeverityCritical, fields)

	if t, err := s.Get(ctx, transferID); err == nil {
		s.emit(ctx, emitter.EventLedgerApplyFailed, t, string(apperror.CodeLedgerApplyFailed))
	}
}

func (s *Service) emit(ctx context.Context, eventType emitter.EventType, t *model.Transfer, reason string) {
	if s.emitter == nil {
		return
	}
	if err := s.emitter.Emit(ctx, emitter.NewTransferEvent(eventType, t, reason)); err != nil {
		s.logger.Warn("[TransferService][Emit] event not published", map[string]string{
			"type":        string(eventType),
			"transfer_id": uintStr(t.ID),
			"error":       err.Error(),
		})
	}
}

func (s *Service) audit(op string, t *model.Transfer, actor Actor) {
	s.logger.Info("[TransferService]["+op+"] "+string(t.Status), map[string]string{
		"transfer_id": uintStr(t.ID),
		"type":        string(t.Type),
		"tx_id":       t.TxIDValue(),
		"actor":       actor.String(),
	})
}

func newTransfer(userID uint, kind model.TransferType, quote *oracle.Quote) *model.Transfer {
	return &model.Transfer{
		UserID:         userID,
		NetworkID:      quote.Network.ID,
		CurrencyID:     quote.Network.CurrencyID,
		FixedRateID:    quote.FixedRate.ID,
		Amount:         quote.Amount,
		CurrencyAmount: quote.CurrencyAmount,
		Type:           kind,
		Status:         model.TransferStatusPending,
	}
}

func invalidTransition(t *model.Transfer, action string) error {
	return apperror.Newf(apperror.CodeInvalidTransition, "cannot %s a %s %s", action, t.Status, t.Type)
}

func notFoundOr(err error, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Newf(apperror.CodeNotFound, "transfer %d", id)
	}
	return errors.Wrap(err, "load transfer")
}

func alertFields(t *model.Transfer, reason string) map[string]string {
	return map[string]string{
		"transfer_id": uintStr(t.ID),
		"user_id":     uintStr(t.UserID),
		"type":        string(t.Type),
		"tx_id":       t.TxIDValue(),
		"reason":      reason,
	}
}

func uintStr(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
