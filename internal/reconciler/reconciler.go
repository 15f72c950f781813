package reconciler

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/locker"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	"github.com/dwarvesf/custody-backend/internal/store"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/verifier"
)

type Outcome string

const (
	OutcomeCompleted             Outcome = "completed"
	OutcomeProcessed             Outcome = "processed"
	OutcomeAwaitingConfirmations Outcome = "awaiting_confirmations"
	OutcomeRetryScheduled        Outcome = "retry_scheduled"
	OutcomeNeedsReview           Outcome = "needs_review"
	OutcomeNoop                  Outcome = "noop"
)

type Reconciler struct {
	repo         store.DBRepo
	store        *store.Store
	transfers    transfer.IService
	verifier     verifier.IVerifier
	locker       locker.ILocker
	logger       *logger.Logger
	metrics      *monitoring.BusinessMetricsRecorder
	maxAttempts  int
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	lockTTL      time.Duration
	autoComplete bool
	deadline     time.Duration
	now          func() time.Time
}

type Option func(*Reconciler)

func WithMetrics(metrics *monitoring.BusinessMetricsRecorder) Option {
	return func(r *Reconciler) { r.metrics = metrics }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(
	repo store.DBRepo,
	store *store.Store,
	transfers transfer.IService,
	verifier verifier.IVerifier,
	locker locker.ILocker,
	appConfig *config.AppConfig,
	logger *logger.Logger,
	opts ...Option,
) *Reconciler {
	cfg := appConfig.Reconcile
	r := &Reconciler{
		repo:         repo,
		store:        store,
		transfers:    transfers,
		verifier:     verifier,
		locker:       locker,
		logger:       logger,
		maxAttempts:  cfg.MaxAttempts,
		baseBackoff:  cfg.BaseBackoff,
		maxBackoff:   cfg.MaxBackoff,
		lockTTL:      2 * cfg.JobTimeout,
		autoComplete: cfg.AutoComplete,
		deadline:     cfg.ConfirmationDeadline,
		now:          time.Now,
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = 1
	}
	if r.lockTTL <= 0 {
		r.lockTTL = time.Minute
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile checks one transfer's transaction against the chain and moves
// it as far as the evidence allows. An empty txID means the hash the
// transfer currently carries. Running it again for the same pair never
// applies a second ledger effect.
func (r *Reconciler) Reconcile(ctx context.Context, transferID uint, txID string) (outcome Outcome, err error) {
	start := time.Now()
	var kind model.TransferType
	defer func() {
		label := string(outcome)
		if err != nil {
			label = "error"
		}
		r.metrics.RecordReconciliation(string(kind), label, time.Since(start).Seconds())
	}()

	release, err := r.locker.TryLock(ctx, lockKey(transferID), r.lockTTL)
	if errors.Is(err, locker.ErrLocked) {
		return OutcomeNoop, nil
	}
	if err != nil {
		return "", err
	}
	defer release()

	// reload under the lock; a cancel or completion since scheduling wins
	t, err := r.transfers.Get(ctx, transferID)
	if err != nil {
		return "", err
	}
	kind = t.Type
	if t.Status.IsTerminal() {
		return OutcomeNoop, nil
	}
	if txID == "" {
		txID = t.TxIDValue()
	}
	if txID == "" {
		return "", apperror.Newf(apperror.CodeTxRequired, "transfer %d has no transaction hash", t.ID)
	}
	if t.TxIDValue() != txID {
		r.logger.Debug("[Reconciler][Reconcile] stale job, transfer carries another hash", map[string]string{
			"transfer_id": uintStr(t.ID),
			"job_tx_id":   txID,
			"tx_id":       t.TxIDValue(),
		})
		return OutcomeNoop, nil
	}

	network, err := r.store.Network.GetByID(r.repo.DB(ctx), t.NetworkID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperror.Newf(apperror.CodeNotFound, "network %d", t.NetworkID)
	}
	if err != nil {
		return "", errors.Wrap(err, "get network")
	}

	evidence, err := r.verifier.Fetch(ctx, txID)
	if err != nil {
		if isRetryable(err) {
			return r.retry(ctx, t, err)
		}
		return r.hold(ctx, t, txID, err)
	}

	verr := r.verifier.Validate(evidence, verifier.ExpectationFor(t, network))
	switch {
	case verr == nil:
		return r.advance(ctx, t, txID)

	case onlyConfirmationsMissing(verr):
		processed, err := r.transfers.MarkProcessed(ctx, t.ID, txID, "")
		if err != nil {
			return "", err
		}
		if r.confirmationsOverdue(processed) {
			reason := string(apperror.CodeInsufficientConfirmations) + " past " + r.deadline.String()
			r.logger.Warn("[Reconciler][Reconcile] confirmations overdue, holding for review", map[string]string{
				"transfer_id":   uintStr(t.ID),
				"tx_id":         txID,
				"confirmations": strconv.FormatInt(evidence.Confirmations, 10),
				"required":      strconv.Itoa(network.MinConfirmations),
			})
			if _, err := r.transfers.MarkProcessed(ctx, t.ID, txID, reason); err != nil {
				return "", err
			}
			return OutcomeNeedsReview, nil
		}
		if _, err := r.transfers.ScheduleRecheck(ctx, t.ID, txID, r.now().Add(r.baseBackoff), false); err != nil {
			return "", err
		}
		r.logger.Info("[Reconciler][Reconcile] matched, waiting for confirmations", map[string]string{
			"transfer_id":   uintStr(t.ID),
			"confirmations": strconv.FormatInt(evidence.Confirmations, 10),
			"required":      strconv.Itoa(network.MinConfirmations),
		})
		return OutcomeAwaitingConfirmations, nil

	default:
		return r.hold(ctx, t, txID, verr)
	}
}

// Recheck is the operator re-run. It ignores review holds and schedules.
func (r *Reconciler) Recheck(ctx context.Context, transferID uint) (Outcome, error) {
	return r.Reconcile(ctx, transferID, "")
}

// RetryDelay is the wait before check number attempt+1: base doubling per
// attempt, capped at max.
func (r *Reconciler) RetryDelay(attempt int) time.Duration {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     r.baseBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         r.maxBackoff,
	}
	b.Reset()

	delay := r.baseBackoff
	for i := 0; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func (r *Reconciler) advance(ctx context.Context, t *model.Transfer, txID string) (Outcome, error) {
	if _, err := r.transfers.MarkProcessed(ctx, t.ID, txID, ""); err != nil {
		return "", err
	}
	if !r.autoComplete {
		return OutcomeProcessed, nil
	}

	done, err := r.transfers.Confirm(ctx, t.ID, transfer.System)
	if err != nil {
		return "", err
	}
	if done.Status != model.TransferStatusCompleted {
		return OutcomeNoop, nil
	}
	r.logger.Info("[Reconciler][Reconcile] transfer completed", map[string]string{
		"transfer_id": uintStr(t.ID),
		"tx_id":       txID,
	})
	return OutcomeCompleted, nil
}

// hold parks the transfer in processed for an operator. Mismatches may be an
// underpayment, so nothing is canceled automatically.
func (r *Reconciler) hold(ctx context.Context, t *model.Transfer, txID string, cause error) (Outcome, error) {
	reason := reviewReason(cause)
	r.logger.Warn("[Reconciler][Reconcile] verification failed, holding for review", map[string]string{
		"transfer_id": uintStr(t.ID),
		"tx_id":       txID,
		"reason":      reason,
		"detail":      cause.Error(),
	})
	if _, err := r.transfers.MarkProcessed(ctx, t.ID, txID, reason); err != nil {
		return "", err
	}
	return OutcomeNeedsReview, nil
}

func (r *Reconciler) retry(ctx context.Context, t *model.Transfer, cause error) (Outcome, error) {
	attempt := t.CheckAttempts + 1
	fields := map[string]string{
		"transfer_id": uintStr(t.ID),
		"tx_id":       t.TxIDValue(),
		"attempt":     strconv.Itoa(attempt),
		"error":       cause.Error(),
	}

	if attempt >= r.maxAttempts {
		if _, err := r.transfers.ScheduleRecheck(ctx, t.ID, t.TxIDValue(), r.now(), true); err != nil {
			return "", err
		}
		reason := "retries exhausted: " + reviewReason(cause)
		if _, err := r.transfers.Flag(ctx, t.ID, reason); err != nil {
			return "", err
		}
		r.logger.Error("[Reconciler][Reconcile] retries exhausted, needs manual review", fields)
		return OutcomeNeedsReview, nil
	}

	next := r.now().Add(r.RetryDelay(attempt))
	if _, err := r.transfers.ScheduleRecheck(ctx, t.ID, t.TxIDValue(), next, true); err != nil {
		return "", err
	}
	fields["next_check_at"] = next.Format(time.RFC3339)
	r.logger.Info("[Reconciler][Reconcile] chain not ready, retry scheduled", fields)
	return OutcomeRetryScheduled, nil
}

func (r *Reconciler) confirmationsOverdue(t *model.Transfer) bool {
	if r.deadline <= 0 || t.ProcessedAt == nil {
		return false
	}
	return r.now().Sub(*t.ProcessedAt) >= r.deadline
}

// isRetryable treats every error without a taxonomy code as transient too.
func isRetryable(err error) bool {
	return apperror.CodeOf(err) == "" || apperror.IsRetryable(err)
}

func onlyConfirmationsMissing(err error) bool {
	codes := apperror.Codes(err)
	return len(codes) == 1 && codes[0] == apperror.CodeInsufficientConfirmations
}

func reviewReason(err error) string {
	var labels []string
	for _, code := range apperror.Codes(err) {
		labels = append(labels, string(code))
	}
	if len(labels) == 0 {
		return "verification failed"
	}
	return strings.Join(labels, ",")
}

func lockKey(transferID uint) string {
	return "reconcile:" + uintStr(transferID)
}

func uintStr(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
