package transfer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/emitter"
	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/store/storetest"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/types/environments"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/utils/webhook"
)

const (
	userID  = 7
	adminID = 1
)

var (
	txA = strings.Repeat("a1", 32)
	txB = strings.Repeat("b2", 32)
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var _ = Describe("TransferService", func() {
	var (
		ctx        context.Context
		fake       *storetest.Fake
		market     storetest.Market
		now        time.Time
		events     *recordingEmitter
		alerts     *alertSink
		accountant *ledger.Accountant
		service    *transfer.Service
	)

	clock := func() time.Time { return now }

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
		fake = storetest.New()
		market = fake.SeedMarket("2.0", now, 30*time.Second)
		events = &recordingEmitter{}
		alerts = newAlertSink()
		DeferCleanup(alerts.Close)

		log := logger.New(environments.Test)
		cfg := &config.AppConfig{
			Rate:     config.RateConfig{TTL: 30 * time.Second},
			Referral: config.ReferralConfig{Levels: "5,3,1"},
		}
		rates := oracle.New(fake, fake.Store(), cfg, log, nil, oracle.WithClock(clock))
		calculator := oracle.NewCalculator(fake, fake.Store(), rates)
		accountant = ledger.New(fake, fake.Store(), cfg, log)

		service = transfer.New(fake, fake.Store(), calculator, accountant, events, log,
			transfer.WithClock(clock),
			transfer.WithAlerter(webhook.New(alerts.server.URL, log)),
		)
	})

	createDeposit := func() *model.Transfer {
		t, err := service.CreateDeposit(ctx, transfer.CreateDepositRequest{
			UserID:      userID,
			FixedRateID: market.Rate.ID,
			Amount:      d("100"),
		})
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	processedDeposit := func() *model.Transfer {
		t := createDeposit()
		_, err := service.SubmitTxID(ctx, userID, t.ID, txA)
		Expect(err).NotTo(HaveOccurred())
		t, err = service.MarkProcessed(ctx, t.ID, txA, "")
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	createWithdrawal := func(amount string) (*model.Transfer, error) {
		return service.CreateWithdrawal(ctx, transfer.CreateWithdrawalRequest{
			UserID:            userID,
			FixedRateID:       market.Rate.ID,
			Amount:            d(amount),
			WithdrawalAddress: storetest.TronAddress(50),
		})
	}

	Describe("CreateDeposit", func() {
		It("creates a pending transfer priced by the locked rate", func() {
			t := createDeposit()

			Expect(t.ID).NotTo(BeZero())
			Expect(t.Status).To(Equal(model.TransferStatusPending))
			Expect(t.Type).To(Equal(model.TransferTypeDeposit))
			Expect(t.Amount.Equal(d("100"))).To(BeTrue())
			Expect(t.CurrencyAmount.Equal(d("50"))).To(BeTrue())
			Expect(t.FixedRateID).To(Equal(market.Rate.ID))
			Expect(t.NetworkID).To(Equal(market.Network.ID))
			Expect(fake.Transfer(t.ID).Status).To(Equal(model.TransferStatusPending))
			Expect(events.Types()).To(Equal([]emitter.EventType{emitter.EventTransferCreated}))
		})

		It("rejects an expired rate", func() {
			now = now.Add(30 * time.Second)

			_, err := service.CreateDeposit(ctx, transfer.CreateDepositRequest{
				UserID: userID, FixedRateID: market.Rate.ID, Amount: d("100"),
			})
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeRateExpired))
		})

		It("requires a sender address when the currency asks for one", func() {
			strict := fake.AddCurrency(model.Currency{Symbol: "USDC", Decimals: 6, SenderAddressRequired: true, PriceSourceID: "usd-coin"})
			network := fake.AddNetwork(model.Network{Code: "USDC-TRC20", CurrencyID: strict.ID, DepositAddress: storetest.TronAddress(120), IsActive: true})
			rate := fake.PutFixedRate(model.FixedRate{NetworkID: network.ID, Rate: d("1"), CreatedAt: now, EndedAt: now.Add(time.Minute)})

			_, err := service.CreateDeposit(ctx, transfer.CreateDepositRequest{UserID: userID, FixedRateID: rate.ID, Amount: d("10")})
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeSenderAddressRequired))

			_, err = service.CreateDeposit(ctx, transfer.CreateDepositRequest{UserID: userID, FixedRateID: rate.ID, Amount: d("10"), FromAddress: "nope"})
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidInput))

			t, err := service.CreateDeposit(ctx, transfer.CreateDepositRequest{
				UserID: userID, FixedRateID: rate.ID, Amount: d("10"), FromAddress: storetest.TronAddress(60),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(*t.FromAddress).To(Equal(storetest.TronAddress(60)))
		})
	})

	Describe("CreateWithdrawal", func() {
		It("reserves the amount with the transfer", func() {
			fake.SetBalance(userID, d("150"))

			t, err := createWithdrawal("100")
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Status).To(Equal(model.TransferStatusPending))
			Expect(*t.WithdrawalAddress).To(Equal(storetest.TronAddress(50)))

			balance := fake.Balance(userID)
			Expect(balance.Balance.Equal(d("50"))).To(BeTrue())
			Expect(balance.Reserved.Equal(d("100"))).To(BeTrue())
		})

		It("creates nothing when the balance is short", func() {
			fake.SetBalance(userID, d("99"))

			_, err := createWithdrawal("100")
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInsufficientBalance))

			list, total, err := service.List(ctx, model.TransferFilter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(BeEmpty())
			Expect(total).To(BeZero())
			Expect(fake.Balance(userID).Balance.Equal(d("99"))).To(BeTrue())
		})

		It("validates the destination address", func() {
			fake.SetBalance(userID, d("150"))
			for _, address := range []string{"", "T-not-an-address"} {
				_, err := service.CreateWithdrawal(ctx, transfer.CreateWithdrawalRequest{
					UserID: userID, FixedRateID: market.Rate.ID, Amount: d("10"), WithdrawalAddress: address,
				})
				Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidInput))
			}
		})
	})

	Describe("SubmitTxID", func() {
		It("attaches a normalized hash", func() {
			t := createDeposit()

			t, err := service.SubmitTxID(ctx, userID, t.ID, "0x"+strings.ToUpper(txA))
			Expect(err).NotTo(HaveOccurred())
			Expect(t.TxIDValue()).To(Equal(txA))
			Expect(t.Status).To(Equal(model.TransferStatusPending))
		})

		It("rejects missing, malformed and reused hashes", func() {
			first := createDeposit()
			second := createDeposit()
			_, err := service.SubmitTxID(ctx, userID, first.ID, txA)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.SubmitTxID(ctx, userID, second.ID, "  ")
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeTxRequired))

			_, err = service.SubmitTxID(ctx, userID, second.ID, "xyz")
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidTxID))

			_, err = service.SubmitTxID(ctx, userID, second.ID, txA)
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeTxAlreadyUsed))
		})

		It("hides other users' transfers", func() {
			t := createDeposit()
			_, err := service.SubmitTxID(ctx, userID+1, t.ID, txA)
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeNotFound))
		})
	})

	Describe("Process", func() {
		It("requires the payout hash for a withdrawal", func() {
			fake.SetBalance(userID, d("150"))
			w, err := createWithdrawal("100")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Process(ctx, w.ID, "", transfer.Admin(adminID))
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeTxRequired))
			Expect(fake.Transfer(w.ID).Status).To(Equal(model.TransferStatusPending))

			w, err = service.Process(ctx, w.ID, txB, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(w.Status).To(Equal(model.TransferStatusProcessed))
			Expect(w.TxIDValue()).To(Equal(txB))

			again, err := service.Process(ctx, w.ID, txB, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Version).To(Equal(w.Version))
		})

		It("acknowledges a deposit carrying a submitted hash", func() {
			t := createDeposit()
			_, err := service.Process(ctx, t.ID, "", transfer.Admin(adminID))
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeTxRequired))

			_, err = service.SubmitTxID(ctx, userID, t.ID, txA)
			Expect(err).NotTo(HaveOccurred())
			t, err = service.Process(ctx, t.ID, "", transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(t.Status).To(Equal(model.TransferStatusProcessed))
			Expect(t.ProcessedAt).NotTo(BeNil())
			Expect(*t.ProcessedAt).To(Equal(now))
		})
	})

	Describe("Confirm", func() {
		It("refuses to complete a pending transfer", func() {
			t := createDeposit()
			_, err := service.Confirm(ctx, t.ID, transfer.Admin(adminID))
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidTransition))
		})

		It("completes and credits exactly once", func() {
			t := processedDeposit()

			done, err := service.Confirm(ctx, t.ID, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(model.TransferStatusCompleted))
			Expect(done.CompletedAt).NotTo(BeNil())

			again, err := service.Confirm(ctx, t.ID, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Status).To(Equal(model.TransferStatusCompleted))
			Expect(again.Version).To(Equal(done.Version))

			Expect(fake.Balance(userID).Balance.Equal(d("100"))).To(BeTrue())
			Expect(fake.LedgerEntries()).To(HaveLen(1))
		})

		It("credits once under concurrent confirms", func() {
			t := processedDeposit()

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					got, err := service.Confirm(ctx, t.ID, transfer.System)
					Expect(err).NotTo(HaveOccurred())
					Expect(got.Status).To(Equal(model.TransferStatusCompleted))
				}()
			}
			wg.Wait()

			Expect(fake.Balance(userID).Balance.Equal(d("100"))).To(BeTrue())
			Expect(fake.LedgerEntries()).To(HaveLen(1))
		})

		It("queues referral income after completing a deposit", func() {
			fake.AddReferral(userID, 8)
			t := processedDeposit()

			_, err := service.Confirm(ctx, t.ID, transfer.System)
			Expect(err).NotTo(HaveOccurred())
			Expect(fake.Transfer(t.ID).ReferralPending).To(BeFalse())

			payouts := fake.Payouts()
			Expect(payouts).To(HaveLen(1))
			Expect(payouts[0].BeneficiaryID).To(Equal(uint(8)))
			Expect(payouts[0].Amount.Equal(d("5"))).To(BeTrue())
		})

		It("keeps the transfer completed when referral queuing fails", func() {
			fake.AddReferral(userID, 8)
			fake.FailOn("referral.CreatePayout", errors.New("db down"))
			t := processedDeposit()

			done, err := service.Confirm(ctx, t.ID, transfer.System)
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(model.TransferStatusCompleted))
			Expect(fake.Balance(userID).Balance.Equal(d("100"))).To(BeTrue())
			Expect(fake.Transfer(t.ID).ReferralPending).To(BeTrue())
			Expect(fake.Payouts()).To(BeEmpty())

			// the payouts job picks the deposit up once the store recovers
			fake.ClearFailures()
			requeued, err := accountant.RequeueReferralIncome(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(requeued).To(Equal(1))
			paid, err := accountant.PayPendingReferrals(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(paid).To(Equal(1))

			Expect(fake.Transfer(t.ID).ReferralPending).To(BeFalse())
			Expect(fake.Balance(8).Income.Equal(d("5"))).To(BeTrue())
		})

		It("leaves the transfer processed and alerts when the ledger fails", func() {
			t := processedDeposit()
			fake.FailOn("ledgerentry.Create", errors.New("constraint violation"))

			_, err := service.Confirm(ctx, t.ID, transfer.System)
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeLedgerApplyFailed))

			stored := fake.Transfer(t.ID)
			Expect(stored.Status).To(Equal(model.TransferStatusProcessed))
			Expect(stored.CompletedAt).To(BeNil())
			Expect(fake.Balance(userID).Balance.IsZero()).To(BeTrue())
			Expect(alerts.Events()).To(ContainElement(string(emitter.EventLedgerApplyFailed)))
			Expect(events.Types()).To(ContainElement(emitter.EventLedgerApplyFailed))

			// an operator re-run succeeds once the cause is gone
			fake.ClearFailures()
			done, err := service.Confirm(ctx, t.ID, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(done.Status).To(Equal(model.TransferStatusCompleted))
			Expect(fake.Balance(userID).Balance.Equal(d("100"))).To(BeTrue())
		})

		It("debits a withdrawal's reservation", func() {
			fake.SetBalance(userID, d("150"))
			w, err := createWithdrawal("100")
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Process(ctx, w.ID, txB, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Confirm(ctx, w.ID, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())

			balance := fake.Balance(userID)
			Expect(balance.Balance.Equal(d("50"))).To(BeTrue())
			Expect(balance.Reserved.IsZero()).To(BeTrue())
		})
	})

	Describe("review holds", func() {
		It("blocks automatic completion until an admin confirms", func() {
			t := createDeposit()
			_, err := service.SubmitTxID(ctx, userID, t.ID, txA)
			Expect(err).NotTo(HaveOccurred())

			held, err := service.MarkProcessed(ctx, t.ID, txA, "AddressMismatch")
			Expect(err).NotTo(HaveOccurred())
			Expect(held.Status).To(Equal(model.TransferStatusProcessed))
			Expect(held.NeedsReview).To(BeTrue())
			Expect(*held.ReviewReason).To(Equal("AddressMismatch"))
			Expect(alerts.Events()).To(ContainElement(string(emitter.EventTransferNeedsReview)))

			_, err = service.Confirm(ctx, t.ID, transfer.System)
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidTransition))
			Expect(fake.Balance(userID).Balance.IsZero()).To(BeTrue())

			done, err := service.Confirm(ctx, t.ID, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(done.NeedsReview).To(BeFalse())
			Expect(fake.Balance(userID).Balance.Equal(d("100"))).To(BeTrue())
		})

		It("ignores results for a hash the transfer no longer carries", func() {
			t := createDeposit()
			_, err := service.SubmitTxID(ctx, userID, t.ID, txA)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SubmitTxID(ctx, userID, t.ID, txB)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.MarkProcessed(ctx, t.ID, txA, "")
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidTransition))
			Expect(fake.Transfer(t.ID).Status).To(Equal(model.TransferStatusPending))
		})

		It("flags with a reason", func() {
			t := createDeposit()

			_, err := service.Flag(ctx, t.ID, " ")
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidInput))

			flagged, err := service.Flag(ctx, t.ID, "retries exhausted")
			Expect(err).NotTo(HaveOccurred())
			Expect(flagged.NeedsReview).To(BeTrue())
			Expect(flagged.Status).To(Equal(model.TransferStatusPending))
		})

		It("lifts a hold when the user submits a different hash", func() {
			t := createDeposit()
			_, err := service.SubmitTxID(ctx, userID, t.ID, txA)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Flag(ctx, t.ID, "retries exhausted")
			Expect(err).NotTo(HaveOccurred())

			due, err := fake.Store().Transfer.ListDue(nil, now, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(due).To(BeEmpty())

			// resubmitting the same hash keeps the hold
			same, err := service.SubmitTxID(ctx, userID, t.ID, txA)
			Expect(err).NotTo(HaveOccurred())
			Expect(same.NeedsReview).To(BeTrue())

			fixed, err := service.SubmitTxID(ctx, userID, t.ID, txB)
			Expect(err).NotTo(HaveOccurred())
			Expect(fixed.NeedsReview).To(BeFalse())
			Expect(fixed.ReviewReason).To(BeNil())
			Expect(fixed.CheckAttempts).To(BeZero())

			due, err = fake.Store().Transfer.ListDue(nil, now, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(due).To(HaveLen(1))
			Expect(due[0].ID).To(Equal(t.ID))
		})
	})

	Describe("ScheduleRecheck", func() {
		It("counts attempts and sets the next check", func() {
			t := createDeposit()
			_, err := service.SubmitTxID(ctx, userID, t.ID, txA)
			Expect(err).NotTo(HaveOccurred())

			next := now.Add(time.Minute)
			t, err = service.ScheduleRecheck(ctx, t.ID, txA, next, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.CheckAttempts).To(Equal(1))
			Expect(*t.NextCheckAt).To(Equal(next))

			t, err = service.ScheduleRecheck(ctx, t.ID, txA, next, false)
			Expect(err).NotTo(HaveOccurred())
			Expect(t.CheckAttempts).To(Equal(1))
		})
	})

	Describe("Cancel", func() {
		It("requires a note, then becomes terminal", func() {
			fake.SetBalance(userID, d("150"))
			w, err := createWithdrawal("100")
			Expect(err).NotTo(HaveOccurred())

			_, err = service.Cancel(ctx, w.ID, "", transfer.Admin(adminID))
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeReasonRequired))
			Expect(fake.Transfer(w.ID).Status).To(Equal(model.TransferStatusPending))

			canceled, err := service.Cancel(ctx, w.ID, "user asked", transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(canceled.Status).To(Equal(model.TransferStatusCanceled))
			Expect(*canceled.Note).To(Equal("user asked"))

			balance := fake.Balance(userID)
			Expect(balance.Balance.Equal(d("150"))).To(BeTrue())
			Expect(balance.Reserved.IsZero()).To(BeTrue())
		})

		It("only marks a matched deposit", func() {
			t := processedDeposit()

			canceled, err := service.Cancel(ctx, t.ID, "duplicate submission", transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
			Expect(canceled.Status).To(Equal(model.TransferStatusCanceled))
			Expect(canceled.TxIDValue()).To(Equal(txA))
			Expect(fake.Balance(userID).Balance.IsZero()).To(BeTrue())
		})
	})

	Describe("terminal transfers", func() {
		var (
			completed *model.Transfer
			canceled  *model.Transfer
		)

		BeforeEach(func() {
			var err error
			completed, err = service.Confirm(ctx, processedDeposit().ID, transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())

			canceled, err = service.Cancel(ctx, createDeposit().ID, "abandoned", transfer.Admin(adminID))
			Expect(err).NotTo(HaveOccurred())
		})

		DescribeTable("return the current state without error or ledger effect",
			func(op func(id uint) (*model.Transfer, error)) {
				entries := len(fake.LedgerEntries())
				balance := fake.Balance(userID).Balance

				for _, t := range []*model.Transfer{completed, canceled} {
					got, err := op(t.ID)
					Expect(err).NotTo(HaveOccurred())
					Expect(got.Status).To(Equal(t.Status))
					Expect(got.Version).To(Equal(t.Version))
					Expect(fake.Transfer(t.ID).Version).To(Equal(t.Version))
				}

				Expect(fake.LedgerEntries()).To(HaveLen(entries))
				Expect(fake.Balance(userID).Balance.Equal(balance)).To(BeTrue())
			},
			Entry("confirm", func(id uint) (*model.Transfer, error) {
				return service.Confirm(ctx, id, transfer.Admin(adminID))
			}),
			Entry("cancel without note", func(id uint) (*model.Transfer, error) {
				return service.Cancel(ctx, id, "", transfer.Admin(adminID))
			}),
			Entry("cancel with note", func(id uint) (*model.Transfer, error) {
				return service.Cancel(ctx, id, "again", transfer.Admin(adminID))
			}),
			Entry("process", func(id uint) (*model.Transfer, error) {
				return service.Process(ctx, id, txB, transfer.Admin(adminID))
			}),
			Entry("mark processed", func(id uint) (*model.Transfer, error) {
				return service.MarkProcessed(ctx, id, txA, "")
			}),
			Entry("flag", func(id uint) (*model.Transfer, error) {
				return service.Flag(ctx, id, "late mismatch")
			}),
			Entry("submit tx", func(id uint) (*model.Transfer, error) {
				return service.SubmitTxID(ctx, userID, id, txB)
			}),
		)
	})

	Describe("List", func() {
		It("filters by owner and status", func() {
			createDeposit()
			processedDeposit()
			_, err := service.CreateDeposit(ctx, transfer.CreateDepositRequest{UserID: userID + 1, FixedRateID: market.Rate.ID, Amount: d("5")})
			Expect(err).NotTo(HaveOccurred())

			owner := uint(userID)
			mine, total, err := service.List(ctx, model.TransferFilter{UserID: &owner})
			Expect(err).NotTo(HaveOccurred())
			Expect(mine).To(HaveLen(2))
			Expect(total).To(Equal(int64(2)))

			processed, _, err := service.List(ctx, model.TransferFilter{Status: model.TransferStatusProcessed})
			Expect(err).NotTo(HaveOccurred())
			Expect(processed).To(HaveLen(1))
		})
	})
})
