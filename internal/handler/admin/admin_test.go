package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/dwarvesf/custody-backend/internal/handler/admin"
	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/reconciler"
	"github.com/dwarvesf/custody-backend/internal/store/storetest"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/types/environments"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

const (
	operator = 1
	owner    = 7
)

var txHash = strings.Repeat("d4", 32)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, transferID uint, txID string) (reconciler.Outcome, error) {
	args := m.Called(ctx, transferID, txID)
	return args.Get(0).(reconciler.Outcome), args.Error(1)
}

func (m *MockReconciler) Recheck(ctx context.Context, transferID uint) (reconciler.Outcome, error) {
	args := m.Called(ctx, transferID)
	return args.Get(0).(reconciler.Outcome), args.Error(1)
}

var _ = Describe("AdminHandler", func() {
	var (
		ctx       context.Context
		fake      *storetest.Fake
		market    storetest.Market
		transfers *transfer.Service
		recon     *MockReconciler
		router    *gin.Engine
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set(view.HeaderAdminID, strconv.Itoa(operator))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	transferOf := func(w *httptest.ResponseRecorder) model.Transfer {
		var t model.Transfer
		Expect(json.Unmarshal(w.Body.Bytes(), &t)).To(Succeed())
		return t
	}

	errorOf := func(w *httptest.ResponseRecorder) view.ErrorResponse {
		var resp view.ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	path := func(id uint, action string) string {
		return "/admin/transfers/" + strconv.Itoa(int(id)) + "/" + action
	}

	newDeposit := func() *model.Transfer {
		t, err := transfers.CreateDeposit(ctx, transfer.CreateDepositRequest{
			UserID:      owner,
			FixedRateID: market.Rate.ID,
			Amount:      decimal.NewFromInt(100),
		})
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		view.RegisterValidators()
		ctx = context.Background()

		fake = storetest.New()
		market = fake.SeedMarket("2.0", time.Now(), time.Hour)
		recon = &MockReconciler{}

		cfg := &config.AppConfig{Rate: config.RateConfig{TTL: time.Hour}}
		log := logger.New(environments.Test)
		rates := oracle.New(fake, fake.Store(), cfg, log, nil)
		transfers = transfer.New(fake, fake.Store(), oracle.NewCalculator(fake, fake.Store(), rates), ledger.New(fake, fake.Store(), cfg, log), nil, log)
		h := admin.New(transfers, recon, log)

		router = gin.New()
		router.Use(func(c *gin.Context) {
			if id, ok := view.ParseID(c.GetHeader(view.HeaderAdminID)); ok {
				c.Set(view.AdminIDKey, id)
			}
		})
		router.GET("/admin/transfers", h.ListTransfers)
		router.POST("/admin/transfers/:id/process", h.Process)
		router.POST("/admin/transfers/:id/confirm", h.Confirm)
		router.POST("/admin/transfers/:id/cancel", h.Cancel)
		router.POST("/admin/transfers/:id/reconcile", h.Reconcile)
	})

	Describe("Process and Confirm", func() {
		It("completes a deposit and credits the owner", func() {
			deposit := newDeposit()

			w := do(http.MethodPost, path(deposit.ID, "process"), `{"tx_id":"`+txHash+`"}`)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(transferOf(w).Status).To(Equal(model.TransferStatusProcessed))

			w = do(http.MethodPost, path(deposit.ID, "confirm"), "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(transferOf(w).Status).To(Equal(model.TransferStatusCompleted))
			Expect(fake.Balance(owner).Balance.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})

		It("is a no-op on a completed transfer", func() {
			deposit := newDeposit()
			do(http.MethodPost, path(deposit.ID, "process"), `{"tx_id":"`+txHash+`"}`)
			do(http.MethodPost, path(deposit.ID, "confirm"), "")

			w := do(http.MethodPost, path(deposit.ID, "confirm"), "")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(transferOf(w).Status).To(Equal(model.TransferStatusCompleted))
			Expect(fake.LedgerEntries()).To(HaveLen(1))
		})

		It("refuses to confirm a pending transfer", func() {
			deposit := newDeposit()

			w := do(http.MethodPost, path(deposit.ID, "confirm"), "")
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeInvalidTransition)))
		})

		It("needs a hash to process a deposit that has none", func() {
			deposit := newDeposit()

			w := do(http.MethodPost, path(deposit.ID, "process"), "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeTxRequired)))
		})

		It("hides the ledger failure detail behind a 500", func() {
			deposit := newDeposit()
			do(http.MethodPost, path(deposit.ID, "process"), `{"tx_id":"`+txHash+`"}`)
			fake.FailOn("ledgerentry.Create", context.DeadlineExceeded)

			w := do(http.MethodPost, path(deposit.ID, "confirm"), "")
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeLedgerApplyFailed)))
			Expect(w.Body.String()).NotTo(ContainSubstring("deadline"))
			Expect(fake.Transfer(deposit.ID).Status).To(Equal(model.TransferStatusProcessed))
		})
	})

	Describe("Cancel", func() {
		It("requires a note", func() {
			deposit := newDeposit()

			w := do(http.MethodPost, path(deposit.ID, "cancel"), `{"note":"  "}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeReasonRequired)))
		})

		It("cancels a pending transfer", func() {
			deposit := newDeposit()

			w := do(http.MethodPost, path(deposit.ID, "cancel"), `{"note":"user asked"}`)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(transferOf(w).Status).To(Equal(model.TransferStatusCanceled))
		})
	})

	Describe("Reconcile", func() {
		It("re-runs reconciliation and returns the fresh transfer", func() {
			deposit := newDeposit()
			recon.On("Recheck", mock.Anything, deposit.ID).Return(reconciler.OutcomeAwaitingConfirmations, nil).Once()

			w := do(http.MethodPost, path(deposit.ID, "reconcile"), "")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp admin.ReconcileResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Outcome).To(Equal(string(reconciler.OutcomeAwaitingConfirmations)))
			Expect(resp.Transfer.ID).To(Equal(deposit.ID))
			recon.AssertExpectations(GinkgoT())
		})

		It("renders the reconciliation error", func() {
			deposit := newDeposit()
			recon.On("Recheck", mock.Anything, deposit.ID).
				Return(reconciler.Outcome(""), apperror.Newf(apperror.CodeTxRequired, "no hash")).Once()

			w := do(http.MethodPost, path(deposit.ID, "reconcile"), "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeTxRequired)))
		})

		It("rejects a malformed id before reconciling", func() {
			w := do(http.MethodPost, "/admin/transfers/x/reconcile", "")
			Expect(w.Code).To(Equal(http.StatusNotFound))
			recon.AssertNotCalled(GinkgoT(), "Recheck", mock.Anything, mock.Anything)
		})
	})

	Describe("ListTransfers", func() {
		It("filters across users", func() {
			newDeposit()
			_, err := transfers.CreateDeposit(ctx, transfer.CreateDepositRequest{
				UserID:      owner + 1,
				FixedRateID: market.Rate.ID,
				Amount:      decimal.NewFromInt(10),
			})
			Expect(err).NotTo(HaveOccurred())

			w := do(http.MethodGet, "/admin/transfers", "")
			Expect(w.Code).To(Equal(http.StatusOK))
			var page view.ListResponse[model.Transfer]
			Expect(json.Unmarshal(w.Body.Bytes(), &page)).To(Succeed())
			Expect(page.Total).To(Equal(int64(2)))
			Expect(page.Limit).To(Equal(50))

			w = do(http.MethodGet, "/admin/transfers?user_id="+strconv.Itoa(owner)+"&needs_review=false", "")
			Expect(json.Unmarshal(w.Body.Bytes(), &page)).To(Succeed())
			Expect(page.Total).To(Equal(int64(1)))

			w = do(http.MethodGet, "/admin/transfers?needs_review=true", "")
			Expect(json.Unmarshal(w.Body.Bytes(), &page)).To(Succeed())
			Expect(page.Total).To(BeZero())
		})
	})
})
