package transfer_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	handler "github.com/dwarvesf/custody-backend/internal/handler/transfer"
	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/store/storetest"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/types/environments"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

const (
	caller = 7
	other  = 8
)

var txHash = strings.Repeat("c3", 32)

type queued struct {
	transferID uint
	txID       string
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queued
}

func (q *recordingQueue) Enqueue(transferID uint, txID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, queued{transferID: transferID, txID: txID})
	return true
}

func (q *recordingQueue) Jobs() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queued(nil), q.jobs...)
}

var _ = Describe("TransferHandler", func() {
	var (
		fake   *storetest.Fake
		market storetest.Market
		queue  *recordingQueue
		router *gin.Engine
	)

	do := func(userID uint, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(view.HeaderUserID, strconv.Itoa(int(userID)))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	transferOf := func(w *httptest.ResponseRecorder) *model.Transfer {
		t := &model.Transfer{}
		Expect(json.Unmarshal(w.Body.Bytes(), t)).To(Succeed())
		return t
	}

	errorOf := func(w *httptest.ResponseRecorder) view.ErrorResponse {
		var resp view.ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	depositBody := func(amount string) string {
		return `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) + `,"amount":"` + amount + `"}`
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		view.RegisterValidators()

		fake = storetest.New()
		market = fake.SeedMarket("2.0", time.Now(), time.Hour)
		queue = &recordingQueue{}

		cfg := &config.AppConfig{Rate: config.RateConfig{TTL: time.Hour}}
		log := logger.New(environments.Test)
		rates := oracle.New(fake, fake.Store(), cfg, log, nil)
		accountant := ledger.New(fake, fake.Store(), cfg, log)
		transfers := transfer.New(fake, fake.Store(), oracle.NewCalculator(fake, fake.Store(), rates), accountant, nil, log)
		h := handler.New(transfers, accountant, queue, log)

		router = gin.New()
		router.Use(func(c *gin.Context) {
			if id, ok := view.ParseID(c.GetHeader(view.HeaderUserID)); ok {
				c.Set(view.UserIDKey, id)
			}
		})
		router.POST("/deposits", h.CreateDeposit)
		router.POST("/withdrawals", h.CreateWithdrawal)
		router.GET("/transfers", h.ListTransfers)
		router.GET("/transfers/:id", h.GetTransfer)
		router.PUT("/transfers/:id/tx", h.SubmitTx)
		router.GET("/balances/me", h.GetBalance)
	})

	Describe("CreateDeposit", func() {
		It("creates a pending deposit priced at the locked rate", func() {
			w := do(caller, http.MethodPost, "/deposits", depositBody("100"))
			Expect(w.Code).To(Equal(http.StatusCreated))

			t := transferOf(w)
			Expect(t.UserID).To(Equal(uint(caller)))
			Expect(t.Type).To(Equal(model.TransferTypeDeposit))
			Expect(t.Status).To(Equal(model.TransferStatusPending))
			Expect(t.CurrencyAmount.Equal(decimal.NewFromInt(50))).To(BeTrue())
		})

		It("rejects a malformed sender address", func() {
			body := `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) + `,"amount":"10","from_address":"not-an-address"}`
			w := do(caller, http.MethodPost, "/deposits", body)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Details).To(ContainElement("from_address: chainaddr"))
		})

		It("rejects a zero amount", func() {
			w := do(caller, http.MethodPost, "/deposits", depositBody("0"))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Details).To(ContainElement("amount: gt"))
		})

		It("rejects a body that is not JSON", func() {
			w := do(caller, http.MethodPost, "/deposits", "{")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeInvalidInput)))
		})
	})

	Describe("CreateWithdrawal", func() {
		withdrawalBody := func(amount string) string {
			return `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) +
				`,"amount":"` + amount + `","withdrawal_address":"` + storetest.TronAddress(40) + `"}`
		}

		It("reserves the amount from the balance", func() {
			fake.SetBalance(caller, decimal.NewFromInt(500))

			w := do(caller, http.MethodPost, "/withdrawals", withdrawalBody("100"))
			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(transferOf(w).Type).To(Equal(model.TransferTypeWithdrawal))

			balance := fake.Balance(caller)
			Expect(balance.Balance.Equal(decimal.NewFromInt(400))).To(BeTrue())
			Expect(balance.Reserved.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})

		It("refuses more than the balance", func() {
			fake.SetBalance(caller, decimal.NewFromInt(10))

			w := do(caller, http.MethodPost, "/withdrawals", withdrawalBody("100"))
			Expect(w.Code).To(Equal(http.StatusUnprocessableEntity))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeInsufficientBalance)))
		})

		It("requires a destination", func() {
			w := do(caller, http.MethodPost, "/withdrawals", depositBody("100"))
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Details).To(ContainElement("withdrawal_address: required"))
		})
	})

	Describe("SubmitTx", func() {
		var deposit *model.Transfer

		BeforeEach(func() {
			deposit = transferOf(do(caller, http.MethodPost, "/deposits", depositBody("100")))
		})

		path := func(id uint) string {
			return "/transfers/" + strconv.Itoa(int(id)) + "/tx"
		}

		It("attaches the hash and queues a reconciliation", func() {
			w := do(caller, http.MethodPut, path(deposit.ID), `{"tx_id":"`+txHash+`"}`)
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(transferOf(w).TxIDValue()).To(Equal(txHash))
			Expect(queue.Jobs()).To(ConsistOf(queued{transferID: deposit.ID, txID: txHash}))
		})

		It("rejects a malformed hash without queueing", func() {
			w := do(caller, http.MethodPut, path(deposit.ID), `{"tx_id":"0xzz"}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeInvalidTxID)))
			Expect(queue.Jobs()).To(BeEmpty())
		})

		It("hides another user's transfer", func() {
			w := do(other, http.MethodPut, path(deposit.ID), `{"tx_id":"`+txHash+`"}`)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(fake.Transfer(deposit.ID).TxID).To(BeNil())
		})

		It("refuses a hash already used by another transfer", func() {
			Expect(do(caller, http.MethodPut, path(deposit.ID), `{"tx_id":"`+txHash+`"}`).Code).To(Equal(http.StatusOK))
			second := transferOf(do(caller, http.MethodPost, "/deposits", depositBody("100")))

			w := do(caller, http.MethodPut, path(second.ID), `{"tx_id":"`+txHash+`"}`)
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeTxAlreadyUsed)))
		})
	})

	Describe("GetTransfer", func() {
		It("returns the caller's transfer and hides others'", func() {
			deposit := transferOf(do(caller, http.MethodPost, "/deposits", depositBody("100")))
			path := "/transfers/" + strconv.Itoa(int(deposit.ID))

			Expect(do(caller, http.MethodGet, path, "").Code).To(Equal(http.StatusOK))
			Expect(do(other, http.MethodGet, path, "").Code).To(Equal(http.StatusNotFound))
			Expect(do(caller, http.MethodGet, "/transfers/0", "").Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("ListTransfers", func() {
		It("lists only the caller's transfers", func() {
			do(caller, http.MethodPost, "/deposits", depositBody("10"))
			do(caller, http.MethodPost, "/deposits", depositBody("20"))
			do(other, http.MethodPost, "/deposits", depositBody("30"))

			w := do(caller, http.MethodGet, "/transfers?type=deposit", "")
			Expect(w.Code).To(Equal(http.StatusOK))

			var page view.ListResponse[model.Transfer]
			Expect(json.Unmarshal(w.Body.Bytes(), &page)).To(Succeed())
			Expect(page.Total).To(Equal(int64(2)))
			Expect(page.Limit).To(Equal(20))
			for _, t := range page.Data {
				Expect(t.UserID).To(Equal(uint(caller)))
			}
		})

		It("rejects an unknown status", func() {
			w := do(caller, http.MethodGet, "/transfers?status=lost", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Details).To(ContainElement("status: oneof"))
		})

		It("caps the page size", func() {
			w := do(caller, http.MethodGet, "/transfers?limit=1000", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GetBalance", func() {
		It("returns a zero balance for a new user", func() {
			w := do(caller, http.MethodGet, "/balances/me", "")
			Expect(w.Code).To(Equal(http.StatusOK))

			var balance model.Balance
			Expect(json.Unmarshal(w.Body.Bytes(), &balance)).To(Succeed())
			Expect(balance.UserID).To(Equal(uint(caller)))
			Expect(balance.Balance.IsZero()).To(BeTrue())
		})
	})
})
