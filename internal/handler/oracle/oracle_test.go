package oracle_test

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

	handler "github.com/dwarvesf/custody-backend/internal/handler/oracle"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/store/storetest"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/types/environments"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

type staticFeed struct {
	price decimal.Decimal
	err   error
}

func (f *staticFeed) GetUSDPrice(context.Context, string) (decimal.Decimal, error) {
	return f.price, f.err
}

var _ = Describe("RateHandler", func() {
	var (
		fake   *storetest.Fake
		feed   *staticFeed
		market storetest.Market
		router *gin.Engine
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	errorOf := func(w *httptest.ResponseRecorder) view.ErrorResponse {
		var resp view.ErrorResponse
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		return resp
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		view.RegisterValidators()

		fake = storetest.New()
		feed = &staticFeed{price: decimal.RequireFromString("1.0002")}
		market = fake.SeedMarket("2.0", time.Now(), time.Hour)

		cfg := &config.AppConfig{Rate: config.RateConfig{TTL: 10 * time.Minute}}
		log := logger.New(environments.Test)
		rates := oracle.New(fake, fake.Store(), cfg, log, feed)
		h := handler.New(rates, oracle.NewCalculator(fake, fake.Store(), rates), log)

		router = gin.New()
		router.POST("/rates/lock", h.LockRate)
		router.POST("/rates/calculate", h.Calculate)
		router.GET("/rates/current/:network_id", h.GetCurrentRate)
		router.GET("/rates/:id", h.GetRate)
	})

	Describe("LockRate", func() {
		It("locks the feed price for the configured TTL", func() {
			w := do(http.MethodPost, "/rates/lock", `{"network_id":`+strconv.Itoa(int(market.Network.ID))+`}`)
			Expect(w.Code).To(Equal(http.StatusOK))

			var rate model.FixedRate
			Expect(json.Unmarshal(w.Body.Bytes(), &rate)).To(Succeed())
			Expect(rate.Rate.Equal(decimal.RequireFromString("1.0002"))).To(BeTrue())
			Expect(rate.EndedAt.Sub(rate.CreatedAt)).To(Equal(10 * time.Minute))
		})

		It("rejects a missing network id", func() {
			w := do(http.MethodPost, "/rates/lock", `{}`)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Details).To(ContainElement("network_id: required"))
		})

		It("reports an unknown network", func() {
			w := do(http.MethodPost, "/rates/lock", `{"network_id":999}`)
			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeNotFound)))
		})

		It("maps a feed outage to 503", func() {
			feed.err = apperror.Newf(apperror.CodePriceUnavailable, "upstream down")
			w := do(http.MethodPost, "/rates/lock", `{"network_id":`+strconv.Itoa(int(market.Network.ID))+`}`)
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodePriceUnavailable)))
		})
	})

	Describe("GetRate", func() {
		It("returns an active rate", func() {
			w := do(http.MethodGet, "/rates/"+strconv.Itoa(int(market.Rate.ID)), "")
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("refuses an expired rate", func() {
			expired := fake.PutFixedRate(model.FixedRate{
				NetworkID: market.Network.ID,
				Rate:      decimal.NewFromInt(2),
				CreatedAt: time.Now().Add(-2 * time.Hour),
				EndedAt:   time.Now().Add(-time.Hour),
			})
			w := do(http.MethodGet, "/rates/"+strconv.Itoa(int(expired.ID)), "")
			Expect(w.Code).To(Equal(http.StatusConflict))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeRateExpired)))
		})

		It("rejects a non-numeric id", func() {
			w := do(http.MethodGet, "/rates/abc", "")
			Expect(w.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GetCurrentRate", func() {
		It("locks on demand and reports the time left", func() {
			w := do(http.MethodGet, "/rates/current/"+strconv.Itoa(int(market.Network.ID)), "")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				ID          uint  `json:"id"`
				RemainingMs int64 `json:"remaining_ms"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.ID).NotTo(BeZero())
			Expect(resp.RemainingMs).To(BeNumerically(">", 0))
			Expect(resp.RemainingMs).To(BeNumerically("<=", (10 * time.Minute).Milliseconds()))
		})
	})

	Describe("Calculate", func() {
		It("converts USD to the currency amount", func() {
			body := `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) + `,"amount":"100"}`
			w := do(http.MethodPost, "/rates/calculate", body)
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp handler.CalculateResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.CurrencyAmount.Equal(decimal.NewFromInt(50))).To(BeTrue())
			Expect(resp.Amount.Equal(decimal.NewFromInt(100))).To(BeTrue())
		})

		It("converts a currency amount to USD", func() {
			body := `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) + `,"currency_amount":"12.5"}`
			w := do(http.MethodPost, "/rates/calculate", body)
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp handler.CalculateResponse
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Amount.Equal(decimal.NewFromInt(25))).To(BeTrue())
		})

		It("requires exactly one amount", func() {
			body := `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) + `,"amount":"1","currency_amount":"1"}`
			w := do(http.MethodPost, "/rates/calculate", body)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Code).To(Equal(string(apperror.CodeInvalidInput)))
		})

		It("rejects a negative amount at binding", func() {
			body := `{"fixed_rate_id":` + strconv.Itoa(int(market.Rate.ID)) + `,"amount":"-5"}`
			w := do(http.MethodPost, "/rates/calculate", body)
			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(errorOf(w).Details).To(ContainElement("amount: gt"))
		})
	})
})
