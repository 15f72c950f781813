package oracle_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/store/storetest"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/types/environments"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var _ = Describe("Calculator", func() {
	var (
		ctx   context.Context
		fake  *storetest.Fake
		clock *fakeClock
		calc  *oracle.Calculator
		usdt  model.Currency
		trc20 model.Network
	)

	putRate := func(rate string) model.FixedRate {
		now := clock.Now()
		return fake.PutFixedRate(model.FixedRate{
			NetworkID: trc20.ID,
			Rate:      decimal.RequireFromString(rate),
			CreatedAt: now,
			EndedAt:   now.Add(30 * time.Second),
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		fake = storetest.New()
		usdt = fake.AddCurrency(model.Currency{Symbol: "USDT", Decimals: 6, PriceSourceID: "tether"})
		trc20 = fake.AddNetwork(model.Network{Code: "TRC20", CurrencyID: usdt.ID, IsActive: true})
		clock = &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

		cfg := &config.AppConfig{Rate: config.RateConfig{TTL: 30 * time.Second}}
		o := oracle.New(fake, fake.Store(), cfg, logger.New(environments.Test), &MockPriceFeed{}, oracle.WithClock(clock.Now))
		calc = oracle.NewCalculator(fake, fake.Store(), o)
	})

	It("converts 100 USD at rate 2.0 into 50 units", func() {
		rate := putRate("2.0")

		quote, err := calc.Calculate(ctx, rate.ID, dec("100"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(quote.CurrencyAmount.String()).To(Equal("50"))
		Expect(quote.Amount.String()).To(Equal("100"))
		Expect(quote.FixedRate.ID).To(Equal(rate.ID))
		Expect(quote.Network.ID).To(Equal(trc20.ID))
	})

	It("is deterministic for the same rate and input", func() {
		rate := putRate("0.998712")

		first, err := calc.Calculate(ctx, rate.ID, dec("123.45"), nil)
		Expect(err).NotTo(HaveOccurred())
		for i := 0; i < 10; i++ {
			again, err := calc.Calculate(ctx, rate.ID, dec("123.45"), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(again.CurrencyAmount.Equal(first.CurrencyAmount)).To(BeTrue())
			Expect(again.Amount.Equal(first.Amount)).To(BeTrue())
		}
	})

	It("rounds half up to the currency precision", func() {
		rate := putRate("3")

		quote, err := calc.Calculate(ctx, rate.ID, dec("0.02"), nil)
		Expect(err).NotTo(HaveOccurred())
		// 0.02 / 3 = 0.00666666...
		Expect(quote.CurrencyAmount.String()).To(Equal("0.006667"))

		quote, err = calc.Calculate(ctx, rate.ID, nil, dec("0.0016665"))
		Expect(err).NotTo(HaveOccurred())
		Expect(quote.CurrencyAmount.String()).To(Equal("0.001667"))
		Expect(quote.Amount.String()).To(Equal("0.01"))
	})

	It("round-trips within one cent", func() {
		for _, r := range []string{"2.0", "0.9998", "1.0371", "0.5", "0.123457"} {
			rate := putRate(r)
			for _, x := range []string{"100", "0.01", "19.99", "12345.67", "7"} {
				there, err := calc.Calculate(ctx, rate.ID, dec(x), nil)
				Expect(err).NotTo(HaveOccurred())

				back, err := calc.Calculate(ctx, rate.ID, nil, &there.CurrencyAmount)
				Expect(err).NotTo(HaveOccurred())

				diff := back.Amount.Sub(decimal.RequireFromString(x)).Abs()
				Expect(diff.LessThanOrEqual(decimal.RequireFromString("0.01"))).To(BeTrue(),
					"rate %s amount %s came back as %s", r, x, back.Amount)
			}
		}
	})

	It("fails with RateExpired once the lock ended", func() {
		rate := putRate("2.0")
		clock.Advance(30 * time.Second)

		_, err := calc.Calculate(ctx, rate.ID, dec("100"), nil)
		Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeRateExpired))
		_, err = calc.Calculate(ctx, rate.ID, nil, dec("50"))
		Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeRateExpired))
	})

	DescribeTable("rejects bad input",
		func(amountUSD, currencyAmount *decimal.Decimal) {
			rate := putRate("2.0")
			_, err := calc.Calculate(ctx, rate.ID, amountUSD, currencyAmount)
			Expect(apperror.CodeOf(err)).To(Equal(apperror.CodeInvalidInput))
		},
		Entry("neither side", nil, nil),
		Entry("both sides", dec("1"), dec("1")),
		Entry("zero usd", dec("0"), nil),
		Entry("negative currency", nil, dec("-1")),
		Entry("below one cent", dec("0.001"), nil),
	)
})
