package oracle

import (
	"context"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	"github.com/dwarvesf/custody-backend/internal/pricefeed"
	"github.com/dwarvesf/custody-backend/internal/store"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

// rates are stored as numeric(36,18)
const ratePrecision = 18

type RateOracle struct {
	repo      store.DBRepo
	store     *store.Store
	priceFeed pricefeed.IPriceFeed
	ttl       time.Duration
	current   *cache.Cache
	logger    *logger.Logger
	metrics   *monitoring.BusinessMetricsRecorder
	now       func() time.Time
}

type Option func(*RateOracle)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *RateOracle) { o.now = now }
}

func WithMetrics(metrics *monitoring.BusinessMetricsRecorder) Option {
	return func(o *RateOracle) { o.metrics = metrics }
}

func New(repo store.DBRepo, store *store.Store, appConfig *config.AppConfig, logger *logger.Logger, priceFeed pricefeed.IPriceFeed, opts ...Option) *RateOracle {
	o := &RateOracle{
		repo:      repo,
		store:     store,
		priceFeed: priceFeed,
		ttl:       appConfig.Rate.TTL,
		current:   cache.New(cache.NoExpiration, time.Minute),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *RateOracle) Lock(ctx context.Context, networkID uint) (*model.FixedRate, error) {
	start := time.Now()

	network, err := o.activeNetwork(ctx, networkID)
	if err != nil {
		return nil, err
	}

	price, err := o.priceFeed.GetUSDPrice(ctx, network.Currency.PriceSourceID)
	if err != nil {
		o.logger.Error("[RateOracle][Lock] price unavailable", map[string]string{
			"network": network.Code,
			"error":   err.Error(),
		})
		o.metrics.RecordRateLock(network.Code, "error", time.Since(start).Seconds())
		if apperror.CodeOf(err) == "" {
			err = apperror.Wrap(err, apperror.CodePriceUnavailable, "price feed failed")
		}
		return nil, err
	}

	createdAt := o.now().UTC().Truncate(time.Microsecond)
	rate, err := o.store.FixedRate.Create(o.repo.DB(ctx), &model.FixedRate{
		NetworkID: network.ID,
		Rate:      price.Round(ratePrecision),
		CreatedAt: createdAt,
		EndedAt:   createdAt.Add(o.ttl),
	})
	if err != nil {
		o.metrics.RecordRateLock(network.Code, "error", time.Since(start).Seconds())
		return nil, errors.Wrap(err, "persist fixed rate")
	}

	o.metrics.RecordRateLock(network.Code, "success", time.Since(start).Seconds())
	o.logger.Debug("[RateOracle][Lock]", map[string]string{
		"network":  network.Code,
		"rate_id":  strconv.FormatUint(uint64(rate.ID), 10),
		"rate":     rate.Rate.String(),
		"ended_at": rate.EndedAt.Format(time.RFC3339),
	})
	return rate, nil
}

func (o *RateOracle) GetActive(ctx context.Context, rateID uint) (*model.FixedRate, error) {
	rate, err := o.store.FixedRate.GetByID(o.repo.DB(ctx), rateID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Newf(apperror.CodeNotFound, "fixed rate %d", rateID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get fixed rate")
	}
	if !rate.ActiveAt(o.now()) {
		return nil, apperror.Newf(apperror.CodeRateExpired, "fixed rate %d ended at %s", rate.ID, rate.EndedAt.Format(time.RFC3339))
	}
	return rate, nil
}

func (o *RateOracle) CurrentLock(ctx context.Context, networkID uint) (*model.FixedRate, error) {
	if v, ok := o.current.Get(cacheKey(networkID)); ok {
		rate := v.(*model.FixedRate)
		if rate.ActiveAt(o.now()) {
			o.metrics.RecordCacheOperation("current_lock", "hit")
			return rate, nil
		}
	}
	o.metrics.RecordCacheOperation("current_lock", "miss")

	rate, err := o.Lock(ctx, networkID)
	if err != nil {
		return nil, err
	}
	o.remember(rate)
	return rate, nil
}

func (o *RateOracle) RefreshLocks(ctx context.Context) error {
	networks, err := o.store.Network.ListActive(o.repo.DB(ctx))
	if err != nil {
		return errors.Wrap(err, "list active networks")
	}

	var errs error
	for _, network := range networks {
		rate, err := o.Lock(ctx, network.ID)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "lock network %s", network.Code))
			continue
		}
		o.remember(rate)
	}
	return errs
}

func (o *RateOracle) remember(rate *model.FixedRate) {
	ttl := rate.Remaining(o.now())
	if ttl <= 0 {
		return
	}
	o.current.Set(cacheKey(rate.NetworkID), rate, ttl)
}

func (o *RateOracle) activeNetwork(ctx context.Context, networkID uint) (*model.Network, error) {
	network, err := o.store.Network.GetByID(o.repo.DB(ctx), networkID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.Newf(apperror.CodeNotFound, "network %d", networkID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get network")
	}
	if !network.IsActive {
		return nil, apperror.Newf(apperror.CodeInvalidInput, "network %s is not active", network.Code)
	}
	if network.Currency == nil {
		return nil, errors.Errorf("network %s has no currency", network.Code)
	}
	return network, nil
}

func cacheKey(networkID uint) string {
	return strconv.FormatUint(uint64(networkID), 10)
}
