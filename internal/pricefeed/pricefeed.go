package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

const apiKeyHeader = "x-cg-pro-api-key"

type coinGecko struct {
	client *resty.Client
	cache  *cache.Cache
	logger *logger.Logger
}

// New returns a client for a CoinGecko compatible /simple/price API.
// Quotes are cached for cfg.PriceFeed.CacheTTL; zero disables the cache.
func New(cfg *config.AppConfig, logger *logger.Logger) IPriceFeed {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.PriceFeed.BaseURL, "/")).
		SetTimeout(cfg.PriceFeed.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.PriceFeed.APIKey != "" {
		client.SetHeader(apiKeyHeader, cfg.PriceFeed.APIKey)
	}

	var quotes *cache.Cache
	if cfg.PriceFeed.CacheTTL > 0 {
		quotes = cache.New(cfg.PriceFeed.CacheTTL, 2*cfg.PriceFeed.CacheTTL)
	}

	return &coinGecko{
		client: client,
		cache:  quotes,
		logger: logger,
	}
}

func (c *coinGecko) GetUSDPrice(ctx context.Context, sourceID string) (decimal.Decimal, error) {
	if sourceID == "" {
		return decimal.Zero, apperror.Newf(apperror.CodePriceUnavailable, "currency has no price source")
	}
	if c.cache != nil {
		if v, ok := c.cache.Get(sourceID); ok {
			return v.(decimal.Decimal), nil
		}
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           sourceID,
			"vs_currencies": "usd",
		}).
		Get("/simple/price")
	if err != nil {
		c.logger.Error("[GetUSDPrice][client.Get]", map[string]string{
			"source_id": sourceID,
			"error":     err.Error(),
		})
		return decimal.Zero, apperror.Wrap(err, apperror.CodePriceUnavailable, "price request failed")
	}

	if resp.StatusCode() != http.StatusOK {
		c.logger.Error("[GetUSDPrice] unexpected status", map[string]string{
			"source_id":   sourceID,
			"status_code": fmt.Sprintf("%d", resp.StatusCode()),
			"body":        excerpt(resp.Body()),
		})
		return decimal.Zero, apperror.Newf(apperror.CodePriceUnavailable, "price api returned status %d", resp.StatusCode())
	}

	var quotes map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(resp.Body(), &quotes); err != nil {
		c.logger.Error("[GetUSDPrice][json.Unmarshal]", map[string]string{
			"source_id": sourceID,
			"error":     err.Error(),
			"body":      excerpt(resp.Body()),
		})
		return decimal.Zero, apperror.Wrap(err, apperror.CodePriceUnavailable, "malformed price response")
	}

	price, ok := quotes[sourceID]["usd"]
	if !ok {
		return decimal.Zero, apperror.Newf(apperror.CodePriceUnavailable, "no usd quote for %s", sourceID)
	}
	if !price.IsPositive() {
		return decimal.Zero, apperror.Newf(apperror.CodePriceUnavailable, "non-positive quote %s for %s", price, sourceID)
	}

	if c.cache != nil {
		c.cache.SetDefault(sourceID, price)
	}
	return price, nil
}

func excerpt(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
