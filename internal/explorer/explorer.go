package explorer

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

const defaultAPIKeyHeader = "TRON-PRO-API-KEY"

type tronScan struct {
	client *resty.Client
	logger *logger.Logger
}

func New(cfg *config.AppConfig, logger *logger.Logger) IExplorer {
	header := cfg.Explorer.APIKeyHeader
	if header == "" {
		header = defaultAPIKeyHeader
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.Explorer.BaseURL, "/")).
		SetTimeout(cfg.Explorer.Timeout).
		SetHeader("Accept", "application/json")
	if cfg.Explorer.APIKey != "" {
		client.SetHeader(header, cfg.Explorer.APIKey)
	}

	return &tronScan{
		client: client,
		logger: logger,
	}
}

func (e *tronScan) GetTransaction(ctx context.Context, hash string) (*TransactionInfo, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetQueryParam("hash", hash).
		Get("/transaction-info")
	if err != nil {
		e.logger.Error("[GetTransaction][client.Get]", map[string]string{
			"hash":  hash,
			"error": err.Error(),
		})
		return nil, apperror.Wrap(err, apperror.CodeChainUnavailable, "explorer request failed")
	}

	status := resp.StatusCode()
	switch {
	case status == http.StatusNotFound:
		return nil, apperror.Newf(apperror.CodeTxNotFound, "explorer has no record of %s", hash)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		e.logger.Warn("[GetTransaction] explorer unavailable", map[string]string{
			"hash":        hash,
			"status_code": strconv.Itoa(status),
			"body":        excerpt(resp.Body()),
		})
		return nil, apperror.Newf(apperror.CodeChainUnavailable, "explorer returned status %d", status)
	case status != http.StatusOK:
		e.logger.Error("[GetTransaction] unexpected status", map[string]string{
			"hash":        hash,
			"status_code": strconv.Itoa(status),
			"body":        excerpt(resp.Body()),
		})
		return nil, apperror.Newf(apperror.CodeChainUnavailable, "explorer returned status %d", status)
	}

	body := strings.TrimSpace(string(resp.Body()))
	if body == "" || body == "{}" || body == "null" {
		return nil, apperror.Newf(apperror.CodeTxNotFound, "explorer returned an empty record for %s", hash)
	}

	var info TransactionInfo
	if err := json.Unmarshal(resp.Body(), &info); err != nil {
		e.logger.Error("[GetTransaction][json.Unmarshal]", map[string]string{
			"hash":  hash,
			"error": err.Error(),
			"body":  excerpt(resp.Body()),
		})
		return nil, apperror.Wrap(err, apperror.CodeChainUnavailable, "malformed explorer response")
	}
	if info.Hash == "" {
		return nil, apperror.Newf(apperror.CodeTxNotFound, "explorer record for %s carries no hash", hash)
	}

	return &info, nil
}

func excerpt(body []byte) string {
	const max = 512
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
