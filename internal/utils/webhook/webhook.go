package webhook

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

// Alert is the JSON body posted to the operator webhook.
type Alert struct {
	ID        string            `json:"id"`
	Event     string            `json:"event"`
	Severity  string            `json:"severity"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
)

// Client posts operator alerts. Delivery is best effort: failures are
// logged and never returned to the caller.
type Client struct {
	httpClient *resty.Client
	url        string
	logger     *logger.Logger
}

func New(url string, logger *logger.Logger) *Client {
	return &Client{
		httpClient: resty.New().SetTimeout(10 * time.Second),
		url:        url,
		logger:     logger,
	}
}

func (c *Client) Notify(ctx context.Context, event, severity string, fields map[string]string) {
	if c == nil {
		return
	}

	alert := Alert{
		ID:        uuid.NewString(),
		Event:     event,
		Severity:  severity,
		Fields:    fields,
		CreatedAt: time.Now().UTC(),
	}

	logFields := map[string]string{
		"alert_id": alert.ID,
		"event":    event,
		"severity": severity,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	c.logger.Warn("[Webhook][Notify] operator alert", logFields)

	if c.url == "" {
		return
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(c.url)
	if err != nil {
		c.logger.Error("[Webhook][Notify] failed to call alert webhook", map[string]string{
			"alert_id": alert.ID,
			"error":    err.Error(),
		})
		return
	}
	if resp.IsError() {
		c.logger.Error("[Webhook][Notify] alert webhook rejected", map[string]string{
			"alert_id":    alert.ID,
			"status_code": resp.Status(),
		})
	}
}
