package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/dwarvesf/custody-backend/internal/explorer"
	"github.com/dwarvesf/custody-backend/internal/pricefeed"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

// guardedCall runs upstream calls through one breaker with a deadline and
// metrics. Errors the upstream answered deliberately (e.g. TxNotFound) do
// not count toward tripping.
type guardedCall struct {
	apiName        string
	openCode       apperror.Code
	circuitBreaker *gobreaker.CircuitBreaker
	metrics        *ExternalAPIMetrics
	logger         *logger.Logger
	timeoutConfig  TimeoutConfig
}

func newGuardedCall(apiName string, openCode apperror.Code, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *guardedCall {
	g := &guardedCall{
		apiName:       apiName,
		openCode:      openCode,
		metrics:       metrics,
		logger:        logger,
		timeoutConfig: timeoutConfig,
	}

	settings := gobreaker.Settings{
		Name:        apiName,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperror.CodeOf(err) == apperror.CodeTxNotFound
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("[CircuitBreaker] state change", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(apiName, to)
		},
	}

	g.circuitBreaker = gobreaker.NewCircuitBreaker(settings)
	metrics.UpdateCircuitBreakerState(apiName, gobreaker.StateClosed)
	return g
}

func (g *guardedCall) execute(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	result, err := g.circuitBreaker.Execute(func() (interface{}, error) {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, g.timeoutConfig.RequestTimeout)
		defer cancel()

		result, err := fn(callCtx)
		duration := time.Since(start).Seconds()

		status := "success"
		if err != nil {
			status = "error"
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				g.metrics.RecordTimeout(g.apiName, operation)
			}
			g.logError(operation, duration, err)
		}
		g.metrics.RecordAPICall(g.apiName, operation, status, duration)
		return result, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, apperror.Wrap(err, g.openCode, g.apiName+" circuit breaker is open")
	}
	return result, err
}

func (g *guardedCall) State() gobreaker.State {
	return g.circuitBreaker.State()
}

func (g *guardedCall) logError(operation string, duration float64, err error) {
	g.logger.Error("[CircuitBreaker] external API call failed", map[string]string{
		"service":    g.apiName,
		"operation":  operation,
		"duration":   strconv.FormatFloat(duration, 'f', 3, 64),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
		"cb_state":   g.circuitBreaker.State().String(),
	})
}

// CircuitBreakerExplorer wraps explorer.IExplorer with circuit breaker functionality
type CircuitBreakerExplorer struct {
	wrapped explorer.IExplorer
	*guardedCall
}

func NewCircuitBreakerExplorer(wrapped explorer.IExplorer, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerExplorer {
	return &CircuitBreakerExplorer{
		wrapped:     wrapped,
		guardedCall: newGuardedCall(ExplorerAPI, apperror.CodeChainUnavailable, config, timeoutConfig, metrics, logger),
	}
}

func (cb *CircuitBreakerExplorer) GetTransaction(ctx context.Context, hash string) (*explorer.TransactionInfo, error) {
	result, err := cb.execute(ctx, "get_transaction", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.GetTransaction(ctx, hash)
	})
	if err != nil {
		return nil, err
	}
	return result.(*explorer.TransactionInfo), nil
}

// CircuitBreakerPriceFeed wraps pricefeed.IPriceFeed with circuit breaker functionality
type CircuitBreakerPriceFeed struct {
	wrapped pricefeed.IPriceFeed
	*guardedCall
}

func NewCircuitBreakerPriceFeed(wrapped pricefeed.IPriceFeed, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) *CircuitBreakerPriceFeed {
	return &CircuitBreakerPriceFeed{
		wrapped:     wrapped,
		guardedCall: newGuardedCall(PriceFeedAPI, apperror.CodePriceUnavailable, config, timeoutConfig, metrics, logger),
	}
}

func (cb *CircuitBreakerPriceFeed) GetUSDPrice(ctx context.Context, sourceID string) (decimal.Decimal, error) {
	result, err := cb.execute(ctx, "get_usd_price", func(ctx context.Context) (interface{}, error) {
		return cb.wrapped.GetUSDPrice(ctx, sourceID)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

// classifyError classifies errors into different types for metrics and logging
func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout"),
		strings.Contains(errMsg, "deadline exceeded"),
		strings.Contains(errMsg, "context canceled"):
		return ErrorTypeTimeout
	case strings.Contains(errMsg, "network"),
		strings.Contains(errMsg, "connection"),
		strings.Contains(errMsg, "unreachable"),
		strings.Contains(errMsg, "dns"):
		return ErrorTypeNetworkError
	case strings.Contains(errMsg, "status 5"),
		strings.Contains(errMsg, "internal server error"),
		strings.Contains(errMsg, "bad gateway"),
		strings.Contains(errMsg, "service unavailable"):
		return ErrorTypeServerError
	case strings.Contains(errMsg, "status 4"),
		strings.Contains(errMsg, "not found"),
		strings.Contains(errMsg, "unauthorized"),
		strings.Contains(errMsg, "rate limit"):
		return ErrorTypeClientError
	}
	return ErrorTypeUnknown
}

// ValidateCircuitBreakerConfig rejects settings gobreaker would misbehave with
func ValidateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return fmt.Errorf("max_requests must be greater than 0")
	}
	if config.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("consecutive_failure_threshold must be greater than 0")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if config.Interval < 0 {
		return fmt.Errorf("interval must be non-negative")
	}
	return nil
}
