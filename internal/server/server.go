package server

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sony/gobreaker"
	"go.uber.org/multierr"

	"github.com/dwarvesf/custody-backend/internal/emitter"
	"github.com/dwarvesf/custody-backend/internal/explorer"
	"github.com/dwarvesf/custody-backend/internal/handler"
	"github.com/dwarvesf/custody-backend/internal/handler/health"
	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/locker"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/pricefeed"
	"github.com/dwarvesf/custody-backend/internal/reconciler"
	"github.com/dwarvesf/custody-backend/internal/store"
	pgstore "github.com/dwarvesf/custody-backend/internal/store/postgres"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/transport/http"
	"github.com/dwarvesf/custody-backend/internal/utils/config"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/utils/vault"
	"github.com/dwarvesf/custody-backend/internal/utils/webhook"
	"github.com/dwarvesf/custody-backend/internal/verifier"
)

const shutdownTimeout = 15 * time.Second

func Init() {
	appConfig := config.New()
	logger := logger.New(appConfig.Environment)
	defer logger.Sync()

	if err := loadSecrets(appConfig, logger); err != nil {
		logger.Fatal("[Server][Init] cannot load secrets from vault", map[string]string{
			"error": err.Error(),
		})
	}

	db := pgstore.New(appConfig, logger)
	repo := store.NewDBRepo(db)
	s := store.New()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	apiMetrics := monitoring.NewExternalAPIMetrics()
	apiMetrics.MustRegister(registry)
	httpMetrics := monitoring.NewHTTPMetrics()
	httpMetrics.MustRegister(registry)
	jobMetrics := monitoring.NewBackgroundJobMetrics()
	jobMetrics.MustRegister(registry)
	business := monitoring.NewBusinessMetricsRecorder(httpMetrics)

	priceFeed := monitoring.NewCircuitBreakerPriceFeed(
		pricefeed.New(appConfig, logger),
		monitoring.CircuitBreakerConfigs[monitoring.PriceFeedAPI],
		monitoring.TimeoutConfig{RequestTimeout: appConfig.PriceFeed.Timeout},
		apiMetrics, logger,
	)
	chainExplorer := monitoring.NewCircuitBreakerExplorer(
		explorer.New(appConfig, logger),
		monitoring.CircuitBreakerConfigs[monitoring.ExplorerAPI],
		monitoring.TimeoutConfig{RequestTimeout: appConfig.Explorer.Timeout},
		apiMetrics, logger,
	)

	alerter := webhook.New(appConfig.Alert.WebhookURL, logger)
	events := emitter.New(appConfig, logger)
	defer events.Close()
	transferLocker, redisClient := locker.New(appConfig, logger)

	rates := oracle.New(repo, s, appConfig, logger, priceFeed, oracle.WithMetrics(business))
	calculator := oracle.NewCalculator(repo, s, rates)
	accountant := ledger.New(repo, s, appConfig, logger, ledger.WithMetrics(business))
	transfers := transfer.New(repo, s, calculator, accountant, events, logger,
		transfer.WithMetrics(business),
		transfer.WithAlerter(alerter),
	)
	rec := reconciler.New(repo, s, transfers, verifier.New(chainExplorer, logger), transferLocker, appConfig, logger,
		reconciler.WithMetrics(business),
	)
	pool := reconciler.NewPool(rec, appConfig, logger, jobMetrics)
	pool.Start()
	defer pool.Stop()

	jobStatusManager := monitoring.NewJobStatusManager(logger, jobMetrics)
	defer jobStatusManager.Stop()

	c, err := scheduleJobs(appConfig, logger, jobStatusManager, alerter, rates, pool, accountant)
	if err != nil {
		logger.Fatal("[Server][Init] failed to schedule jobs", map[string]string{
			"error": err.Error(),
		})
	}
	c.Start()
	defer c.Stop()

	dependencies := map[string]health.Check{
		monitoring.PriceFeedAPI: breakerClosed(priceFeed.State),
		monitoring.ExplorerAPI:  breakerClosed(chainExplorer.State),
	}
	if redisClient != nil {
		dependencies["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
		defer redisClient.Close()
	}

	h := handler.New(logger, handler.Services{
		Oracle:     rates,
		Calculator: calculator,
		Transfers:  transfers,
		Ledger:     accountant,
		Reconciler: rec,
		Queue:      pool,
	}, db, dependencies, registry, jobStatusManager)

	srv := &nethttp.Server{
		Addr:    ":" + appConfig.ApiServer.Port,
		Handler: http.NewHttpServer(appConfig, logger, h, httpMetrics),
	}

	go func() {
		logger.Info("[Server][Init] listening", map[string]string{"addr": srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			logger.Fatal("[Server][Init] http server stopped", map[string]string{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("[Server][Init] shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("[Server][Init] graceful shutdown failed", map[string]string{
			"error": err.Error(),
		})
	}
}

// scheduleJobs registers the rate re-lock, reconciliation scan and referral
// payout jobs. Each runs through an InstrumentedJob so /health/jobs sees it.
func scheduleJobs(
	appConfig *config.AppConfig,
	logger *logger.Logger,
	jsm *monitoring.JobStatusManager,
	alerter *webhook.Client,
	rates oracle.IOracle,
	pool *reconciler.Pool,
	accountant ledger.ILedger,
) (*cron.Cron, error) {
	c := cron.New()

	rateRefresh := monitoring.NewInstrumentedJob(monitoring.JobRateRefresh, rates.RefreshLocks, jsm, logger, appConfig.Rate.TTL).
		WithAlert(alerter)
	if _, err := c.AddJob("@every "+appConfig.Rate.TTL.String(), rateRefresh); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", monitoring.JobRateRefresh, err)
	}

	scan := monitoring.NewInstrumentedJob(monitoring.JobReconcileScan, func(ctx context.Context) error {
		_, err := pool.ScanDue(ctx)
		return err
	}, jsm, logger, time.Minute).WithAlert(alerter)
	if _, err := c.AddJob(appConfig.Reconcile.Period, scan); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", monitoring.JobReconcileScan, err)
	}

	payouts := monitoring.NewInstrumentedJob(monitoring.JobReferralPayouts, func(ctx context.Context) error {
		// the sweep runs first so recovered fan-outs are paid in the same run
		_, requeueErr := accountant.RequeueReferralIncome(ctx)
		_, payErr := accountant.PayPendingReferrals(ctx)
		return multierr.Append(requeueErr, payErr)
	}, jsm, logger, 5*time.Minute)
	if _, err := c.AddJob(appConfig.Referral.PayoutPeriod, payouts); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", monitoring.JobReferralPayouts, err)
	}

	return c, nil
}

func breakerClosed(state func() gobreaker.State) health.Check {
	return func(context.Context) error {
		if st := state(); st == gobreaker.StateOpen {
			return fmt.Errorf("circuit breaker %s", st)
		}
		return nil
	}
}

// loadSecrets overrides secret config with the Vault KV entry when Vault
// is configured.
func loadSecrets(appConfig *config.AppConfig, logger *logger.Logger) error {
	if appConfig.Vault.Addr == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secrets, err := vault.New(appConfig.Vault.Addr, appConfig.Vault.KVPath, appConfig.Vault.Role).Secrets(ctx)
	if err != nil {
		return err
	}
	applied := appConfig.ApplySecrets(secrets)
	logger.Info("[Server][Init] secrets loaded from vault", map[string]string{
		"path": appConfig.Vault.KVPath,
		"keys": strings.Join(applied, ","),
	})
	return nil
}
