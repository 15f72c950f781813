package handler

import (
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/dwarvesf/custody-backend/internal/handler/admin"
	"github.com/dwarvesf/custody-backend/internal/handler/health"
	"github.com/dwarvesf/custody-backend/internal/handler/metrics"
	"github.com/dwarvesf/custody-backend/internal/handler/oracle"
	"github.com/dwarvesf/custody-backend/internal/handler/transfer"
	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/monitoring"
	oracleService "github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/reconciler"
	transferService "github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

type Handler struct {
	RateHandler     oracle.IHandler
	TransferHandler transfer.IHandler
	AdminHandler    admin.IHandler
	HealthHandler   health.IHealthHandler
	MetricsHandler  *metrics.MetricsHandler
}

// Services are the domain services the API exposes.
type Services struct {
	Oracle     oracleService.IOracle
	Calculator oracleService.ICalculator
	Transfers  transferService.IService
	Ledger     ledger.ILedger
	Reconciler reconciler.IReconciler
	Queue      reconciler.IQueue
}

func New(logger *logger.Logger,
	services Services,
	db *gorm.DB,
	dependencies map[string]health.Check,
	metricsRegistry *prometheus.Registry,
	jobStatusManager *monitoring.JobStatusManager) *Handler {
	return &Handler{
		RateHandler:     oracle.New(services.Oracle, services.Calculator, logger),
		TransferHandler: transfer.New(services.Transfers, services.Ledger, services.Queue, logger),
		AdminHandler:    admin.New(services.Transfers, services.Reconciler, logger),
		HealthHandler:   health.New(logger, db, dependencies, jobStatusManager),
		MetricsHandler:  metrics.NewMetricsHandler(metricsRegistry),
	}
}
