package http

import (
	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/custody-backend/internal/handler"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

func loadV1Routes(r *gin.Engine, h *handler.Handler, logger *logger.Logger) {
	v1 := r.Group("/api/v1")

	rates := v1.Group("/rates")
	{
		rates.POST("/lock", h.RateHandler.LockRate)
		rates.POST("/calculate", h.RateHandler.Calculate)
		rates.GET("/current/:network_id", h.RateHandler.GetCurrentRate)
		rates.GET("/:id", h.RateHandler.GetRate)
	}

	user := v1.Group("", requireIdentity(view.HeaderUserID, view.UserIDKey, logger))
	{
		user.POST("/deposits", h.TransferHandler.CreateDeposit)
		user.POST("/withdrawals", h.TransferHandler.CreateWithdrawal)
		user.GET("/transfers", h.TransferHandler.ListTransfers)
		user.GET("/transfers/:id", h.TransferHandler.GetTransfer)
		user.PUT("/transfers/:id/tx", h.TransferHandler.SubmitTx)
		user.GET("/balances/me", h.TransferHandler.GetBalance)
	}

	admin := v1.Group("/admin", requireIdentity(view.HeaderAdminID, view.AdminIDKey, logger))
	{
		admin.GET("/transfers", h.AdminHandler.ListTransfers)
		admin.POST("/transfers/:id/process", h.AdminHandler.Process)
		admin.POST("/transfers/:id/confirm", h.AdminHandler.Confirm)
		admin.POST("/transfers/:id/cancel", h.AdminHandler.Cancel)
		admin.POST("/transfers/:id/reconcile", h.AdminHandler.Reconcile)
	}

	health := v1.Group("/health")
	{
		health.GET("/db", h.HealthHandler.Database)
		health.GET("/external", h.HealthHandler.External)
		health.GET("/jobs", h.HealthHandler.Jobs)
	}
}
