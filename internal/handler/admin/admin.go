package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/reconciler"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

const defaultPageSize = 50

type handler struct {
	transfers  transfer.IService
	reconciler reconciler.IReconciler
	logger     *logger.Logger
}

func New(transfers transfer.IService, reconciler reconciler.IReconciler, logger *logger.Logger) IHandler {
	return &handler{
		transfers:  transfers,
		reconciler: reconciler,
		logger:     logger,
	}
}

// ListTransfers godoc
// @Summary List transfers
// @Description Lists every user's transfers, newest first
// @id adminListTransfers
// @Tags Admin
// @Produce json
// @Param X-Admin-ID header int true "Operator"
// @Param user_id query int false "Owner"
// @Param status query string false "pending, processed, completed or canceled"
// @Param type query string false "deposit or withdrawal"
// @Param needs_review query bool false "Only transfers held (true) or not held (false) for review"
// @Param limit query int false "Page size, at most 100"
// @Param offset query int false "Offset"
// @Success 200 {object} view.ListResponse[model.Transfer]
// @Failure 400 {object} view.ErrorResponse
// @Router /admin/transfers [get]
func (h *handler) ListTransfers(c *gin.Context) {
	var req ListTransfersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		view.BadRequest(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultPageSize
	}

	filter := model.TransferFilter{
		Status:      model.TransferStatus(req.Status),
		Type:        model.TransferType(req.Type),
		NeedsReview: req.NeedsReview,
		Limit:       req.Limit,
		Offset:      req.Offset,
	}
	if req.UserID != 0 {
		filter.UserID = &req.UserID
	}

	transfers, total, err := h.transfers.List(c.Request.Context(), filter)
	if err != nil {
		view.Error(c, h.logger, "[AdminHandler][ListTransfers]", err)
		return
	}

	data := make([]model.Transfer, 0, len(transfers))
	for _, t := range transfers {
		data = append(data, *t)
	}
	c.JSON(http.StatusOK, view.ListResponse[model.Transfer]{Data: data, Total: total, Limit: req.Limit, Offset: req.Offset})
}

// Process godoc
// @Summary Mark a transfer processed
// @Description Moves a pending transfer to processed. Withdrawals need the payout transaction hash.
// @id adminProcess
// @Tags Admin
// @Accept json
// @Produce json
// @Param X-Admin-ID header int true "Operator"
// @Param id path int true "Transfer id"
// @Param request body ProcessRequest false "Transaction hash"
// @Success 200 {object} model.Transfer
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /admin/transfers/{id}/process [post]
func (h *handler) Process(c *gin.Context) {
	id, ok := h.transferID(c, "[AdminHandler][Process]")
	if !ok {
		return
	}
	var req ProcessRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			view.BadRequest(c, err)
			return
		}
	}

	t, err := h.transfers.Process(c.Request.Context(), id, req.TxID, transfer.Admin(view.AdminID(c)))
	if err != nil {
		view.Error(c, h.logger, "[AdminHandler][Process]", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Confirm godoc
// @Summary Complete a transfer
// @Description Completes a processed transfer and applies its ledger effect. Clears a review hold.
// @id adminConfirm
// @Tags Admin
// @Produce json
// @Param X-Admin-ID header int true "Operator"
// @Param id path int true "Transfer id"
// @Success 200 {object} model.Transfer
// @Failure 409 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /admin/transfers/{id}/confirm [post]
func (h *handler) Confirm(c *gin.Context) {
	id, ok := h.transferID(c, "[AdminHandler][Confirm]")
	if !ok {
		return
	}

	t, err := h.transfers.Confirm(c.Request.Context(), id, transfer.Admin(view.AdminID(c)))
	if err != nil {
		view.Error(c, h.logger, "[AdminHandler][Confirm]", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Cancel godoc
// @Summary Cancel a transfer
// @Description Cancels a pending or processed transfer, releasing any withdrawal reservation
// @id adminCancel
// @Tags Admin
// @Accept json
// @Produce json
// @Param X-Admin-ID header int true "Operator"
// @Param id path int true "Transfer id"
// @Param request body CancelRequest true "Cancellation note"
// @Success 200 {object} model.Transfer
// @Failure 400 {object} view.ErrorResponse
// @Router /admin/transfers/{id}/cancel [post]
func (h *handler) Cancel(c *gin.Context) {
	id, ok := h.transferID(c, "[AdminHandler][Cancel]")
	if !ok {
		return
	}
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		view.BadRequest(c, err)
		return
	}

	t, err := h.transfers.Cancel(c.Request.Context(), id, req.Note, transfer.Admin(view.AdminID(c)))
	if err != nil {
		view.Error(c, h.logger, "[AdminHandler][Cancel]", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Reconcile godoc
// @Summary Re-run reconciliation
// @Description Checks the transfer's transaction against the chain now, ignoring review holds and schedules
// @id adminReconcile
// @Tags Admin
// @Produce json
// @Param X-Admin-ID header int true "Operator"
// @Param id path int true "Transfer id"
// @Success 200 {object} ReconcileResponse
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /admin/transfers/{id}/reconcile [post]
func (h *handler) Reconcile(c *gin.Context) {
	id, ok := h.transferID(c, "[AdminHandler][Reconcile]")
	if !ok {
		return
	}

	outcome, err := h.reconciler.Recheck(c.Request.Context(), id)
	if err != nil {
		view.Error(c, h.logger, "[AdminHandler][Reconcile]", err)
		return
	}
	t, err := h.transfers.Get(c.Request.Context(), id)
	if err != nil {
		view.Error(c, h.logger, "[AdminHandler][Reconcile]", err)
		return
	}

	h.logger.Info("[AdminHandler][Reconcile] operator re-run", map[string]string{
		"transfer_id": c.Param("id"),
		"admin_id":    c.GetHeader(view.HeaderAdminID),
		"outcome":     string(outcome),
	})
	c.JSON(http.StatusOK, ReconcileResponse{Outcome: string(outcome), Transfer: t})
}

func (h *handler) transferID(c *gin.Context, op string) (uint, bool) {
	id, ok := view.ParseID(c.Param("id"))
	if !ok {
		view.Error(c, h.logger, op, apperror.Newf(apperror.CodeNotFound, "bad transfer id"))
	}
	return id, ok
}
