package transfer

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/custody-backend/internal/ledger"
	"github.com/dwarvesf/custody-backend/internal/model"
	"github.com/dwarvesf/custody-backend/internal/reconciler"
	"github.com/dwarvesf/custody-backend/internal/transfer"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

const defaultPageSize = 20

type handler struct {
	transfers transfer.IService
	ledger    ledger.ILedger
	queue     reconciler.IQueue
	logger    *logger.Logger
}

func New(transfers transfer.IService, ledger ledger.ILedger, queue reconciler.IQueue, logger *logger.Logger) IHandler {
	return &handler{
		transfers: transfers,
		ledger:    ledger,
		queue:     queue,
		logger:    logger,
	}
}

// CreateDeposit godoc
// @Summary Create a deposit
// @Description Creates a pending deposit priced with a locked rate
// @id createDeposit
// @Tags Transfer
// @Accept json
// @Produce json
// @Param X-User-ID header int true "Caller"
// @Param request body CreateDepositRequest true "Deposit"
// @Success 201 {object} model.Transfer
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /deposits [post]
func (h *handler) CreateDeposit(c *gin.Context) {
	var req CreateDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		view.BadRequest(c, err)
		return
	}

	t, err := h.transfers.CreateDeposit(c.Request.Context(), transfer.CreateDepositRequest{
		UserID:      view.UserID(c),
		FixedRateID: req.FixedRateID,
		Amount:      req.Amount,
		FromAddress: req.FromAddress,
	})
	if err != nil {
		view.Error(c, h.logger, "[TransferHandler][CreateDeposit]", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// CreateWithdrawal godoc
// @Summary Create a withdrawal
// @Description Creates a pending withdrawal and reserves its amount from the balance
// @id createWithdrawal
// @Tags Transfer
// @Accept json
// @Produce json
// @Param X-User-ID header int true "Caller"
// @Param request body CreateWithdrawalRequest true "Withdrawal"
// @Success 201 {object} model.Transfer
// @Failure 400 {object} view.ErrorResponse
// @Failure 422 {object} view.ErrorResponse
// @Router /withdrawals [post]
func (h *handler) CreateWithdrawal(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		view.BadRequest(c, err)
		return
	}

	t, err := h.transfers.CreateWithdrawal(c.Request.Context(), transfer.CreateWithdrawalRequest{
		UserID:            view.UserID(c),
		FixedRateID:       req.FixedRateID,
		Amount:            req.Amount,
		WithdrawalAddress: req.WithdrawalAddress,
	})
	if err != nil {
		view.Error(c, h.logger, "[TransferHandler][CreateWithdrawal]", err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// SubmitTx godoc
// @Summary Attach a transaction hash
// @Description Attaches the user's transaction hash to a pending transfer and queues its reconciliation
// @id submitTx
// @Tags Transfer
// @Accept json
// @Produce json
// @Param X-User-ID header int true "Caller"
// @Param id path int true "Transfer id"
// @Param request body SubmitTxRequest true "Transaction hash"
// @Success 200 {object} model.Transfer
// @Failure 400 {object} view.ErrorResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /transfers/{id}/tx [put]
func (h *handler) SubmitTx(c *gin.Context) {
	id, ok := view.ParseID(c.Param("id"))
	if !ok {
		view.Error(c, h.logger, "[TransferHandler][SubmitTx]", apperror.Newf(apperror.CodeInvalidInput, "bad transfer id"))
		return
	}
	var req SubmitTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		view.BadRequest(c, err)
		return
	}

	t, err := h.transfers.SubmitTxID(c.Request.Context(), view.UserID(c), id, req.TxID)
	if err != nil {
		view.Error(c, h.logger, "[TransferHandler][SubmitTx]", err)
		return
	}

	if h.queue != nil && !t.Status.IsTerminal() && !h.queue.Enqueue(t.ID, t.TxIDValue()) {
		h.logger.Debug("[TransferHandler][SubmitTx] reconciliation not queued, left for the scan", map[string]string{
			"transfer_id": c.Param("id"),
		})
	}
	c.JSON(http.StatusOK, t)
}

// GetTransfer godoc
// @Summary Get a transfer
// @id getTransfer
// @Tags Transfer
// @Produce json
// @Param X-User-ID header int true "Caller"
// @Param id path int true "Transfer id"
// @Success 200 {object} model.Transfer
// @Failure 404 {object} view.ErrorResponse
// @Router /transfers/{id} [get]
func (h *handler) GetTransfer(c *gin.Context) {
	id, ok := view.ParseID(c.Param("id"))
	if !ok {
		view.Error(c, h.logger, "[TransferHandler][GetTransfer]", apperror.Newf(apperror.CodeNotFound, "bad transfer id"))
		return
	}

	t, err := h.transfers.GetForUser(c.Request.Context(), view.UserID(c), id)
	if err != nil {
		view.Error(c, h.logger, "[TransferHandler][GetTransfer]", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// ListTransfers godoc
// @Summary List own transfers
// @id listTransfers
// @Tags Transfer
// @Produce json
// @Param X-User-ID header int true "Caller"
// @Param status query string false "pending, processed, completed or canceled"
// @Param type query string false "deposit or withdrawal"
// @Param limit query int false "Page size, at most 100"
// @Param offset query int false "Offset"
// @Success 200 {object} view.ListResponse[model.Transfer]
// @Failure 400 {object} view.ErrorResponse
// @Router /transfers [get]
func (h *handler) ListTransfers(c *gin.Context) {
	var req ListTransfersRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		view.BadRequest(c, err)
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultPageSize
	}

	userID := view.UserID(c)
	transfers, total, err := h.transfers.List(c.Request.Context(), model.TransferFilter{
		UserID: &userID,
		Status: model.TransferStatus(req.Status),
		Type:   model.TransferType(req.Type),
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		view.Error(c, h.logger, "[TransferHandler][ListTransfers]", err)
		return
	}
	c.JSON(http.StatusOK, page(transfers, total, req.Limit, req.Offset))
}

// GetBalance godoc
// @Summary Get own balance
// @id getBalance
// @Tags Balance
// @Produce json
// @Param X-User-ID header int true "Caller"
// @Success 200 {object} model.Balance
// @Router /balances/me [get]
func (h *handler) GetBalance(c *gin.Context) {
	balance, err := h.ledger.GetBalance(c.Request.Context(), view.UserID(c))
	if err != nil {
		view.Error(c, h.logger, "[TransferHandler][GetBalance]", err)
		return
	}
	c.JSON(http.StatusOK, balance)
}

func page(transfers []*model.Transfer, total int64, limit, offset int) view.ListResponse[model.Transfer] {
	data := make([]model.Transfer, 0, len(transfers))
	for _, t := range transfers {
		data = append(data, *t)
	}
	return view.ListResponse[model.Transfer]{Data: data, Total: total, Limit: limit, Offset: offset}
}
