package oracle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dwarvesf/custody-backend/internal/oracle"
	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

type handler struct {
	oracle     oracle.IOracle
	calculator oracle.ICalculator
	logger     *logger.Logger
	now        func() time.Time
}

func New(oracle oracle.IOracle, calculator oracle.ICalculator, logger *logger.Logger) IHandler {
	return &handler{
		oracle:     oracle,
		calculator: calculator,
		logger:     logger,
		now:        time.Now,
	}
}

// LockRate godoc
// @Summary Lock a rate
// @Description Locks a fresh USD rate for the network's currency for the configured TTL
// @id lockRate
// @Tags Rate
// @Accept json
// @Produce json
// @Param request body LockRateRequest true "Network to lock a rate for"
// @Success 200 {object} model.FixedRate
// @Failure 400 {object} view.ErrorResponse
// @Failure 503 {object} view.ErrorResponse
// @Router /rates/lock [post]
func (h *handler) LockRate(c *gin.Context) {
	var req LockRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		view.BadRequest(c, err)
		return
	}

	rate, err := h.oracle.Lock(c.Request.Context(), req.NetworkID)
	if err != nil {
		view.Error(c, h.logger, "[RateHandler][LockRate]", err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

// GetRate godoc
// @Summary Get a locked rate
// @Description Returns the rate while it is still valid
// @id getRate
// @Tags Rate
// @Produce json
// @Param id path int true "Fixed rate id"
// @Success 200 {object} model.FixedRate
// @Failure 404 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /rates/{id} [get]
func (h *handler) GetRate(c *gin.Context) {
	id, ok := view.ParseID(c.Param("id"))
	if !ok {
		view.Error(c, h.logger, "[RateHandler][GetRate]", apperror.Newf(apperror.CodeInvalidInput, "bad rate id"))
		return
	}

	rate, err := h.oracle.GetActive(c.Request.Context(), id)
	if err != nil {
		view.Error(c, h.logger, "[RateHandler][GetRate]", err)
		return
	}
	c.JSON(http.StatusOK, rate)
}

// GetCurrentRate godoc
// @Summary Get the scheduled rate lock
// @Description Returns the network's current scheduled lock and the time it has left
// @id getCurrentRate
// @Tags Rate
// @Produce json
// @Param network_id path int true "Network id"
// @Success 200 {object} CurrentRateResponse
// @Failure 404 {object} view.ErrorResponse
// @Failure 503 {object} view.ErrorResponse
// @Router /rates/current/{network_id} [get]
func (h *handler) GetCurrentRate(c *gin.Context) {
	networkID, ok := view.ParseID(c.Param("network_id"))
	if !ok {
		view.Error(c, h.logger, "[RateHandler][GetCurrentRate]", apperror.Newf(apperror.CodeInvalidInput, "bad network id"))
		return
	}

	rate, err := h.oracle.CurrentLock(c.Request.Context(), networkID)
	if err != nil {
		view.Error(c, h.logger, "[RateHandler][GetCurrentRate]", err)
		return
	}

	c.JSON(http.StatusOK, CurrentRateResponse{
		FixedRate:   rate,
		RemainingMs: rate.Remaining(h.now()).Milliseconds(),
	})
}

// Calculate godoc
// @Summary Calculate a conversion
// @Description Converts exactly one of a USD amount or a currency amount using an active rate
// @id calculate
// @Tags Rate
// @Accept json
// @Produce json
// @Param request body CalculateRequest true "Rate and amount"
// @Success 200 {object} CalculateResponse
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Router /rates/calculate [post]
func (h *handler) Calculate(c *gin.Context) {
	var req CalculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		view.BadRequest(c, err)
		return
	}

	quote, err := h.calculator.Calculate(c.Request.Context(), req.FixedRateID, req.Amount, req.CurrencyAmount)
	if err != nil {
		view.Error(c, h.logger, "[RateHandler][Calculate]", err)
		return
	}
	c.JSON(http.StatusOK, CalculateResponse{
		FixedRateID:    quote.FixedRate.ID,
		Amount:         quote.Amount,
		CurrencyAmount: quote.CurrencyAmount,
	})
}
