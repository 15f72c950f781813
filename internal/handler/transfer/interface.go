package transfer

import "github.com/gin-gonic/gin"

type IHandler interface {
	CreateDeposit(c *gin.Context)
	CreateWithdrawal(c *gin.Context)
	SubmitTx(c *gin.Context)
	GetTransfer(c *gin.Context)
	ListTransfers(c *gin.Context)
	GetBalance(c *gin.Context)
}
