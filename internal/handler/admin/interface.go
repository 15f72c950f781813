package admin

import "github.com/gin-gonic/gin"

type IHandler interface {
	ListTransfers(c *gin.Context)
	Process(c *gin.Context)
	Confirm(c *gin.Context)
	Cancel(c *gin.Context)
	Reconcile(c *gin.Context)
}
