package oracle

import "github.com/gin-gonic/gin"

type IHandler interface {
	LockRate(c *gin.Context)
	GetRate(c *gin.Context)
	GetCurrentRate(c *gin.Context)
	Calculate(c *gin.Context)
}
