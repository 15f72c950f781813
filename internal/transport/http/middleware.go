package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
	"github.com/dwarvesf/custody-backend/internal/view"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(view.HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(view.RequestIDKey, id)
		c.Header(view.HeaderRequestID, id)
		c.Next()
	}
}

// requireIdentity reads the caller id the gateway forwards in header and
// stores it under key. Authenticating the header is the gateway's job.
func requireIdentity(header, key string, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := view.ParseID(c.GetHeader(header))
		if !ok {
			logger.Warn("[HTTP][Identity] missing or malformed caller header", map[string]string{
				"header":     header,
				"path":       c.FullPath(),
				"request_id": c.GetString(view.RequestIDKey),
			})
			forbidden := apperror.New(apperror.CodeForbidden)
			c.AbortWithStatusJSON(http.StatusForbidden, view.ErrorResponse{
				Message: forbidden.Message(),
				Code:    string(forbidden.Code),
			})
			return
		}
		c.Set(key, id)
		c.Next()
	}
}
