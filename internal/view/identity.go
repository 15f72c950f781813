package view

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID    = "X-User-ID"
	HeaderAdminID   = "X-Admin-ID"
	HeaderRequestID = "X-Request-ID"

	UserIDKey    = "user_id"
	AdminIDKey   = "admin_id"
	RequestIDKey = "request_id"
)

// UserID is the caller set by the identity middleware.
func UserID(c *gin.Context) uint {
	return c.GetUint(UserIDKey)
}

func AdminID(c *gin.Context) uint {
	return c.GetUint(AdminIDKey)
}

// ParseID parses a positive decimal id.
func ParseID(raw string) (uint, bool) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
