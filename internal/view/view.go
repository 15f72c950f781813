package view

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/dwarvesf/custody-backend/internal/types/apperror"
	"github.com/dwarvesf/custody-backend/internal/utils/logger"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Message string   `json:"message"`
	Code    string   `json:"code"`
	Details []string `json:"details,omitempty"`
}

// ListResponse wraps one page of results.
type ListResponse[T any] struct {
	Data   []T   `json:"data"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

const (
	codeInternal     = "Internal"
	messageInternal  = "internal error"
	maxDetailEntries = 10
)

// CreateErrorResponse renders err as an ErrorResponse and its HTTP status.
// Only taxonomy messages are exposed; anything else becomes a generic 500.
func CreateErrorResponse(err error) (int, ErrorResponse) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return http.StatusBadRequest, invalidInput(validationErrs)
	}

	codes := apperror.Codes(err)
	if len(codes) == 0 {
		return http.StatusInternalServerError, ErrorResponse{Message: messageInternal, Code: codeInternal}
	}

	primary := apperror.New(codes[0])
	resp := ErrorResponse{Message: primary.Message(), Code: string(primary.Code)}
	if len(codes) > 1 {
		for _, code := range codes {
			resp.Details = append(resp.Details, string(code))
		}
	}
	return primary.HTTPStatus(), resp
}

// Error writes err to the response. Server-side failures are logged with
// their full chain; callers never see it.
func Error(c *gin.Context, l *logger.Logger, op string, err error) {
	status, resp := CreateErrorResponse(err)
	if status >= http.StatusInternalServerError && l != nil {
		l.Error(op+" request failed", map[string]string{
			"path":       c.FullPath(),
			"code":       resp.Code,
			"error":      err.Error(),
			"request_id": c.GetString(RequestIDKey),
		})
	}
	c.AbortWithStatusJSON(status, resp)
}

// BadRequest reports a request that could not be bound.
func BadRequest(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, invalidInput(validationErrs))
		return
	}
	msg := apperror.New(apperror.CodeInvalidInput)
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
		Message: msg.Message(),
		Code:    string(msg.Code),
		Details: []string{"malformed request body or query"},
	})
}

func invalidInput(errs validator.ValidationErrors) ErrorResponse {
	msg := apperror.New(apperror.CodeInvalidInput)
	resp := ErrorResponse{Message: msg.Message(), Code: string(msg.Code)}
	for i, fe := range errs {
		if i == maxDetailEntries {
			break
		}
		resp.Details = append(resp.Details, fe.Field()+": "+fe.Tag())
	}
	return resp
}
