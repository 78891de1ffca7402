package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/clinic-settings/pkg/errors"
	"github.com/jwalitptl/clinic-settings/pkg/logger"
	"github.com/jwalitptl/clinic-settings/pkg/validator"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Details []validator.FieldError `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
}

func NewErrorResponse(c *gin.Context, err error) (int, ErrorResponse) {
	status := apperrors.StatusCode(err)
	resp := ErrorResponse{
		Code:    status,
		Message: apperrors.PublicMessage(err),
		TraceID: c.GetString(ContextRequestID),
	}
	var verrs validator.Errors
	if errors.As(err, &verrs) {
		resp.Message = "validation failed"
		resp.Details = verrs
	}
	return status, resp
}

// ErrorHandler renders the last error a handler attached with c.Error.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		reqLog := log.WithContext(c.Request.Context())
		for _, e := range c.Errors {
			fields := []interface{}{
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			}
			if apperrors.StatusCode(e.Err) >= http.StatusInternalServerError {
				reqLog.Error(e.Err, "request error", fields...)
			} else {
				reqLog.Debug("request rejected", append(fields, "error", e.Err.Error())...)
			}
		}

		if c.Writer.Written() {
			return
		}
		status, resp := NewErrorResponse(c, c.Errors.Last().Err)
		c.JSON(status, resp)
	}
}

func abortWithError(c *gin.Context, err error) {
	status, resp := NewErrorResponse(c, err)
	c.AbortWithStatusJSON(status, resp)
}
