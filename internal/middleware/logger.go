package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/clinic-settings/pkg/logger"
)

// Logger returns a middleware that logs HTTP requests. Bodies are not
// logged since they carry clinic configuration.
func Logger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"path", path,
			"ip", c.ClientIP(),
			"status", status,
			"duration", time.Since(start).String(),
			"user_agent", c.Request.UserAgent(),
		}
		if clinicID := ClinicID(c); clinicID != 0 {
			fields = append(fields, "clinic_id", clinicID)
		}

		reqLog := log.WithContext(c.Request.Context())
		switch {
		case status >= 500:
			reqLog.Warn("Server error", fields...)
		case status >= 400:
			reqLog.Info("Client error", fields...)
		default:
			reqLog.Info("Request processed", fields...)
		}
	}
}
