package middleware

import (
	"time"

	"hive/internal/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Logger writes one access log entry per request including request_id.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
			zap.String("ip", c.ClientIP()),
		}
		if rc := RequestContext(c); rc.UserID > 0 {
			fields = append(fields, zap.Int64("user_id", int64(rc.UserID)))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= 500:
			utils.L().Error("http request", fields...)
		case status >= 400:
			utils.L().Warn("http request", fields...)
		default:
			utils.L().Info("http request", fields...)
		}
	}
}
