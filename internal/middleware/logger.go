package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/multiguard/pkg/logger"
)

const (
	CtxRequestIDKey = "requestID"
	requestIDHeader = "X-Request-ID"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(CtxRequestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// Logger writes a structured access log for each request, tagged with the
// guard and principal that authenticated it, if any.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if id := c.GetString(CtxRequestIDKey); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}
		if guard := c.GetString(CtxGuardKey); guard != "" {
			fields = append(fields, zap.String("guard", guard), zap.String("principal_id", c.GetString(CtxPrincipalIDKey)))
		}

		log := logger.WithModule("http")
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
