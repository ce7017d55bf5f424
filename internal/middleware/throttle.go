package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/multiguard/pkg/errors"
	"github.com/charlesng35/multiguard/pkg/logger"
	"github.com/charlesng35/multiguard/pkg/response"
)

// Throttle limits requests per principal and route within a fixed window.
// Anonymous requests are keyed by client IP. Store failures let the request
// through.
func Throttle(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		identity := c.ClientIP()
		if id := c.GetString(CtxPrincipalIDKey); id != "" {
			identity = c.GetString(CtxGuardKey) + ":" + id
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := identity + "|" + c.Request.Method + " " + route

		count, ttl, err := store.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.WithModule("throttle").Warn("rate store unavailable", zap.Error(err))
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > maxRequests {
			retry := ttl
			if retry < time.Second {
				retry = time.Second
			}
			limited := *apperrors.ErrRateLimit
			limited.RetryAfter = retry
			response.Error(c, &limited)
			c.Abort()
			return
		}
		c.Next()
	}
}
