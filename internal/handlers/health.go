package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/multiguard/internal/monitoring"
	"github.com/charlesng35/multiguard/pkg/response"
)

// Health evaluates the readiness probes and answers 503 when any is not up.
func Health(health *monitoring.HealthManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(requestContext(c))
		if !report.Success {
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Data:  report,
				Error: &response.ErrorInfo{Code: "UNHEALTHY", Message: "Service unavailable."},
			})
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}

// Welcome answers the public landing page.
func Welcome(c *gin.Context) {
	view(c, "welcome", nil)
}
