package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/shopapp/internal/monitoring"
	"github.com/charlesng35/shopapp/pkg/errors"
	"github.com/charlesng35/shopapp/pkg/logger"
	"github.com/charlesng35/shopapp/pkg/response"
)

var errServiceUnavailable = errors.New("SERVICE_UNAVAILABLE", "Service unavailable", http.StatusServiceUnavailable)

// Health reports readiness. A degraded report still answers 200.
func Health(health *monitoring.Health) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(requestContext(c))
		if !report.Serving() {
			logger.WithModule("health").Warn("readiness check failed", zap.Any("checks", report.Checks))
			response.Error(c, errServiceUnavailable)
			return
		}
		response.Success(c, http.StatusOK, report)
	}
}
