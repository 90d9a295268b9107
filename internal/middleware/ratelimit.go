package middleware

import (
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/shopapp/pkg/errors"
	"github.com/charlesng35/shopapp/pkg/logger"
	"github.com/charlesng35/shopapp/pkg/metrics"
	"github.com/charlesng35/shopapp/pkg/response"
)

const rateLimitKeyPrefix = "ratelimit:"

// RateLimit limits requests per (client IP, route) within a fixed window.
// A failing store lets requests through rather than locking every client out.
func RateLimit(store RateStore, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil || maxRequests <= 0 || window <= 0 {
			c.Next()
			return
		}

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		count, ttl, err := store.Increment(c.Request.Context(), rateLimitKeyPrefix+c.ClientIP()+"|"+route, window)
		if err != nil {
			logger.WithModule("ratelimit").Warn("rate store unavailable",
				zap.String("route", route),
				zap.Error(err),
			)
			c.Next()
			return
		}

		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		resetIn := strconv.Itoa(int(math.Ceil(ttl.Seconds())))
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetIn)

		if count > maxRequests {
			metrics.RateLimitRejections.WithLabelValues(route).Inc()
			c.Header("Retry-After", resetIn)
			response.Error(c, apperrors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
