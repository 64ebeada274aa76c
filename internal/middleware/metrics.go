package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edudesk/edudesk-api/internal/service"
)

// Metrics observes every request's duration and status. Unmatched routes
// share one label so 404 scans cannot explode the path cardinality.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
