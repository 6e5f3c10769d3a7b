package middleware

import (
	"time"

	"github.com/lifeislearningforever/Trade-Management-System-sub001/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start).Seconds()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.LatencyBucket.WithLabelValues(endpoint).Observe(duration)
	}
}
