package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterRegistry hands out one token bucket per actor. Anonymous traffic is
// bucketed by client IP instead so one unauthenticated source cannot starve
// the rest.
type limiterRegistry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

func newLimiterRegistry(qps float64, burst int) *limiterRegistry {
	if qps <= 0 {
		qps = 20
	}
	if burst <= 0 {
		burst = int(qps) * 2
	}
	return &limiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		qps:      rate.Limit(qps),
		burst:    burst,
	}
}

func (r *limiterRegistry) get(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	limiter, ok := r.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(r.qps, r.burst)
		r.limiters[key] = limiter
	}
	return limiter
}

func RateLimitMiddleware(qps float64, burst int) gin.HandlerFunc {
	registry := newLimiterRegistry(qps, burst)
	return func(c *gin.Context) {
		actor := CurrentActor(c)
		key := actor.ID
		if key == "" || key == "anonymous" {
			key = "ip:" + c.ClientIP()
		}

		if !registry.get(key).Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
