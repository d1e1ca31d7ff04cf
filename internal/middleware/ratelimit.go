package middleware

import (
	"fmt"
	"net/http"
	"time"

	"referral_rewards/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RateLimiter is a fixed-window per-client limiter backed by Redis. A nil
// limiter (no Redis configured) passes every request through.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) Limit(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl == nil || rl.client == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("ratelimit:%s:%s", scope, c.ClientIP())
		count, err := fixedWindowScript.Run(c.Request.Context(), rl.client,
			[]string{key}, rl.window.Milliseconds()).Int64()
		if err != nil {
			// Redis being down should not take the endpoint with it.
			logger.Logger().Error("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				gin.H{"error": "Too many requests from this IP, please try again later"})
			return
		}

		c.Next()
	}
}
