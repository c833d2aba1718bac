package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ticketera/backend/internal/helpers"
)

// RateLimitMiddleware caps requests per caller in a fixed window using a
// Redis counter. Authenticated callers are keyed by user id, anonymous ones
// by client IP. A nil client disables limiting.
func RateLimitMiddleware(redisClient *redis.Client, limit int64, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if redisClient == nil {
			c.Next()
			return
		}

		key := "ratelimit:ip:" + c.ClientIP()
		if userID, exists := c.Get("user_id"); exists {
			if id, ok := userID.(uuid.UUID); ok {
				key = "ratelimit:user:" + id.String()
			}
		}
		key = fmt.Sprintf("%s:%s", key, c.FullPath())

		count, err := redisClient.Incr(c.Request.Context(), key).Result()
		if err != nil {
			// Limiting is best effort; never block traffic on Redis loss.
			c.Next()
			return
		}
		if count == 1 {
			redisClient.Expire(c.Request.Context(), key, window)
		}
		if count > limit {
			helpers.RespondWithCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}
