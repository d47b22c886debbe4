package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/sma-attendance-api/pkg/errors"
	"github.com/noah-isme/sma-attendance-api/pkg/response"
)

// RateCounter increments a windowed counter and returns its value.
type RateCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimitObserver is notified of rejected requests.
type RateLimitObserver interface {
	RecordRateLimited()
}

// RateLimit caps requests per caller in fixed windows. Counter failures let the request through.
func RateLimit(counter RateCounter, limit int, window time.Duration, observer RateLimitObserver, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if counter == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if claims := CurrentClaims(c); claims != nil {
			key = "user:" + claims.UserID
		}

		count, err := counter.Increment(c.Request.Context(), key, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		remaining := int64(limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(limit) {
			if observer != nil {
				observer.RecordRateLimited()
			}
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.Abort(c, appErrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}
