package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// RateLimitConfig configures NewRateLimiter.
type RateLimitConfig struct {
	// Requests is the number of requests allowed per period.
	Requests int64
	// Period is a duration string (e.g., "1m", "1h", "24h").
	Period string
	// Prefix namespaces the counters, so separate limiters do not share them.
	Prefix string
	// Redis shares the counters between instances. Nil keeps them in memory.
	Redis redis.UniversalClient
}

// NewRateLimiter creates a Gin middleware limiting requests per client IP.
func NewRateLimiter(cfg RateLimitConfig) (gin.HandlerFunc, error) {
	duration, err := time.ParseDuration(cfg.Period)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit period %q: %w", cfg.Period, err)
	}
	if cfg.Requests <= 0 {
		return nil, fmt.Errorf("invalid rate limit of %d requests", cfg.Requests)
	}

	rate := limiter.Rate{
		Period: duration,
		Limit:  cfg.Requests,
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "delivery_limiter"
	}

	var store limiter.Store
	if cfg.Redis != nil {
		store, err = sredis.NewStoreWithOptions(cfg.Redis, limiter.StoreOptions{Prefix: prefix})
		if err != nil {
			return nil, fmt.Errorf("create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          prefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}

	return mgin.NewMiddleware(limiter.New(store, rate)), nil
}

// BodyLimitMiddleware returns a Gin middleware that limits the size of request bodies.
// Reading past maxBytes fails, which binding reports as a bad request.
func BodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil && c.Request.Body != http.NoBody {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
