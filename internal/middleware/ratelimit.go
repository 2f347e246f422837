package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// rateLimitKeyPrefix is the Redis key prefix for request counters.
const rateLimitKeyPrefix = "ratelimit:"

// RateLimiter counts requests per IP in fixed windows stored in Redis, so
// every server instance shares the same budget.
type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter creates a limiter backed by rdb.
func NewRateLimiter(rdb *redis.Client) *RateLimiter {
	return &RateLimiter{redis: rdb}
}

// Limit returns middleware that allows maxRequests per IP within window for
// the named scope and answers 429 beyond that. Redis failures let the
// request through: an outage must not lock everybody out of signing in.
func (l *RateLimiter) Limit(scope string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateLimitKeyPrefix + scope + ":" + c.RealIP()

			count, ttl, err := l.increment(c.Request().Context(), key, window)
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("scope", scope),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(maxRequests) {
				if ttl > 0 {
					retry := int(ttl.Round(time.Second) / time.Second)
					c.Response().Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error":   "Too Many Requests",
					"message": "Rate limit exceeded. Please try again later.",
				})
			}
			return next(c)
		}
	}
}

// increment bumps key, starting its window on the first hit. It returns
// the count and the time left in the window.
func (l *RateLimiter) increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("counting request: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("starting rate window: %w", err)
		}
		return count, window, nil
	}

	ttl, err := l.redis.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading rate window: %w", err)
	}
	return count, ttl, nil
}
