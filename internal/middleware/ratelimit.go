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

// RateLimiter counts requests per client IP in fixed windows kept in Redis,
// so every server instance shares the same budget.
type RateLimiter struct {
	rdb    *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter creates a limiter backed by rdb.
func NewRateLimiter(rdb *redis.Client, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{rdb: rdb, logger: logger, now: time.Now}
}

// Limit returns middleware allowing at most max requests per IP per window
// for the named endpoint. Over the limit it answers 429 with Retry-After.
// If Redis is unreachable the request is let through.
func (l *RateLimiter) Limit(name string, max int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			now := l.now()
			bucket := now.UnixNano() / int64(window)
			key := fmt.Sprintf("ratelimit:%s:%s:%d", name, c.RealIP(), bucket)

			count, err := l.incr(c.Request().Context(), key, window)
			if err != nil {
				l.logger.Warn("rate limiter unavailable",
					slog.String("limit", name),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > int64(max) {
				windowEnd := time.Unix(0, (bucket+1)*int64(window))
				retry := int(windowEnd.Sub(now).Seconds()) + 1
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests, please try again later")
			}
			return next(c)
		}
	}
}

// incr bumps the window counter and sets its expiry on first use.
func (l *RateLimiter) incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
