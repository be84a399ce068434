package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/showrunner/pkg/response"
)

// RateLimiter counts requests per user in fixed Redis windows
type RateLimiter struct {
	redis *redis.Client
}

// NewRateLimiter returns a limiter on client. A nil client disables limiting.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{redis: client}
}

// Limit allows max requests per user in each window. Anonymous requests and
// Redis failures pass through.
func (rl *RateLimiter) Limit(bucket string, max int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUserID(c)
		if rl == nil || rl.redis == nil || user == "" || max <= 0 {
			return c.Next()
		}

		key := "ratelimit:" + bucket + ":" + user
		count, ttl, err := rl.hit(c.UserContext(), key, window)
		if err != nil {
			slog.Warn("rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(max))
		if count > int64(max) {
			c.Set("X-RateLimit-Remaining", "0")
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())))
			return response.RateLimited(c)
		}
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(int64(max)-count, 10))
		return c.Next()
	}
}

// hit increments key and starts its window on first use, in one round trip.
func (rl *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := rl.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

// ShowLimit caps show creation and starts per user per hour.
func (rl *RateLimiter) ShowLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("shows", maxPerHour, time.Hour)
}

// TrackLimit caps track submissions per user per hour.
func (rl *RateLimiter) TrackLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("tracks", maxPerHour, time.Hour)
}
