package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "trafficsim:ratelimit:"

// redisRateLimiter keeps fixed windows in Redis so several trafficd
// instances share one refresh budget. Redis errors fail open.
type redisRateLimiter struct {
	client  redis.Cmdable
	closer  func() error
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRedisRateLimiter connects to Redis and returns a shared limiter.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	rl := newRedisRateLimiter(client, logger)
	rl.closer = client.Close
	return rl, nil
}

func newRedisRateLimiter(client redis.Cmdable, logger *slog.Logger) *redisRateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisRateLimiter{
		client:  client,
		logger:  logger.With("component", "rate_limiter"),
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

// Allow increments the window counter and sets its expiry in one round trip.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), rl.timeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.ExpireNX(ctx, redisKey, window)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err != nil {
		rl.logger.Error("redis rate limiter error", "key", key, "error", err)
		return rateDecision{allowed: true}
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = window
	}
	count := int(incr.Val())
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: rl.now().Add(remaining),
	}
}

func (rl *redisRateLimiter) Close() {
	if rl.closer != nil {
		_ = rl.closer()
	}
}
