package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const rateKeyPrefix = "rate:"

// RateLimiter is a fixed-window counter per sender. The window floors
// wall-clock time to a fixed interval; the counter is incremented with
// a single atomic server-side pipeline (INCR + EXPIRE) so concurrent
// messages for one sender never race.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	log    *slog.Logger

	// now is swappable in tests to pin the window boundary.
	now func() time.Time
}

// NewRateLimiter builds the limiter with a one-minute window by default.
// A nil client makes every check pass: rate limiting is protective, not
// a correctness requirement, so it fails open.
func NewRateLimiter(client *redis.Client, window time.Duration, log *slog.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	if log == nil {
		log = slog.Default()
	}

	return &RateLimiter{
		client: client,
		window: window,
		log:    log.With("component", "store.ratelimit"),
		now:    time.Now,
	}
}

// CheckAndIncrement counts this message against the sender's current
// window and reports whether it is still allowed. count == limit passes;
// only count > limit throttles. Store errors fail open.
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, sender string, limit int) (allowed bool, count int64) {
	if l.client == nil || limit <= 0 {
		return true, 0
	}

	windowStart := l.now().UTC().Truncate(l.window)
	key := fmt.Sprintf("%s%s:%d", rateKeyPrefix, sender, windowStart.Unix())

	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	// Expire a little past the window so a late read still sees the count.
	pipe.Expire(ctx, key, l.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		l.log.Warn("Rate window increment failed, allowing message", "sender", sender, "error", err)
		return true, 0
	}

	count = incr.Val()
	return count <= int64(limit), count
}
