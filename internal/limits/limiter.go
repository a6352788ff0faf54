package limits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ncecere/speech_analysis/backend/internal/config"
)

var ErrLimitExceeded = errors.New("rate limit exceeded")

// LimitConfig holds the per-client budgets. Zero disables a budget.
type LimitConfig struct {
	RequestsPerMinute   int
	ParallelRequests    int
	AudioBytesPerMinute int
}

// FromConfig converts the configured limits.
func FromConfig(cfg config.RateLimitConfig) LimitConfig {
	return LimitConfig{
		RequestsPerMinute:   cfg.RequestsPerMinute,
		ParallelRequests:    cfg.ParallelRequests,
		AudioBytesPerMinute: cfg.AudioBytesPerMinute,
	}
}

// Enabled reports whether any budget is set.
func (c LimitConfig) Enabled() bool {
	return c.RequestsPerMinute > 0 || c.ParallelRequests > 0 || c.AudioBytesPerMinute > 0
}

// RateLimiter enforces fixed-window request and audio byte budgets plus a concurrency cap, all
// keyed by client.
type RateLimiter struct {
	client *redis.Client
	cfg    LimitConfig
}

func NewRateLimiter(client *redis.Client, cfg LimitConfig) *RateLimiter {
	return &RateLimiter{client: client, cfg: cfg}
}

// Allow admits one analysis request for key. A successful Allow must be paired with Release.
func (l *RateLimiter) Allow(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if l.cfg.RequestsPerMinute > 0 {
		if err := l.countCheck(ctx, fmt.Sprintf("rpm:%s", key), time.Minute, l.cfg.RequestsPerMinute); err != nil {
			return err
		}
	}
	if l.cfg.ParallelRequests > 0 {
		if err := l.semaphoreAcquire(ctx, fmt.Sprintf("sem:%s", key), l.cfg.ParallelRequests); err != nil {
			return err
		}
	}
	return nil
}

// Release frees the concurrency slot taken by Allow.
func (l *RateLimiter) Release(ctx context.Context, key string) {
	if l == nil || l.client == nil {
		return
	}
	if l.cfg.ParallelRequests > 0 {
		l.semaphoreRelease(ctx, fmt.Sprintf("sem:%s", key))
	}
}

// AudioAllowance charges size bytes of uploaded audio against the per-minute budget. A rejected
// charge is rolled back.
func (l *RateLimiter) AudioAllowance(ctx context.Context, key string, size int) error {
	if l == nil || l.client == nil || l.cfg.AudioBytesPerMinute <= 0 {
		return nil
	}
	redisKey := fmt.Sprintf("bpm:%s:%d", key, time.Now().UTC().Unix()/60)

	used, err := l.client.IncrBy(ctx, redisKey, int64(size)).Result()
	if err != nil {
		return err
	}
	if used == int64(size) {
		l.client.Expire(ctx, redisKey, time.Minute)
	}
	if used > int64(l.cfg.AudioBytesPerMinute) {
		l.client.IncrBy(ctx, redisKey, -int64(size))
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) countCheck(ctx context.Context, key string, ttl time.Duration, limit int) error {
	now := time.Now().UTC().Unix() / int64(ttl.Seconds())
	redisKey := fmt.Sprintf("%s:%d", key, now)

	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, redisKey, ttl)
	}
	if int(cnt) > limit {
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreAcquire(ctx context.Context, key string, max int) error {
	ttl := 5 * time.Minute
	cnt, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if cnt == 1 {
		l.client.Expire(ctx, key, ttl)
	}
	if int(cnt) > max {
		l.client.Decr(ctx, key)
		return ErrLimitExceeded
	}
	return nil
}

func (l *RateLimiter) semaphoreRelease(ctx context.Context, key string) {
	l.client.Decr(ctx, key)
}
