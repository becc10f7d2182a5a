package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// minSubmitWait keeps Wait from spinning when Redis reports a slot is free
// but a concurrent submitter took it first.
const minSubmitWait = 50 * time.Millisecond

// submitWindow admits a submission when fewer than ARGV[2] submissions were
// recorded in the last ARGV[3] ms. On refusal it returns how long until the
// oldest recorded submission leaves the window.
var submitWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local window = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local used = redis.call('ZCARD', key)
if used >= limit then
	local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
	local wait = window
	if oldest[2] then
		wait = tonumber(oldest[2]) + window - now
	end
	return {0, 0, wait}
end

redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return {1, limit - used - 1, 0}
`)

// RateLimiter spaces outbound job service submissions across every API
// replica sharing one Redis.
// ⭐ SSOT: 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
}

// RateLimitConfig is a sliding submission window
type RateLimitConfig struct {
	Key    string
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one admission check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// NewRateLimiter creates a limiter whose keys live under prefix
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{
		client: client,
		prefix: prefix,
	}
}

func (r *RateLimiter) key(cfg RateLimitConfig) string {
	return fmt.Sprintf("%s:submit-window:%s", r.prefix, cfg.Key)
}

// Allow records a submission if the window has room. A disabled client or a
// non-positive limit always admits.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (Decision, error) {
	if !r.client.Enabled() || cfg.Limit <= 0 {
		return Decision{Allowed: true, Remaining: cfg.Limit}, nil
	}

	out, err := submitWindow.Run(ctx, r.client.Redis(), []string{r.key(cfg)},
		time.Now().UnixMilli(),
		cfg.Limit,
		cfg.Window.Milliseconds(),
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("submission window check failed: %w", err)
	}
	if len(out) != 3 {
		return Decision{}, fmt.Errorf("submission window check returned %d values", len(out))
	}

	return Decision{
		Allowed:    out[0] == 1,
		Remaining:  int(out[1]),
		RetryAfter: time.Duration(out[2]) * time.Millisecond,
	}, nil
}

// Wait blocks until the submission is admitted or ctx ends
func (r *RateLimiter) Wait(ctx context.Context, cfg RateLimitConfig) error {
	for {
		d, err := r.Allow(ctx, cfg)
		if err != nil {
			return err
		}
		if d.Allowed {
			return nil
		}

		timer := time.NewTimer(backoff(d, cfg.Window))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoff bounds the server hint to [minSubmitWait, window]
func backoff(d Decision, window time.Duration) time.Duration {
	wait := d.RetryAfter
	if wait < minSubmitWait {
		wait = minSubmitWait
	}
	if window > 0 && wait > window {
		wait = window
	}
	return wait
}

// JobServiceRateLimit limits outbound submissions to the screening job service
func JobServiceRateLimit(perMinute int) RateLimitConfig {
	return RateLimitConfig{
		Key:    "jobservice",
		Limit:  perMinute,
		Window: time.Minute,
	}
}
