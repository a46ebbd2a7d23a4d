package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenBucket is a per-caller, per-action rate limiter backed by Redis so
// limits hold across restarts. The bucket state lives in a Redis hash and
// is updated atomically by a Lua script.
type TokenBucket struct {
	redis    *redis.Client
	capacity int64
	refill   int64 // tokens refilled per window
	window   time.Duration
}

func NewTokenBucket(redisClient *redis.Client, capacity, refillRate int64) *TokenBucket {
	return &TokenBucket{
		redis:    redisClient,
		capacity: capacity,
		refill:   refillRate,
		window:   time.Minute,
	}
}

const bucketScript = `
	local key = KEYS[1]
	local capacity = tonumber(ARGV[1])
	local refill_rate = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])
	local consume = tonumber(ARGV[5])

	local bucket = redis.call('HMGET', key, 'tokens', 'last_refill')
	local tokens = tonumber(bucket[1]) or capacity
	local last_refill = tonumber(bucket[2]) or now

	local elapsed = now - last_refill
	local refill = math.floor((elapsed / window) * refill_rate)
	if refill > 0 then
		tokens = math.min(capacity, tokens + refill)
		last_refill = now
	end

	local allowed = 0
	if consume == 1 and tokens > 0 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HMSET', key, 'tokens', tokens, 'last_refill', last_refill)
	redis.call('EXPIRE', key, window * 2)

	if consume == 1 then
		return allowed
	end
	return tokens
`

// Allow consumes one token for the caller/action pair, reporting whether
// the action may proceed.
func (tb *TokenBucket) Allow(ctx context.Context, caller, action string) (bool, error) {
	result, err := tb.eval(ctx, caller, action, 1)
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}

// Remaining reports the tokens currently left for the caller/action pair
// without consuming one.
func (tb *TokenBucket) Remaining(ctx context.Context, caller, action string) (int64, error) {
	result, err := tb.eval(ctx, caller, action, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to get remaining tokens: %w", err)
	}
	return result, nil
}

func (tb *TokenBucket) eval(ctx context.Context, caller, action string, consume int) (int64, error) {
	key := fmt.Sprintf("rate_limit:%s:%s", caller, action)
	now := time.Now().Unix()

	result, err := tb.redis.Eval(ctx, bucketScript, []string{key},
		tb.capacity, tb.refill, int64(tb.window.Seconds()), now, consume).Result()
	if err != nil {
		return 0, err
	}

	value, ok := result.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected result type from rate limit script")
	}
	return value, nil
}

// Reset clears the bucket for a caller/action pair.
func (tb *TokenBucket) Reset(ctx context.Context, caller, action string) error {
	key := fmt.Sprintf("rate_limit:%s:%s", caller, action)
	return tb.redis.Del(ctx, key).Err()
}
