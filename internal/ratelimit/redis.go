package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const bucketKeyPrefix = "ratelimit:bucket:"

// consumeScript refills both buckets from elapsed time and consumes one
// token from each only when both hold at least one. Running as a single
// script makes the cross-bucket read-modify-write atomic, so concurrent
// requests from the same user cannot corrupt token counts.
//
// KEYS[1] minute bucket, KEYS[2] hour bucket.
// ARGV: now_ms, minute_cap, minute_rate, hour_cap, hour_rate, ttl_ms.
// Returns {allowed, minute_tokens, hour_tokens} with tokens as strings to
// keep float precision across the Lua/Redis boundary.
var consumeScript = redis.NewScript(`
local function refill(key, cap, rate, now_ms)
  local data = redis.call('HMGET', key, 'tokens', 'last')
  local tokens = tonumber(data[1])
  local last = tonumber(data[2])
  if tokens == nil or last == nil then
    return cap
  end
  local elapsed = (now_ms - last) / 1000.0
  if elapsed < 0 then elapsed = 0 end
  tokens = tokens + elapsed * rate
  if tokens > cap then tokens = cap end
  if tokens < 0 then tokens = 0 end
  return tokens
end

local now_ms = tonumber(ARGV[1])
local m = refill(KEYS[1], tonumber(ARGV[2]), tonumber(ARGV[3]), now_ms)
local h = refill(KEYS[2], tonumber(ARGV[4]), tonumber(ARGV[5]), now_ms)

local allowed = 0
if m >= 1 and h >= 1 then
  allowed = 1
  m = m - 1
  h = h - 1
end

local ttl = tonumber(ARGV[6])
redis.call('HSET', KEYS[1], 'tokens', m, 'last', now_ms)
redis.call('PEXPIRE', KEYS[1], ttl)
redis.call('HSET', KEYS[2], 'tokens', h, 'last', now_ms)
redis.call('PEXPIRE', KEYS[2], ttl)

return {allowed, tostring(m), tostring(h)}
`)

// RedisStore implements Store on a shared Redis instance
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Ping checks Redis reachability
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Consume runs the atomic refill-and-consume script for both buckets
func (s *RedisStore) Consume(ctx context.Context, userID string, cfg Config, now time.Time) (State, error) {
	keys := []string{
		bucketKeyPrefix + userID + ":minute",
		bucketKeyPrefix + userID + ":hour",
	}
	// Idle buckets refill to capacity well within two hours, so let the
	// keys expire instead of accumulating
	const ttlMS = int64(2 * time.Hour / time.Millisecond)

	args := []any{
		now.UnixMilli(),
		cfg.MinuteCapacity(),
		cfg.MinuteRefillRate(),
		float64(cfg.HourCapacity),
		cfg.HourRefillRate(),
		ttlMS,
	}

	raw, err := consumeScript.Run(ctx, s.client, keys, args...).Result()
	if err != nil {
		return State{}, fmt.Errorf("rate limit script failed: %w", err)
	}

	reply, ok := raw.([]any)
	if !ok || len(reply) != 3 {
		return State{}, fmt.Errorf("unexpected rate limit script reply: %v", raw)
	}

	allowed, _ := reply[0].(int64)
	minuteTokens, err := parseScriptFloat(reply[1])
	if err != nil {
		return State{}, err
	}
	hourTokens, err := parseScriptFloat(reply[2])
	if err != nil {
		return State{}, err
	}

	return State{
		Allowed:      allowed == 1,
		MinuteTokens: minuteTokens,
		HourTokens:   hourTokens,
	}, nil
}

func parseScriptFloat(v any) (float64, error) {
	switch t := v.(type) {
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("bad token count from script: %w", err)
		}
		return f, nil
	case int64:
		return float64(t), nil
	default:
		return 0, fmt.Errorf("bad token count type %T from script", v)
	}
}

var _ Store = (*RedisStore)(nil)
