package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// Increments one dimension atomically and returns the delay in ms.
var loginFailureScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local base_ms = tonumber(ARGV[2])
local max_ms = tonumber(ARGV[3])
local window_ms = tonumber(ARGV[4])
local free = tonumber(ARGV[5])

local key = KEYS[1]
local count = tonumber(redis.call("HGET", key, "count") or "0")
local last_ms = tonumber(redis.call("HGET", key, "last_failure_ms") or "0")
if last_ms == 0 or (now_ms - last_ms) > window_ms then
  count = 0
end

count = count + 1
local delay = 0
if count > free then
  delay = math.floor(base_ms * (2 ^ (count - free - 1)))
end
if delay > max_ms then
  delay = max_ms
end

redis.call("HSET", key, "count", tostring(count), "last_failure_ms", tostring(now_ms), "cooldown_until_ms", tostring(now_ms + delay))
redis.call("PEXPIRE", key, window_ms + delay + 60000)
return delay
`)

type RedisLoginThrottle struct {
	client redis.UniversalClient
	prefix string
	policy BackoffPolicy
	now    func() time.Time
}

func NewRedisLoginThrottle(client redis.UniversalClient, prefix string, policy BackoffPolicy) *RedisLoginThrottle {
	if prefix == "" {
		prefix = "login_throttle"
	}
	return &RedisLoginThrottle{
		client: client,
		prefix: prefix,
		policy: normalizeBackoffPolicy(policy),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (t *RedisLoginThrottle) Check(ctx context.Context, email, ip string) (time.Duration, error) {
	now := t.now()
	byEmail, err := t.active(ctx, t.key(emailDimension(email)), now)
	if err != nil {
		return 0, err
	}
	byIP, err := t.active(ctx, t.key(ipDimension(ip)), now)
	if err != nil {
		return 0, err
	}
	return max(byEmail, byIP), nil
}

func (t *RedisLoginThrottle) RegisterFailure(ctx context.Context, email, ip string) (time.Duration, error) {
	nowMS := t.now().UnixMilli()
	byEmail, err := t.bump(ctx, t.key(emailDimension(email)), nowMS)
	if err != nil {
		return 0, err
	}
	byIP, err := t.bump(ctx, t.key(ipDimension(ip)), nowMS)
	if err != nil {
		return 0, err
	}
	return max(byEmail, byIP), nil
}

func (t *RedisLoginThrottle) Reset(ctx context.Context, email, ip string) error {
	return t.client.Del(ctx, t.key(emailDimension(email)), t.key(ipDimension(ip))).Err()
}

func (t *RedisLoginThrottle) bump(ctx context.Context, key string, nowMS int64) (time.Duration, error) {
	res, err := loginFailureScript.Run(ctx, t.client, []string{key},
		nowMS,
		t.policy.Base.Milliseconds(),
		t.policy.Max.Milliseconds(),
		t.policy.Window.Milliseconds(),
		t.policy.FreeAttempts,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	ms, err := redisInt64(res)
	if err != nil {
		return 0, err
	}
	return time.Duration(max(ms, 0)) * time.Millisecond, nil
}

func (t *RedisLoginThrottle) active(ctx context.Context, key string, now time.Time) (time.Duration, error) {
	values, err := t.client.HMGet(ctx, key, "last_failure_ms", "cooldown_until_ms").Result()
	if err != nil {
		return 0, fmt.Errorf("read login failures: %w", err)
	}
	if len(values) != 2 || values[0] == nil || values[1] == nil {
		return 0, nil
	}
	lastMS, err := redisInt64(values[0])
	if err != nil {
		return 0, err
	}
	untilMS, err := redisInt64(values[1])
	if err != nil {
		return 0, err
	}
	nowMS := now.UnixMilli()
	if nowMS-lastMS > t.policy.Window.Milliseconds() || untilMS <= nowMS {
		return 0, nil
	}
	return time.Duration(untilMS-nowMS) * time.Millisecond, nil
}

// key hashes the dimension so raw emails never appear in redis.
func (t *RedisLoginThrottle) key(dimension string) string {
	sum := sha256.Sum256([]byte(dimension))
	return t.prefix + ":" + hex.EncodeToString(sum[:16])
}

func redisInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis value overflows int64")
		}
		return int64(n), nil
	case string:
		var out int64
		if _, err := fmt.Sscan(n, &out); err != nil {
			return 0, fmt.Errorf("parse redis value %q: %w", n, err)
		}
		return out, nil
	default:
		return 0, fmt.Errorf("unexpected redis value type %T", v)
	}
}
