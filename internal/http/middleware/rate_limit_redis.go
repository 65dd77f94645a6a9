package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowScript opens the window on first hit and reports the hit count
// together with the milliseconds left in the window.
var fixedWindowScript = redis.NewScript(`
redis.call("SET", KEYS[1], 0, "PX", ARGV[1], "NX")
local hits = redis.call("INCR", KEYS[1])
return {hits, redis.call("PTTL", KEYS[1])}
`)

// RedisFixedWindowLimiter keeps counters in redis so every replica sees the
// same window.
type RedisFixedWindowLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisFixedWindowLimiter(client redis.UniversalClient, prefix string) *RedisFixedWindowLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &RedisFixedWindowLimiter{client: client, prefix: prefix}
}

func (l *RedisFixedWindowLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	if l.client == nil {
		return false, window, errors.New("rate limit: redis client not configured")
	}
	if key == "" {
		key = "unknown"
	}
	windowMS := max(window.Milliseconds(), 1000)

	hits, ttlMS, err := l.hit(ctx, l.prefix+":"+key, windowMS)
	if err != nil {
		return false, window, err
	}
	if hits <= int64(limit) {
		return true, 0, nil
	}
	if ttlMS <= 0 {
		ttlMS = windowMS
	}
	return false, time.Duration(ttlMS) * time.Millisecond, nil
}

func (l *RedisFixedWindowLimiter) hit(ctx context.Context, key string, windowMS int64) (int64, int64, error) {
	raw, err := fixedWindowScript.Run(ctx, l.client, []string{key}, windowMS).Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(raw) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(raw))
	}
	hits, err := parseRedisInt64(raw[0])
	if err != nil {
		return 0, 0, err
	}
	ttl, err := parseRedisInt64(raw[1])
	if err != nil {
		return 0, 0, err
	}
	return hits, ttl, nil
}

// parseRedisInt64 accepts only integer replies. Lua numbers always come
// back as integers, so a string here means the script is wrong.
func parseRedisInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("redis integer %d overflows int64", n)
		}
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unexpected redis reply %T(%v)", v, v)
	}
}
