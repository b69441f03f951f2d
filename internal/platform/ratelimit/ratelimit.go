package ratelimit

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindowLua counts hits in a window that starts with the first hit.
// Returns {count, pttl_ms}.
const fixedWindowLua = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

type Decision struct {
	Allowed    bool
	Count      int64
	Remaining  int64
	RetryAfter time.Duration
}

type RedisLimiter struct {
	rdb    *redis.Client
	prefix string
	script *redis.Script
}

func NewRedisLimiter(rdb *redis.Client, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "signnatural:ratelimit"
	}
	return &RedisLimiter{
		rdb:    rdb,
		prefix: prefix,
		script: redis.NewScript(fixedWindowLua),
	}
}

// Allow records one hit for key and reports whether it stays within max per
// window. Keys are hashed so raw IPs and emails never reach Redis.
func (l *RedisLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) (Decision, error) {
	if max <= 0 || window <= 0 {
		return Decision{Allowed: true}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := l.script.Run(ctx, l.rdb, []string{l.redisKey(key)}, window.Milliseconds()).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit eval: %w", err)
	}
	values, ok := res.([]interface{})
	if !ok || len(values) < 2 {
		return Decision{}, fmt.Errorf("ratelimit invalid result")
	}

	count := toInt64(values[0])
	ttl := time.Duration(toInt64(values[1])) * time.Millisecond

	d := Decision{
		Allowed:   count <= int64(max),
		Count:     count,
		Remaining: int64(max) - count,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}

func (l *RedisLimiter) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%s:%x", l.prefix, sum)
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if parsed, err := strconv.ParseInt(t, 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}
