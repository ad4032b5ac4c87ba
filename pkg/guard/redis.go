package guard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Fixed window: one counter per window start, expiring with the window.
var rateScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

// KEYS[1] failure zset, KEYS[2] ban marker.
// ARGV: now_ms, window_ms, max, ban_ms, member, record(0|1)
var lockoutScript = redis.NewScript(`
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local ban_ms = tonumber(ARGV[4])

local banned = redis.call('PTTL', KEYS[2])
if banned > 0 then
	return {1, banned, 0}
end

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now_ms - window_ms)
if ARGV[6] == '0' then
	return {0, 0, redis.call('ZCARD', KEYS[1])}
end

redis.call('ZADD', KEYS[1], now_ms, ARGV[5])
local n = redis.call('ZCARD', KEYS[1])
if n >= max then
	redis.call('DEL', KEYS[1])
	redis.call('SET', KEYS[2], '1', 'PX', ban_ms)
	return {1, ban_ms, n}
end
redis.call('PEXPIRE', KEYS[1], window_ms)
return {0, 0, n}
`)

// Redis is a Limiter shared by every instance pointing at the same server.
// Each operation is a single Lua script, so it is atomic per key.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	now    func() time.Time
}

type RedisOption func(*Redis)

// WithPrefix namespaces keys. Defaults to "marquee:guard:".
func WithPrefix(p string) RedisOption {
	return func(r *Redis) { r.prefix = p }
}

// WithRedisClock replaces time.Now. Window bucketing uses this clock; key
// expiry uses the server's.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) { r.now = now }
}

func NewRedis(rdb redis.Cmdable, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, prefix: "marquee:guard:", now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Limiter = (*Redis)(nil)

func (r *Redis) CheckRateLimit(ctx context.Context, key string, window time.Duration, max int) (RateResult, error) {
	now := r.now()
	start := windowStart(now, window)
	k := r.prefix + "rate:" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10)

	count, err := rateScript.Run(ctx, r.rdb, []string{k}, window.Milliseconds()).Int()
	if err != nil {
		return RateResult{}, fmt.Errorf("guard: rate script: %w", err)
	}
	if count > max {
		return RateResult{OK: false, RetryAfter: start.Add(window).Sub(now)}, nil
	}
	return RateResult{OK: true, Remaining: max - count}, nil
}

func (r *Redis) CheckLockout(ctx context.Context, key string, p LockoutPolicy) (LockoutStatus, error) {
	return r.lockout(ctx, key, p, false)
}

func (r *Redis) RecordFailure(ctx context.Context, key string, p LockoutPolicy) (LockoutStatus, error) {
	return r.lockout(ctx, key, p, true)
}

func (r *Redis) ClearFailures(ctx context.Context, key string) error {
	if err := r.rdb.Del(ctx, r.failKey(key)).Err(); err != nil {
		return fmt.Errorf("guard: clear failures: %w", err)
	}
	return nil
}

func (r *Redis) failKey(key string) string { return r.prefix + "fail:" + key }
func (r *Redis) banKey(key string) string  { return r.prefix + "ban:" + key }

func (r *Redis) lockout(ctx context.Context, key string, p LockoutPolicy, record bool) (LockoutStatus, error) {
	now := r.now()
	flag := "0"
	if record {
		flag = "1"
	}

	vals, err := lockoutScript.Run(ctx, r.rdb,
		[]string{r.failKey(key), r.banKey(key)},
		now.UnixMilli(),
		p.Window.Milliseconds(),
		p.Max,
		p.Ban.Milliseconds(),
		failureMember(now),
		flag,
	).Int64Slice()
	if err != nil {
		return LockoutStatus{}, fmt.Errorf("guard: lockout script: %w", err)
	}
	if len(vals) != 3 {
		return LockoutStatus{}, fmt.Errorf("guard: unexpected lockout script result %v", vals)
	}

	return LockoutStatus{
		Locked:     vals[0] == 1,
		RetryAfter: time.Duration(vals[1]) * time.Millisecond,
		Failures:   int(vals[2]),
	}, nil
}

// failureMember makes each zset entry unique even within one millisecond.
func failureMember(now time.Time) string {
	var b [6]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatInt(now.UnixNano(), 10) + "-" + hex.EncodeToString(b[:])
}
