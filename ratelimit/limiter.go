// Package ratelimit implements a sliding-window request limiter on Redis sorted sets.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Check(ctx context.Context, key string) (*Result, error)
}

type Config struct {
	Limit  int
	Window time.Duration
	Prefix string
}

// Every hit is a member scored by its timestamp in milliseconds. Hits older than the window
// are trimmed before counting; a denied request is not recorded.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
local allowed = 0
if count < limit then
  redis.call("ZADD", key, now, member)
  count = count + 1
  allowed = 1
end
redis.call("PEXPIRE", key, window)

local reset = now + window
local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, limit - count, reset}
`)

type SlidingWindow struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewSlidingWindow(client *redis.Client, cfg Config) *SlidingWindow {
	if cfg.Limit <= 0 {
		cfg.Limit = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &SlidingWindow{
		client: client,
		limit:  cfg.Limit,
		window: cfg.Window,
		prefix: cfg.Prefix,
		now:    time.Now,
	}
}

func (l *SlidingWindow) Check(ctx context.Context, key string) (*Result, error) {
	now := l.now().UnixMilli()
	raw, err := slidingWindowScript.Run(ctx, l.client, []string{l.prefix + key},
		now, l.window.Milliseconds(), l.limit, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if len(raw) != 3 {
		return nil, fmt.Errorf("rate limit check: unexpected reply %v", raw)
	}

	remaining := int(raw[1])
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   raw[0] == 1,
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   time.UnixMilli(raw[2]),
	}, nil
}
