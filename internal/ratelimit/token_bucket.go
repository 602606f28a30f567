// Package ratelimit is a redis-backed token bucket shared by every API
// instance: one bucket per client key, continuous refill.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/trunkgate/internal/clock"
	"github.com/smallbiznis/trunkgate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyPrefix = "trunkgate:rl:"

// The clock is passed in from Go so every instance refills against the
// same timeline and tests stay deterministic. Tokens travel as a string
// because redis truncates Lua floats on the way out.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)
return {allowed, tostring(tokens)}
`

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Redis  *redis.Client
	Clock  clock.Clock
}

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
	log    *zap.Logger
	clock  clock.Clock
	rate   int
	burst  int
}

// Result reports one admission decision.
type Result struct {
	Allowed    bool
	Remaining  float64
	RetryAfter time.Duration
}

func New(p Params) *TokenBucket {
	return &TokenBucket{
		client: p.Redis,
		script: redis.NewScript(tokenBucketScript),
		log:    p.Log.Named("ratelimit"),
		clock:  p.Clock,
		rate:   p.Config.RateLimitRPS,
		burst:  p.Config.RateLimitBurst,
	}
}

// Enabled reports whether limiting is configured at all.
func (t *TokenBucket) Enabled() bool { return t != nil && t.rate > 0 && t.burst > 0 }

// Allow spends one token from the key's bucket.
func (t *TokenBucket) Allow(ctx context.Context, key string) (*Result, error) {
	ttl := 2 * time.Duration(t.burst/t.rate+1) * time.Second
	res, err := t.script.Run(ctx, t.client,
		[]string{keyPrefix + key},
		t.rate,
		t.burst,
		t.clock.Now().UnixMilli(),
		ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, redis.Nil
	}

	allowed, _ := res[0].(int64)
	remaining := 0.0
	if s, ok := res[1].(string); ok {
		remaining, _ = strconv.ParseFloat(s, 64)
	}

	out := &Result{Allowed: allowed == 1, Remaining: remaining}
	if !out.Allowed {
		needed := 1.0 - remaining
		if needed > 0 {
			out.RetryAfter = time.Duration(needed / float64(t.rate) * float64(time.Second))
		}
	}
	return out, nil
}

var Module = fx.Module("ratelimit",
	fx.Provide(New),
)
