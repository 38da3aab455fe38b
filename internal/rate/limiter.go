package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Rule is a request budget per window for one route class.
type Rule struct {
	Budget int
	Window time.Duration
}

// Config holds the limiter key namespace and per-class rules.
type Config struct {
	Prefix  string
	Default Rule
	Classes map[string]Rule
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// admitScript: INCRBY, arm the window TTL on the first hit, compare with the
// budget. Returns {allowed, remaining, retry_after_ms}.
const admitScript = `
local count = redis.call("INCRBY", KEYS[1], ARGV[1])
if count == tonumber(ARGV[1]) then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local budget = tonumber(ARGV[3])
if count > budget then
  local ttl = redis.call("PTTL", KEYS[1])
  if ttl < 0 then
    ttl = tonumber(ARGV[2])
  end
  return {0, 0, ttl}
end
return {1, budget - count, 0}
`

var admitLua = redis.NewScript(admitScript)

// Limiter enforces per-(class, identity) request budgets using Redis
// counters. Safe for concurrent use; bucket state is shared across every
// process pointed at the same Redis.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ag:rl"
	}
	return &Limiter{redis: redisClient, config: cfg}
}

func (l *Limiter) key(class, identity string) string {
	return l.config.Prefix + ":" + class + ":" + identity
}

func (l *Limiter) rule(class string) Rule {
	if rule, ok := l.config.Classes[class]; ok {
		return rule
	}
	return l.config.Default
}

// Admit consumes cost units from the (class, identity) bucket. The
// increment-and-compare runs as one Lua script, so two racing admits for the
// same key can never both squeeze past the budget.
func (l *Limiter) Admit(ctx context.Context, class, identity string, cost int) (Decision, error) {
	if cost <= 0 {
		cost = 1
	}
	rule := l.rule(class)

	result, err := admitLua.Run(
		ctx,
		l.redis,
		[]string{l.key(class, identity)},
		cost,
		rule.Window.Milliseconds(),
		rule.Budget,
	).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	parts, ok := result.([]interface{})
	if !ok || len(parts) != 3 {
		return Decision{}, fmt.Errorf("%w: invalid admit script response", ErrRedisUnavailable)
	}

	allowed, ok := parts[0].(int64)
	if !ok {
		return Decision{}, fmt.Errorf("%w: invalid admit script status", ErrRedisUnavailable)
	}
	remaining, _ := parts[1].(int64)
	retryMs, _ := parts[2].(int64)

	return Decision{
		Allowed:    allowed == 1,
		Remaining:  int(remaining),
		RetryAfter: time.Duration(retryMs) * time.Millisecond,
	}, nil
}

// Reset clears the bucket for a (class, identity) pair. Used after a
// successful login so earlier failed attempts stop counting against the
// identity.
func (l *Limiter) Reset(ctx context.Context, class, identity string) error {
	if err := l.redis.Del(ctx, l.key(class, identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
