package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrJTIMismatch is returned by Rotate when the presented jti is not the
	// recorded active one. The store has already invalidated the session by
	// the time callers see this.
	ErrJTIMismatch = errors.New("refresh jti mismatch")
	// ErrNotFound is returned when no active session exists for the subject.
	ErrNotFound = errors.New("refresh session not found")
	// ErrRedisUnavailable wraps transport-level Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusMismatch int64 = 1
	rotateStatusRotated  int64 = 2
)

// rotateScript compares the stored jti with the presented one and replaces
// it in the same atomic step. On mismatch the key is deleted: a replayed
// refresh token invalidates the whole session, not just the one request.
const rotateScript = `
local stored = redis.call("GET", KEYS[1])
if not stored then
  return 0
end
if stored ~= ARGV[1] then
  redis.call("DEL", KEYS[1])
  return 1
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 2
`

var rotateLua = redis.NewScript(rotateScript)

// Store is the Redis-backed refresh-session store. One key per subject,
// holding the active refresh jti.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a [Store] with the given Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ag:sess"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(subject string) string {
	return s.prefix + ":" + subject
}

// Start records jti as the subject's sole active refresh session, replacing
// any prior jti immediately. Called at login.
func (s *Store) Start(ctx context.Context, subject, jti string, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(subject), jti, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Rotate atomically replaces currentJTI with nextJTI. Returns [ErrNotFound]
// when no session exists (expired or logged out), [ErrJTIMismatch] when the
// presented jti lost the race or was replayed — in which case the session
// has been deleted as a security measure.
func (s *Store) Rotate(ctx context.Context, subject, currentJTI, nextJTI string, ttl time.Duration) error {
	status, err := rotateLua.Run(
		ctx,
		s.redis,
		[]string{s.key(subject)},
		currentJTI,
		nextJTI,
		ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	switch status {
	case rotateStatusNotFound:
		return ErrNotFound
	case rotateStatusMismatch:
		return ErrJTIMismatch
	case rotateStatusRotated:
		return nil
	default:
		return fmt.Errorf("%w: unknown rotate script status %d", ErrRedisUnavailable, status)
	}
}

// Clear removes the subject's session. Idempotent: clearing an absent
// session is not an error.
func (s *Store) Clear(ctx context.Context, subject string) error {
	if err := s.redis.Del(ctx, s.key(subject)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// ActiveJTI returns the recorded jti for subject, or [ErrNotFound].
func (s *Store) ActiveJTI(ctx context.Context, subject string) (string, error) {
	jti, err := s.redis.Get(ctx, s.key(subject)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return jti, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
