package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps transport-level Redis failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// ConsumedTicketStore records which verification-ticket jtis have already
// been redeemed. Markers live exactly as long as the ticket itself could
// still validate, after which the codec's expiry check takes over.
type ConsumedTicketStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewConsumedTicketStore creates a store with the given Redis key namespace.
func NewConsumedTicketStore(redisClient redis.UniversalClient, prefix string) *ConsumedTicketStore {
	if prefix == "" {
		prefix = "ag:evc"
	}
	return &ConsumedTicketStore{redis: redisClient, prefix: prefix}
}

func (s *ConsumedTicketStore) key(jti string) string {
	return s.prefix + ":" + jti
}

// MarkConsumed claims the jti. Returns true when this call was the first to
// consume it, false when the jti was already claimed. The SET NX write makes
// concurrent confirms of the same ticket resolve to exactly one winner.
func (s *ConsumedTicketStore) MarkConsumed(ctx context.Context, jti string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	claimed, err := s.redis.SetNX(ctx, s.key(jti), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return claimed, nil
}

// IsConsumed reports whether the jti has already been redeemed.
func (s *ConsumedTicketStore) IsConsumed(ctx context.Context, jti string) (bool, error) {
	n, err := s.redis.Exists(ctx, s.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n > 0, nil
}
