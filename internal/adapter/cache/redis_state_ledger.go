package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallbiznis/valora-sleep/internal/repository"
)

const statePrefix = "sleepgate:oauth:state:"

// RedisStateLedger implements StateLedger backed by Redis.
type RedisStateLedger struct {
	client redis.UniversalClient
}

var _ repository.StateLedger = (*RedisStateLedger)(nil)

// NewRedisStateLedger constructs a Redis-backed ledger.
func NewRedisStateLedger(client redis.UniversalClient) *RedisStateLedger {
	return &RedisStateLedger{client: client}
}

// Remember stores the state marker with TTL.
func (s *RedisStateLedger) Remember(ctx context.Context, state string, ttl time.Duration) error {
	if err := s.client.Set(ctx, buildStateKey(state), time.Now().UTC().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("persist state: %w", err)
	}
	return nil
}

// Consume removes the marker atomically; only the first caller sees true.
func (s *RedisStateLedger) Consume(ctx context.Context, state string) (bool, error) {
	n, err := s.client.Del(ctx, buildStateKey(state)).Result()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("consume state: %w", err)
	}
	return n == 1, nil
}

func buildStateKey(state string) string {
	return statePrefix + strings.TrimSpace(state)
}
