package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tokoflow/tokoflow/internal/shared"
)

const keyPrefix = "otp:"

// RedisStore keeps codes in Redis with a per-key TTL. GETDEL makes the
// single-use guarantee atomic across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, key, code string, ttl time.Duration) error {
	if err := s.client.Set(ctx, keyPrefix+key, code, ttl).Err(); err != nil {
		return fmt.Errorf("otp: store code: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, key string) (string, error) {
	code, err := s.client.GetDel(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", fmt.Errorf("%w: no code for contact", shared.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("otp: take code: %w", err)
	}
	return code, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
