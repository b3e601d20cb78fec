package secrets

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

const defaultRedisKey = "favthing:secrets:v1"

// RedisStore reads secrets from a Redis hash so they can be rotated
// without restarting the service.
type RedisStore struct {
	client redis.UniversalClient
	key    string
}

func NewRedisStore(client redis.UniversalClient, key string) *RedisStore {
	if client == nil {
		return nil
	}
	storeKey := strings.TrimSpace(key)
	if storeKey == "" {
		storeKey = defaultRedisKey
	}
	return &RedisStore{client: client, key: storeKey}
}

func (s *RedisStore) Get(ctx context.Context, name string) (string, error) {
	if s == nil || s.client == nil {
		return "", nil
	}
	value, err := s.client.HGet(ctx, s.key, name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(value), nil
}

// Set stores or clears a secret. An empty value removes the field.
func (s *RedisStore) Set(ctx context.Context, name, value string) error {
	if s == nil || s.client == nil {
		return nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return s.client.HDel(ctx, s.key, name).Err()
	}
	return s.client.HSet(ctx, s.key, name, value).Err()
}
