package production

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the coordinator's keys in a shared Redis.
const DefaultKeyPrefix = "tracking:prefs:"

// RedisStore is a StateStore backed by Redis string keys.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedisStore wraps client. An empty prefix selects DefaultKeyPrefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix, timeout: 5 * time.Second}
}

func (s *RedisStore) key(k string) string {
	return s.prefix + k
}

func (s *RedisStore) get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) GetBool(key string, def bool) (bool, error) {
	raw, ok, err := s.get(key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def, fmt.Errorf("key %q: %w", key, err)
	}
	return b, nil
}

func (s *RedisStore) PutBool(key string, value bool) error {
	return s.set(key, strconv.FormatBool(value))
}

func (s *RedisStore) GetString(key string, def string) (string, error) {
	raw, ok, err := s.get(key)
	if err != nil || !ok {
		return def, err
	}
	return raw, nil
}

func (s *RedisStore) PutString(key string, value string) error {
	return s.set(key, value)
}
