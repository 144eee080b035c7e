package reservation

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// redisKeyPrefix namespaces reservation rows in a shared Redis instance.
const redisKeyPrefix = "nrm:rsv:"

// RedisStore persists reservations as plain string values in Redis, one
// key per globalid, matching the teacher's go-redis/v8 idiom used
// elsewhere for key/value state.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(globalid string) string {
	return redisKeyPrefix + globalid
}

func (s *RedisStore) Put(ctx context.Context, globalid string, data []byte) error {
	if err := s.client.Set(ctx, redisKey(globalid), data, 0).Err(); err != nil {
		return fmt.Errorf("reservation: redis put %s: %w", globalid, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, globalid string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, redisKey(globalid)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reservation: redis get %s: %w", globalid, err)
	}
	return data, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, globalid string) (bool, error) {
	n, err := s.client.Del(ctx, redisKey(globalid)).Result()
	if err != nil {
		return false, fmt.Errorf("reservation: redis delete %s: %w", globalid, err)
	}
	return n > 0, nil
}

func (s *RedisStore) Scan(ctx context.Context) (map[string][]byte, error) {
	out := map[string][]byte{}
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("reservation: redis scan read %s: %w", key, err)
		}
		out[key[len(redisKeyPrefix):]] = data
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("reservation: redis scan: %w", err)
	}
	return out, nil
}

func (s *RedisStore) DeleteAll(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("reservation: redis scan for delete-all: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reservation: redis delete-all: %w", err)
	}
	return nil
}
