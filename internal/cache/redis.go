package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// EnvRedisURL selects a shared Redis cache instead of the local file store.
const EnvRedisURL = "FMEFLOW_REDIS_URL"

const redisKeyPrefix = "fmeflow:"

// RedisStore is a Cache for one key held in Redis. Expiry is delegated to the
// server; the stored cached_at is still checked so a shortened TTL applies to
// older entries.
type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

var _ Cache = (*RedisStore)(nil)

// NewRedisClient parses a redis:// URL and verifies the server answers.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// NewRedisStore creates a RedisStore with the default TTL.
func NewRedisStore(rdb *redis.Client, resource string, scope ...string) *RedisStore {
	return NewRedisStoreWithTTL(rdb, resource, DefaultTTL, scope...)
}

// NewRedisStoreWithTTL creates a RedisStore with a custom TTL.
func NewRedisStoreWithTTL(rdb *redis.Client, resource string, ttl time.Duration, scope ...string) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		key: redisKeyPrefix + sanitizeKey(resource) + ":" + scopeHash(scope),
		ttl: ttl,
	}
}

// Key returns the Redis key backing this store.
func (s *RedisStore) Key() string { return s.key }

func (s *RedisStore) Get(ctx context.Context, dst any) bool {
	if disabled() {
		return false
	}
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if err != nil {
		return false
	}
	return decodeEntry(data, s.ttl, dst)
}

func (s *RedisStore) Put(ctx context.Context, items any) {
	if disabled() {
		return
	}
	data, err := encodeEntry(items)
	if err != nil {
		return
	}
	_ = s.rdb.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context) {
	_ = s.rdb.Del(ctx, s.key).Err()
}

// ClearAllRedis removes every fmeflow entry from the Redis database.
func ClearAllRedis(ctx context.Context, rdb *redis.Client) error {
	iter := rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}
