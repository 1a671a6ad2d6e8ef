package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 3 * time.Second

// incrWindowScript bumps a counter and starts the expiry window only when
// the key is created, so later increments never extend the window.
var incrWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Cache is a generic key/value store with TTLs. Values are JSON-encoded.
// The Redis implementation returns errors; wrap it with DegradeToMiss to get
// the best-effort contract the services rely on.
type Cache interface {
	Set(key string, value any, ttl time.Duration) error
	Get(key string, out any) (bool, error)
	Delete(keys ...string) error
	DeleteByPattern(pattern string) (int, error)
	Exists(key string) (bool, error)
	Increment(key string, window time.Duration) (int64, error)
	Ping() error
}

// RedisCache implements Cache on a Redis connection.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache builds a Redis-backed cache.
func NewRedisCache(addr, password string) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
	}
}

// Set stores a JSON-encoded value under key with a TTL.
func (c *RedisCache) Set(key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Get decodes the value under key into out. Returns false on miss.
func (c *RedisCache) Get(key string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Delete removes the given keys.
func (c *RedisCache) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	err := c.client.Del(ctx, keys...).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}

// DeleteByPattern removes all keys matching a glob pattern and returns the
// number deleted. Uses SCAN so large keyspaces are not blocked on KEYS.
func (c *RedisCache) DeleteByPattern(pattern string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// Exists reports whether key is present.
func (c *RedisCache) Exists(key string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	res, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return res > 0, nil
}

// Increment bumps the counter under key, starting the expiry window only on
// the increment that creates the key.
func (c *RedisCache) Increment(key string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return incrWindowScript.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
}

// Ping checks connectivity.
func (c *RedisCache) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	return c.client.Ping(ctx).Err()
}
