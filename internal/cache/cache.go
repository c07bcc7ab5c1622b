package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrDisabled is returned when no redis client is configured.
var ErrDisabled = errors.New("cache disabled")

// Cache wraps the redis client used for response caching. A nil *Cache is
// valid and behaves as a permanent miss, so handlers never need to branch on
// whether caching is configured.
type Cache struct {
	redis *redis.Client
}

// CachedValue is the stored envelope.
type CachedValue struct {
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// New connects to redis. The connection is verified but a failure only
// degrades to cache misses.
func New(addr, password string, db int) *Cache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logrus.Warn("Redis connection failed, responses will not be cached: ", err)
	} else {
		logrus.Info("Redis connection established successfully")
	}

	return &Cache{redis: rdb}
}

// Client exposes the underlying redis client for pub/sub use.
func (c *Cache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.redis
}

// Ping checks if redis is available.
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil {
		return ErrDisabled
	}
	return c.redis.Ping(ctx).Err()
}

// Get retrieves a value from cache.
func (c *Cache) Get(ctx context.Context, key string) (*CachedValue, error) {
	if c == nil {
		return nil, ErrDisabled
	}

	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var cached CachedValue
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

// Set stores a value with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if c == nil {
		return ErrDisabled
	}

	data, err := json.Marshal(CachedValue{
		Data:      value,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, key, data, ttl).Err()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c == nil {
		return ErrDisabled
	}
	return c.redis.Del(ctx, key).Err()
}

// Close releases the redis connection.
func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.redis.Close()
}

// Unmarshal decodes the cached payload into v.
func (cv *CachedValue) Unmarshal(v interface{}) error {
	data, err := json.Marshal(cv.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
