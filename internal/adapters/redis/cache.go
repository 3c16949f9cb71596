package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	redis "github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/tradefork/engine/pkg/logger"
	"github.com/tradefork/engine/pkg/models"
)

// Cache is a TTL-bounded key to JSON store. Redis is the preferred
// backend; any transport error falls through to a bounded in-process
// map so hot-path reads and writes never fail.
type Cache struct {
	client *Client

	mu   sync.RWMutex
	mem  map[string]memEntry
	size int
}

type memEntry struct {
	value   models.JSONMap
	expires time.Time
}

const memCacheMaxEntries = 10000

// NewCache creates a cache over an optional Redis client. A nil
// client runs purely on the in-process map (used in tests).
func NewCache(client *Client) *Cache {
	return &Cache{
		client: client,
		mem:    make(map[string]memEntry),
		size:   memCacheMaxEntries,
	}
}

// Get returns the cached value if present and fresh
func (c *Cache) Get(ctx context.Context, key string) (models.JSONMap, bool) {
	if c.client != nil {
		data, err := c.client.Raw().Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var value models.JSONMap
			if jsonErr := json.Unmarshal(data, &value); jsonErr == nil {
				return value, true
			}
			logger.Warn("cache value is not valid JSON, dropping",
				zap.String("key", key),
			)
			return nil, false
		case err == redis.Nil:
			return nil, false
		default:
			logger.Debug("redis get failed, using in-process cache",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	c.mu.RLock()
	entry, ok := c.mem[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	return entry.value, true
}

// Set stores a value with ttl. Redis failures are absorbed by the
// in-process map; Set never returns an error.
func (c *Cache) Set(ctx context.Context, key string, value models.JSONMap, ttl time.Duration) {
	if c.client != nil {
		data, err := json.Marshal(value)
		if err != nil {
			logger.Warn("failed to marshal cache value",
				zap.String("key", key),
				zap.Error(err),
			)
			return
		}

		if err := c.client.Raw().Set(ctx, key, data, ttl).Err(); err == nil {
			return
		} else {
			logger.Debug("redis set failed, using in-process cache",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.mem) >= c.size {
		c.evictExpiredLocked()
	}
	// Still full after eviction: drop the write, next poll refreshes
	if len(c.mem) >= c.size {
		return
	}

	c.mem[key] = memEntry{value: value, expires: time.Now().Add(ttl)}
}

func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.mem {
		if now.After(e.expires) {
			delete(c.mem, k)
		}
	}
}
