package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// Cache keys for the aggregate read views
const (
	CacheKeyHome     = "api:home"     // Service metadata and stats
	CacheKeyBalances = "api:balances" // Full rounded balances map
)

// Cache is a read cache over Redis. The Redis client is optional: with
// a nil client every lookup misses and every write is a no-op, so the
// service runs identically without Redis configured.
type Cache struct {
	rdb *redis.Client // Backing client, may be nil
}

// NewCache wraps a Redis client, which may be nil
func NewCache(rdb *redis.Client) *Cache {
	return &Cache{rdb: rdb}
}

// Get retrieves a value and unmarshals it into dest, reporting whether
// the key was present
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c.rdb == nil {
		return false, nil // Cache disabled
	}
	val, err := c.rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// Set stores a value with a TTL
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.rdb == nil {
		return nil // Cache disabled
	}
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return c.rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// Delete removes a key
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.rdb == nil {
		return nil // Cache disabled
	}
	return c.rdb.Del(ctx, key).Err() // Delete key from Redis
}
