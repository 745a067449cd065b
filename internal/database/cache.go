package database

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// Cache key prefixes
	CacheKeySettings = "driftpanel:settings"
	CacheKeyNodeList = "driftpanel:nodes:list"
	CacheKeyServer   = "driftpanel:servers:" // + server uuid

	// Cache TTLs
	CacheTTLSettings = 5 * time.Minute
	CacheTTLNodes    = 2 * time.Minute
	CacheTTLServer   = 2 * time.Minute
)

// CacheGet retrieves a value from Redis cache and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes a key from Redis cache
func CacheDelete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// CacheDeletePattern deletes all keys matching a pattern (use with caution)
func CacheDeletePattern(pattern string) error {
	ctx := context.Background()
	iter := Redis.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return Redis.Del(ctx, keys...).Err()
	}
	return nil
}

// InvalidateNodeCache clears the node list plus every cached server record,
// since resolved servers embed their node's address and token
func InvalidateNodeCache() {
	CacheDelete(CacheKeyNodeList)
	CacheDeletePattern(CacheKeyServer + "*")
}

// InvalidateServerCache clears the cached record for a server
func InvalidateServerCache(serverUUID string) {
	CacheDelete(CacheKeyServer + serverUUID)
}
