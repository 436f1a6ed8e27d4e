// File: utils/cache.go
package utils

import (
	"context"
	"log"
	"time"

	"callpilot/config"

	"github.com/go-redis/redis/v8"
)

// CacheClient is the generic cache client used for provider search results.
var CacheClient *redis.Client

// InitCache initializes the Redis cache client. Callers must have checked
// config.AppConfig.UseRedisCache first; a missing Redis is fatal once opted in.
func InitCache() {
	CacheClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := CacheClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Cache): %v", err)
	}
}

// GetCacheClient returns the generic cache client, or nil when Redis caching
// is disabled in config.
func GetCacheClient() *redis.Client {
	if !config.AppConfig.UseRedisCache {
		return nil
	}
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}
