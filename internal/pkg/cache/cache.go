package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
)

var client *redis.Client

// Enabled reports whether a cache host is configured. Without one the service
// runs with in-process fallbacks for locking and rate limiting.
func Enabled() bool {
	return env.GetEnv("CACHE_HOST", "") != ""
}

// Host, Port, Password and Database expose the connection settings, e.g. for
// limiter storage that opens its own pool.
func Host() string     { return env.GetEnv("CACHE_HOST", "localhost") }
func Port() int        { return atoi(env.GetEnv("CACHE_PORT", "6379"), 6379) }
func Password() string { return env.GetEnv("CACHE_PASSWORD", "") }
func Database() int    { return atoi(env.GetEnv("CACHE_DB", "0"), 0) }

// SetupCache initializes the connection to the Redis server.
func SetupCache() {
	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", Host(), Port()),
		Password: Password(),
		DB:       Database(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to Redis: %v", err)
	} else {
		log.Infof("[Cache] Successfully connected to Redis: %s", pong)
	}
}

// GetClient returns the Redis client instance.
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// Ping checks that Redis answers.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

func Close() error {
	if client == nil {
		return nil
	}
	return client.Close()
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
