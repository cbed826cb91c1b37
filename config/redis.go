package config

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisHashReader is the part of the Redis client API used by LoadRedis. *redis.Client
// implements it.
type RedisHashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// NewRedisClient creates a client for the Redis server at address.
func NewRedisClient(address string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: address})
}

// LoadRedis reads every field of the hash stored at key. Each field is a variable name.
// A missing key yields no variables rather than an error.
func LoadRedis(ctx context.Context, client RedisHashReader, key string) (Variables, error) {
	values, err := client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("cannot read Redis hash %q: %w", key, err)
	}
	return Variables(values), nil
}
