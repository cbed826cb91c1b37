package config

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	hashes map[string]map[string]string
	err    error
}

func (f fakeRedis) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	values := f.hashes[key]
	if values == nil {
		values = map[string]string{}
	}
	return redis.NewMapStringStringResult(values, f.err)
}

func TestLoadRedis(t *testing.T) {
	client := fakeRedis{hashes: map[string]map[string]string{
		"fitnesse": {"TEST_SYSTEM": "slim", "PATH_SEPARATOR": ":"},
	}}
	vars, err := LoadRedis(context.Background(), client, "fitnesse")
	require.NoError(t, err)
	assert.Equal(t, Variables{"TEST_SYSTEM": "slim", "PATH_SEPARATOR": ":"}, vars)

	empty, err := LoadRedis(context.Background(), client, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLoadRedisError(t *testing.T) {
	_, err := LoadRedis(context.Background(), fakeRedis{err: errors.New("connection refused")}, "fitnesse")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisClientImplementsHashReader(t *testing.T) {
	client := NewRedisClient("localhost:6379")
	defer client.Close() //nolint:errcheck
	var reader RedisHashReader = client
	assert.NotNil(t, reader)
}
