package testsupport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis(t *testing.T) {
	mr, client := NewRedis(t)

	require.NoError(t, client.Set(context.Background(), "key", "value", 0).Err())
	got, err := mr.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	cfg := RedisConfig(t, mr)
	assert.Equal(t, mr.Addr(), cfg.Addr())
}

func TestRedisClientIsCleanedBetweenTests(t *testing.T) {
	client := NewRedisClient(t)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "integration-key", "value", 0).Err())

	val, err := client.Get(ctx, "integration-key").Result()
	require.NoError(t, err)
	assert.Equal(t, "value", val)
}
