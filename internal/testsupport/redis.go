package testsupport

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"shopbot/internal/adapters/config"
)

// NewRedis starts an in-memory Redis and a client bound to it. Both are
// closed when the test ends.
func NewRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

// RedisConfig returns a config section pointing at mr
func RedisConfig(t *testing.T, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()

	port, err := strconv.Atoi(mr.Port())
	if err != nil {
		t.Fatalf("invalid miniredis port %q: %v", mr.Port(), err)
	}

	return config.RedisConfig{Host: mr.Host(), Port: port, KeyPrefix: "test:"}
}

// NewRedisClient connects to the Redis named by REDIS_HOST and flushes its
// database around the test. The test is skipped when REDIS_HOST is unset.
func NewRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		t.Skip("integration environment missing, set REDIS_HOST to run")
	}

	port := 6379
	if v := os.Getenv("REDIS_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			t.Fatalf("invalid REDIS_PORT %q: %v", v, err)
		}
		port = p
	}
	cfg := config.RedisConfig{Host: host, Port: port, Password: os.Getenv("REDIS_PASSWORD")}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}

	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis before test: %v", err)
	}

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}
