package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"shopbot/internal/adapters/config"
)

// Client wraps the process-wide Redis client
type Client struct {
	rdb *redis.Client
}

// NewClient creates a Redis client. go-redis dials on the first command and
// pools connections afterwards, so construction never touches the network.
func NewClient(cfg config.RedisConfig) *Client {
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr(),
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection pool
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
