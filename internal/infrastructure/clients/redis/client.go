package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/zatekoja/Clinicalordervalidation/backend/pkg/config"
)

// Client represents a Redis client
type Client struct {
	client *redis.Client
}

// New creates a Redis client without checking connectivity. The cache tier
// is best-effort, so callers may keep a client for a server that is down.
func New(cfg *config.RedisConfig) *Client {
	return &Client{client: redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		// retries are handled by pkg/retry around each cache call
		MaxRetries: -1,
	})}
}

// NewClient creates a new Redis client and verifies the connection
func NewClient(cfg *config.RedisConfig) (*Client, error) {
	c := New(cfg)
	if err := c.Ping(context.Background()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return c, nil
}

// Wrap adopts an existing go-redis client (used by tests).
func Wrap(client *redis.Client) *Client {
	return &Client{client: client}
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// Ping verifies the connection to Redis
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
