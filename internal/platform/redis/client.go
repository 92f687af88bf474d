package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"driftwatch/internal/platform/config"
)

// Client wraps the go-redis client with health checking capabilities.
type Client struct {
	*redis.Client
}

// New creates a new Redis client from the provided configuration.
func New(cfg config.RedisConfig) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	// Apply configuration overrides
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// EnsureExpiryNotifications turns on keyspace expired-event notifications,
// which the session store's expiry subscription depends on. Existing flags are
// preserved; only E (keyevent) and x (expired) are added when missing.
func (c *Client) EnsureExpiryNotifications(ctx context.Context) error {
	res, err := c.ConfigGet(ctx, "notify-keyspace-events").Result()
	if err != nil {
		return fmt.Errorf("read notify-keyspace-events: %w", err)
	}

	current := res["notify-keyspace-events"]
	if strings.ContainsRune(current, 'E') && strings.ContainsRune(current, 'x') {
		return nil
	}

	updated := current
	if !strings.ContainsRune(updated, 'E') {
		updated += "E"
	}
	if !strings.ContainsRune(updated, 'x') {
		updated += "x"
	}
	if err := c.ConfigSet(ctx, "notify-keyspace-events", updated).Err(); err != nil {
		return fmt.Errorf("set notify-keyspace-events: %w", err)
	}
	return nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.Client.Close()
}
