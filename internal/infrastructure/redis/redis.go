// Package redis provides the Redis connection backing the liveness store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nerrad567/rsu-fleet-core/internal/infrastructure/config"
)

const (
	connectTimeout = 5 * time.Second
	maxRetries     = 3
	minIdleConns   = 2
	maxIdleTime    = 5 * time.Minute
)

// ErrNotConnected is returned by HealthCheck on a closed client.
var ErrNotConnected = errors.New("redis: client not connected")

// Client wraps a go-redis client with the configured key prefix.
type Client struct {
	rdb    *goredis.Client
	prefix string
}

// Connect opens a pooled connection and verifies it with PING.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:            net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      maxRetries,
		PoolSize:        cfg.PoolSize,
		MinIdleConns:    minIdleConns,
		ConnMaxIdleTime: maxIdleTime,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("connecting to redis at %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	return &Client{rdb: rdb, prefix: cfg.KeyPrefix}, nil
}

// NewFromClient wraps an existing go-redis client. Used by tests and by
// callers that share one pool between several stores.
func NewFromClient(rdb *goredis.Client, prefix string) *Client {
	return &Client{rdb: rdb, prefix: prefix}
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() *goredis.Client {
	return c.rdb
}

// Key returns k with the configured prefix applied.
func (c *Client) Key(k string) string {
	return c.prefix + k
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.rdb == nil {
		return ErrNotConnected
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	if c.rdb == nil {
		return nil
	}
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("closing redis: %w", err)
	}
	return nil
}
