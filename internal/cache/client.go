// Package cache provides the Redis-backed KV cache behind profile reads and
// the distributed UserLock used to serialize per-user operations (spec
// §4.3, §4.8), grounded on the teacher's redis_cache.go pattern.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config carries the connection settings for the Redis client.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client wraps a redis.UniversalClient for the cache and lock helpers in
// this package to share.
type Client struct {
	rdb redis.UniversalClient
}

func New(cfg Config) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Ping reports whether the underlying Redis connection is reachable, for
// GET /healthcheck.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
