// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"salesforce-workers/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// Pool and timeout values used when the config leaves them unset.
const (
	defaultPoolSize     = 10
	defaultMinIdleConns = 2
	defaultDialTimeout  = 5 * time.Second
	defaultIOTimeout    = 3 * time.Second
)

// RedisClient holds the connection pool backing the revocation audit trail.
type RedisClient struct {
	Client *redis.Client
}

// NewRedis builds a client from cfg. No connection is made until first use.
func NewRedis(cfg config.RedisConfig) (*RedisClient, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}
	return &RedisClient{Client: redis.NewClient(opts)}, nil
}

// Connect builds a client and pings it. A client that cannot reach the
// server is closed before the error is returned.
func Connect(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	client, err := NewRedis(cfg)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if cfg.MinIdleConns > 0 && cfg.PoolSize > 0 && cfg.MinIdleConns > cfg.PoolSize {
		return nil, fmt.Errorf("redis min_idle_conns (%d) exceeds pool_size (%d)", cfg.MinIdleConns, cfg.PoolSize)
	}

	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  orDefault(cfg.DialTimeout, defaultDialTimeout),
		ReadTimeout:  orDefault(cfg.ReadTimeout, defaultIOTimeout),
		WriteTimeout: orDefault(cfg.WriteTimeout, defaultIOTimeout),
		PoolSize:     orDefault(cfg.PoolSize, defaultPoolSize),
		MinIdleConns: orDefault(cfg.MinIdleConns, defaultMinIdleConns),
	}, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Ping tests the Redis connection
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// GetClient returns the underlying *redis.Client
func (c *RedisClient) GetClient() *redis.Client {
	return c.Client
}
