// Package redis wraps go-redis for the checkout core's one use of
// Redis: a read-through cache of succeeded confirm responses in front
// of the Idempotency Store, so a replayed confirm with a matching
// idempotency key doesn't need a Mongo round trip.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/amiosamu/checkout-core/internal/platform/errors"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
)

// Config holds Redis connection configuration.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Password     string        `json:"password"`
	DB           int           `json:"db"`
	PoolSize     int           `json:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	MaxRetries   int           `json:"max_retries"`
}

// DefaultConfig returns a default Redis configuration.
func DefaultConfig() Config {
	return Config{
		Host:         "localhost",
		Port:         6379,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  5 * time.Minute,
		MaxRetries:   3,
	}
}

// Address returns the Redis address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Connection manages a Redis database connection.
type Connection struct {
	Client *redis.Client
	config Config
	logger logging.Logger
}

// NewConnection creates a new Redis connection.
func NewConnection(config Config, logger logging.Logger) (*Connection, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:            config.Address(),
		Password:        config.Password,
		DB:              config.DB,
		PoolSize:        config.PoolSize,
		MinIdleConns:    config.MinIdleConns,
		DialTimeout:     config.DialTimeout,
		ReadTimeout:     config.ReadTimeout,
		WriteTimeout:    config.WriteTimeout,
		ConnMaxIdleTime: config.IdleTimeout,
		MaxRetries:      config.MaxRetries,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	logger.Info(ctx, "Redis connection established", map[string]interface{}{
		"address":        config.Address(),
		"db":             config.DB,
		"pool_size":      config.PoolSize,
		"min_idle_conns": config.MinIdleConns,
		"dial_timeout":   config.DialTimeout,
	})

	return &Connection{Client: rdb, config: config, logger: logger}, nil
}

// Close closes the Redis connection.
func (c *Connection) Close() error {
	if c.Client != nil {
		if err := c.Client.Close(); err != nil {
			c.logger.Error(nil, "Failed to close Redis connection", err)
			return err
		}
		c.logger.Info(nil, "Redis connection closed")
	}
	return nil
}

// HealthCheck performs a health check on the Redis connection.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return errors.NewInternal("Redis client is nil")
	}

	if err := c.Client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "Redis ping failed")
	}

	testKey := "health_check_" + fmt.Sprintf("%d", time.Now().UnixNano())
	testValue := "ok"

	if err := c.Client.Set(ctx, testKey, testValue, time.Second).Err(); err != nil {
		return errors.Wrap(err, "Redis set operation failed")
	}

	result, err := c.Client.Get(ctx, testKey).Result()
	if err != nil {
		return errors.Wrap(err, "Redis get operation failed")
	}
	if result != testValue {
		return errors.NewInternal("Redis value mismatch")
	}

	c.Client.Del(ctx, testKey)
	return nil
}

// Set sets a key-value pair with optional expiration.
func (c *Connection) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := c.Client.Set(ctx, key, value, expiration).Err(); err != nil {
		return errors.Wrap(err, "Redis set operation failed")
	}
	return nil
}

// Get retrieves a value by key, returning errors.NotFound if absent.
func (c *Connection) Get(ctx context.Context, key string) (string, error) {
	result, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", errors.NewNotFound("key not found")
	}
	if err != nil {
		return "", errors.Wrap(err, "Redis get operation failed")
	}
	return result, nil
}

// Del deletes one or more keys.
func (c *Connection) Del(ctx context.Context, keys ...string) (int64, error) {
	result, err := c.Client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, errors.Wrap(err, "Redis del operation failed")
	}
	return result, nil
}
