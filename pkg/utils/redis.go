package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jobpilot/internal/config"
	"jobpilot/internal/logging"
	"jobpilot/internal/logging/types"
)

// KeyPrefix namespaces every key this service writes
const KeyPrefix = "jobpilot:"

// ErrCacheMiss is returned by GetJSON when the key does not exist
var ErrCacheMiss = errors.New("redis: key not found")

// RedisClient wraps the Redis client with the JSON helpers the task store,
// locks and notification sink share
type RedisClient struct {
	client *redis.Client
	logger types.Logger
}

// NewRedisClient creates a new Redis client instance
func NewRedisClient(cfg *config.Config) *RedisClient {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		// Fallback to default configuration
		opts = &redis.Options{Addr: "localhost:6379"}
	}

	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	timeout := cfg.Redis.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts.DialTimeout = timeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	return NewRedisClientFrom(redis.NewClient(opts), logging.GetGlobalLogger())
}

// NewRedisClientFrom wraps an existing client.
func NewRedisClientFrom(client *redis.Client, logger types.Logger) *RedisClient {
	if logger == nil {
		logger = types.NewNopLogger()
	}
	return &RedisClient{client: client, logger: logger}
}

// Client exposes the underlying go-redis client
func (r *RedisClient) Client() *redis.Client {
	return r.client
}

// Ping tests the Redis connection
func (r *RedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Key prefixes parts with KeyPrefix, joined by colons.
func (r *RedisClient) Key(parts ...string) string {
	key := KeyPrefix
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += p
	}
	return key
}

// SetJSON stores v as JSON under key. A zero ttl keeps the key forever.
func (r *RedisClient) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// GetJSON decodes the JSON stored under key into v.
func (r *RedisClient) GetJSON(ctx context.Context, key string, v interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return fmt.Errorf("failed to get %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// PublishJSON publishes v as JSON on channel.
func (r *RedisClient) PublishJSON(ctx context.Context, channel string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", channel, err)
	}
	return nil
}

// IsHealthy checks if Redis is reachable
func (r *RedisClient) IsHealthy(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.logger.Error("Redis health check failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}
