package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Simlowker/solduel-gaming-platform/config"
)

// Client provides Redis operations with connection pooling
type Client struct {
	client *redis.Client
}

// New creates a new Redis client
func New(cfg config.RedisConfig) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.GetAddr(),
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		client: client,
	}, nil
}

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = redis.Nil

// Get retrieves a value from Redis by key
func (r *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

// GetJSON retrieves and unmarshals JSON value from Redis
func (r *Client) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := r.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

// Set stores a value in Redis with optional expiration
func (r *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	err := r.client.Set(ctx, key, value, expiration).Err()
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals and stores a value as JSON in Redis
func (r *Client) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return r.Set(ctx, key, data, expiration)
}

// Delete removes a key from Redis
func (r *Client) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Exists checks if a key exists in Redis
func (r *Client) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return count > 0, nil
}

// SetNX sets a key only if it doesn't exist (for idempotency guards)
func (r *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, value, expiration).Result()
	if err != nil {
		return false, fmt.Errorf("failed to setnx key %s: %w", key, err)
	}
	return ok, nil
}

// SAdd adds members to a set
func (r *Client) SAdd(ctx context.Context, key string, members ...interface{}) error {
	err := r.client.SAdd(ctx, key, members...).Err()
	if err != nil {
		return fmt.Errorf("failed to sadd to %s: %w", key, err)
	}
	return nil
}

// SPopN removes and returns up to count members from a set
func (r *Client) SPopN(ctx context.Context, key string, count int64) ([]string, error) {
	vals, err := r.client.SPopN(ctx, key, count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to spop from %s: %w", key, err)
	}
	return vals, nil
}

// SRem removes members from a set
func (r *Client) SRem(ctx context.Context, key string, members ...interface{}) error {
	err := r.client.SRem(ctx, key, members...).Err()
	if err != nil {
		return fmt.Errorf("failed to srem from %s: %w", key, err)
	}
	return nil
}

// Expire sets a timeout on key
func (r *Client) Expire(ctx context.Context, key string, expiration time.Duration) error {
	err := r.client.Expire(ctx, key, expiration).Err()
	if err != nil {
		return fmt.Errorf("failed to expire key %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection
func (r *Client) Close() error {
	return r.client.Close()
}

// Ping checks Redis connection
func (r *Client) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
