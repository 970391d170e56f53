package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements CredentialStore using Redis.
// Both keys are written and deleted inside MULTI/EXEC.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis credential store from a client and a key prefix.
// prefix typically ends with a colon.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "iptrail:"
	}
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
	}
}

// RedisConfig contains configuration options for Redis.
type RedisConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string

	// Password is the Redis password (empty for no auth)
	Password string

	// DB is the Redis database number (0-15)
	DB int

	// KeyPrefix is prepended to all keys (default: "iptrail:").
	KeyPrefix string
}

// NewRedisFromConfig connects to Redis and creates a credential store.
func NewRedisFromConfig(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: failed to connect: %w", err)
	}

	return NewRedisStore(client, cfg.KeyPrefix), nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

// Load returns the stored credentials.
func (s *RedisStore) Load() (Credentials, error) {
	ctx := context.Background()

	vals, err := s.client.MGet(ctx, s.key(KeyUser), s.key(KeyToken)).Result()
	if err != nil {
		return Credentials{}, fmt.Errorf("redis: failed to load credentials: %w", err)
	}

	var creds Credentials
	if v, ok := vals[0].(string); ok {
		creds.User = v
	}
	if v, ok := vals[1].(string); ok {
		creds.Token = v
	}
	return creds, nil
}

// Save replaces both entries atomically.
func (s *RedisStore) Save(creds Credentials) error {
	ctx := context.Background()

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(KeyUser), creds.User, 0)
		pipe.Set(ctx, s.key(KeyToken), creds.Token, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: failed to save credentials: %w", err)
	}
	return nil
}

// Clear removes both entries atomically.
func (s *RedisStore) Clear() error {
	ctx := context.Background()

	err := s.client.Del(ctx, s.key(KeyUser), s.key(KeyToken)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: failed to clear credentials: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
