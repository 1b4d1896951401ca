package memory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wikiagent:memory:"

// RedisBackend stores the snapshot as a single string value, so a SET
// replaces it atomically.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend connects to url and verifies the connection.
func NewRedisBackend(ctx context.Context, url, key string) (*RedisBackend, error) {
	if key == "" {
		return nil, errors.New("redis memory backend requires a key")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{client: client, key: redisKeyPrefix + key}, nil
}

func (b *RedisBackend) Read(ctx context.Context) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	return raw, err
}

func (b *RedisBackend) Write(ctx context.Context, data []byte) error {
	return b.client.Set(ctx, b.key, data, 0).Err()
}

func (b *RedisBackend) Close() error { return b.client.Close() }

func (b *RedisBackend) String() string { return "redis:" + b.key }
