package memory

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoSnapshot is returned by a Backend that holds no snapshot yet.
var ErrNoSnapshot = errors.New("no memory snapshot")

// Backend stores one opaque snapshot per agent.
type Backend interface {
	Read(ctx context.Context) ([]byte, error)
	// Write replaces the snapshot. Readers never observe a partial write.
	Write(ctx context.Context, data []byte) error
	Close() error
	String() string
}

// Backend kinds.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Kind string
	// Path is the snapshot file for "file" and the database file for "sqlite".
	Path string
	// RedisURL is a redis:// URL for "redis".
	RedisURL string
	// Key names the agent's snapshot in shared backends.
	Key string
}

// OpenBackend constructs the configured backend.
func OpenBackend(ctx context.Context, cfg BackendConfig) (Backend, error) {
	switch cfg.Kind {
	case "", BackendFile:
		return NewFileBackend(cfg.Path), nil
	case BackendSQLite:
		return NewSQLiteBackend(ctx, cfg.Path, cfg.Key)
	case BackendRedis:
		return NewRedisBackend(ctx, cfg.RedisURL, cfg.Key)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", cfg.Kind)
	}
}
