// Package store is the process-wide key-value capability behind the usage
// counters, the result cache and the webhook subscriptions.
//
// The memory backend lives for the process lifetime and never evicts. The
// redis backend shares state across replicas but still applies no TTL:
// anything that needs expiry or durability guarantees must be layered on
// top by the operator.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"bizapi/internal/config"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// Store is the minimal atomic key-value contract. Each call is atomic with
// respect to concurrent callers touching the same key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetNX stores value only when key is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte) (bool, error)
	// Incr adds one to the integer at key (missing keys start at zero) and
	// returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// New builds the backend selected by cfg.Store.Backend.
func New(cfg *config.Config) (Store, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "memory":
		return NewMemory(), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return NewRedis(redis.NewClient(opt), cfg.Redis.Prefix), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

// Backend names the implementation for health output.
func Backend(s Store) string {
	switch s.(type) {
	case *Memory:
		return "memory"
	case *Redis:
		return "redis"
	default:
		return "custom"
	}
}
