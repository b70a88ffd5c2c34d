// Package storage holds the key-value backends the catalog cache persists to.
// Backends keep values until they are overwritten or deleted; expiry is the
// caller's decision.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jp1648/portfolio/internal/config"
)

// Store is a byte-valued key-value store.
type Store interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open returns the backend selected by cfg.Backend. db is only used by the
// sqlite backend and stays owned by the caller.
func Open(ctx context.Context, cfg config.CacheConfig, db *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "", config.CacheBackendSQLite:
		if db == nil {
			return nil, fmt.Errorf("sqlite cache backend needs a database")
		}
		return NewSQLiteStore(ctx, db)
	case config.CacheBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStore(client, DefaultRedisPrefix), nil
	case config.CacheBackendFile:
		return NewFileStore(cfg.Dir)
	case config.CacheBackendMemory:
		return NewMemoryStore(DefaultMemorySize)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
