// Package memory caches per-session working state between turns. The
// persistence store remains the source of truth; a missing entry is rebuilt
// by the caller from the persisted transcript.
package memory

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store defines the interface for session memory operations.
type Store interface {
	// Create stores a new entry with Version set to 1, replacing any
	// existing entry for the same session.
	Create(ctx context.Context, e *Entry) error

	// Get retrieves an entry by session ID.
	// Returns nil if the entry is not cached (not an error).
	Get(ctx context.Context, sessionID string) (*Entry, error)

	// Update persists e if its Version matches the stored one, then
	// increments Version and sets UpdatedAt.
	// Returns ErrVersionConflict if the version does not match.
	// Returns ErrNotFound if the entry does not exist.
	Update(ctx context.Context, e *Entry) error

	// Delete evicts an entry.
	Delete(ctx context.Context, sessionID string) error

	// Close releases any resources.
	Close() error
}

// StoreType represents the type of memory store.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

const (
	defaultTTL       = 30 * time.Minute
	defaultKeyPrefix = "intake:session:"
)

// StoreOption is a functional option for configuring a store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	keyPrefix   string
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets the idle lifetime of an entry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithKeyPrefix sets the Redis key prefix.
func WithKeyPrefix(prefix string) StoreOption {
	return func(c *storeConfig) {
		c.keyPrefix = prefix
	}
}

// NewStore creates a Store of the given type.
// For Redis, requires WithRedisClient option.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.ttl <= 0 {
		cfg.ttl = defaultTTL
	}
	if cfg.keyPrefix == "" {
		cfg.keyPrefix = defaultKeyPrefix
	}

	switch storeType {
	case StoreTypeMemory:
		return NewInMemoryStore(cfg.ttl), nil
	case StoreTypeRedis:
		if cfg.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return NewRedisStore(cfg.redisClient, cfg.ttl, cfg.keyPrefix), nil
	default:
		return nil, ErrInvalidStoreType
	}
}
