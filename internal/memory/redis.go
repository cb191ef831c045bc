package memory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"medical-intake-agent/internal/logging"
)

// RedisStore implements Store on Redis for multi-instance deployments. Keys
// expire after the TTL; every read and write refreshes it.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	log    zerolog.Logger
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, ttl time.Duration, prefix string) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, ttl: ttl, prefix: prefix, log: logging.Component("memory")}
}

// Create implements Store.
func (s *RedisStore) Create(ctx context.Context, e *Entry) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	e.Version = 1

	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(e.SessionID), val, s.ttl).Err()
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Entry, error) {
	key := s.key(sessionID)
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal(val, &e); err != nil {
		return nil, err
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		s.log.Warn().Ctx(ctx).Err(err).Str("session_id", sessionID).Msg("failed to refresh session ttl")
	}
	return &e, nil
}

// Update implements Store using WATCH/MULTI/EXEC.
func (s *RedisStore) Update(ctx context.Context, e *Entry) error {
	key := s.key(e.SessionID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored Entry
		if err := json.Unmarshal(val, &stored); err != nil {
			return err
		}
		if stored.Version != e.Version {
			return ErrVersionConflict
		}

		next := e.Clone()
		next.Version++
		next.UpdatedAt = time.Now()
		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if err != nil {
			if errors.Is(err, redis.TxFailedErr) {
				return ErrVersionConflict
			}
			return err
		}

		e.Version = next.Version
		e.UpdatedAt = next.UpdatedAt
		return nil
	}, key)
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}
