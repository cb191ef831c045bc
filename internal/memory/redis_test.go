package memory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-intake-agent/internal/assessment"
)

func newRedisTestStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, ttl, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisTestStore(t, time.Hour)

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	e := &Entry{SessionID: "s1", UserID: "u1"}
	require.NoError(t, s.Create(ctx, e))
	assert.Equal(t, int64(1), e.Version)
	assert.True(t, mr.Exists("test:s1"))

	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)

	got.AddTurn("patient", "I have a headache", time.Now(), 10)
	got.Collected.Merge(assessment.Extract("I have a headache"))
	require.NoError(t, s.Update(ctx, got))
	assert.Equal(t, int64(2), got.Version)

	again, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.Version)
	assert.Equal(t, 1, again.TranscriptLen)
	assert.Equal(t, []string{"headache"}, again.Collected.Symptoms)

	require.NoError(t, s.Delete(ctx, "s1"))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisTestStore(t, time.Hour)
	require.NoError(t, s.Create(ctx, &Entry{SessionID: "s1"}))

	a, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "s1")
	require.NoError(t, err)

	a.AddTurn("patient", "first", time.Now(), 10)
	require.NoError(t, s.Update(ctx, a))

	b.AddTurn("patient", "second", time.Now(), 10)
	assert.ErrorIs(t, s.Update(ctx, b), ErrVersionConflict)

	stored, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, stored.Turns, 1)
	assert.Equal(t, "first", stored.Turns[0].Content)

	assert.ErrorIs(t, s.Update(ctx, &Entry{SessionID: "nope"}), ErrNotFound)
}

func TestRedisStore_IdleExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisTestStore(t, 10*time.Minute)
	require.NoError(t, s.Create(ctx, &Entry{SessionID: "s1"}))
	assert.Equal(t, 10*time.Minute, mr.TTL("test:s1"))

	mr.FastForward(8 * time.Minute)
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10*time.Minute, mr.TTL("test:s1"), "read refreshes the ttl")

	mr.FastForward(11 * time.Minute)
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
