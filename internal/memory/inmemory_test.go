package memory

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medical-intake-agent/internal/assessment"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(ttl time.Duration) (*InMemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	s := NewInMemoryStore(ttl)
	s.now = clock.now
	return s, clock
}

func TestInMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Hour)

	got, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	e := &Entry{SessionID: "s1", UserID: "u1"}
	require.NoError(t, s.Create(ctx, e))
	assert.Equal(t, int64(1), e.Version)

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
	assert.Equal(t, 1, again.TranscriptLen)
	assert.Equal(t, []string{"headache"}, again.Collected.Symptoms)

	require.NoError(t, s.Delete(ctx, "s1"))
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestInMemoryStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Hour)
	require.NoError(t, s.Create(ctx, &Entry{SessionID: "s1"}))

	a, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	b, err := s.Get(ctx, "s1")
	require.NoError(t, err)

	require.NoError(t, s.Update(ctx, a))
	assert.ErrorIs(t, s.Update(ctx, b), ErrVersionConflict)

	assert.ErrorIs(t, s.Update(ctx, &Entry{SessionID: "nope"}), ErrNotFound)
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(time.Hour)
	require.NoError(t, s.Create(ctx, &Entry{SessionID: "s1"}))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	got.AddTurn("patient", "hello", time.Now(), 10)

	fresh, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, fresh.Turns)
}

func TestInMemoryStore_IdleEviction(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(10 * time.Minute)
	require.NoError(t, s.Create(ctx, &Entry{SessionID: "s1"}))
	require.NoError(t, s.Create(ctx, &Entry{SessionID: "s2"}))

	clock.advance(8 * time.Minute)
	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got, "read within ttl")

	clock.advance(5 * time.Minute)
	assert.Equal(t, 1, s.Sweep(), "s2 idle for 13m")
	assert.Equal(t, 1, s.Len())

	clock.advance(11 * time.Minute)
	got, err = s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Equal(t, 0, s.Len())
}

func TestEntry_AddTurnKeepsWindow(t *testing.T) {
	var e Entry
	for i := 0; i < 12; i++ {
		e.AddTurn("patient", string(rune('a'+i)), time.Time{}, 8)
	}
	assert.Len(t, e.Turns, 8)
	assert.Equal(t, 12, e.TranscriptLen)
	assert.Equal(t, "e", e.Turns[0].Content)
	assert.Equal(t, "l", e.Turns[7].Content)
}

func TestNewStore(t *testing.T) {
	s, err := NewStore(StoreTypeMemory, WithTTL(time.Minute))
	require.NoError(t, err)
	assert.IsType(t, &InMemoryStore{}, s)

	_, err = NewStore(StoreTypeRedis)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	s, err = NewStore(StoreTypeRedis, WithRedisClient(client), WithKeyPrefix("test:"))
	require.NoError(t, err)
	rs, ok := s.(*RedisStore)
	require.True(t, ok)
	assert.Equal(t, "test:abc", rs.key("abc"))
	require.NoError(t, s.Close())

	_, err = NewStore("memcached")
	assert.ErrorIs(t, err, ErrInvalidStoreType)
}
