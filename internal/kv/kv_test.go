package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "roombook:"), mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "evt:1|2024-05-02|08:00|ana@corp.com", []byte("AAMk"), time.Hour))
	got, err := s.Get(ctx, "evt:1|2024-05-02|08:00|ana@corp.com")
	require.NoError(t, err)
	assert.Equal(t, "AAMk", string(got))
	assert.True(t, mr.Exists("roombook:evt:1|2024-05-02|08:00|ana@corp.com"), "prefix applied")

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, "evt:1|2024-05-02|08:00|ana@corp.com")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Ping(ctx))
	mr.Close()
	assert.Error(t, s.Ping(ctx))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStore().WithClock(func() time.Time { return now })

	require.NoError(t, s.Set(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(got))

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err = s.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", string(got))

	require.NoError(t, s.Delete(ctx, "b"))
	_, err = s.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
