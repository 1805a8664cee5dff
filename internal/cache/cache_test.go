package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, config RedisConfig) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, config), srv
}

func TestRedisCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t, RedisConfig{TTL: time.Minute})
	id := uuid.New()

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, id, []byte(`{"threshold":0.6}`)))
	assert.True(t, srv.Exists("iforest:model:"+id.String()))
	assert.Equal(t, time.Minute, srv.TTL("iforest:model:"+id.String()))

	blob, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"threshold":0.6}`, string(blob))

	require.NoError(t, c.Delete(ctx, id))
	_, ok, err = c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t, RedisConfig{Prefix: "test:", TTL: time.Second})
	id := uuid.New()

	require.NoError(t, c.Set(ctx, id, []byte("x")))
	srv.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheUnavailable(t *testing.T) {
	c, srv := newTestCache(t, DefaultRedisConfig())
	srv.Close()

	_, _, err := c.Get(context.Background(), uuid.New())
	assert.Error(t, err)
}

func TestNoOpCache(t *testing.T) {
	var c ModelCache = NoOpCache{}
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.Set(ctx, id, []byte("x")))
	_, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Delete(ctx, id))
}
