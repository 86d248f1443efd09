package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), Protocol: 2})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, "test"), mr
}

func TestSetGetDelete(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	assert.True(t, mr.Exists("test:k"))

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, c.Delete(ctx, "k"))
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestGetDelConsumesOnce(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "once", "x", 0))
	v, err := c.GetDel(ctx, "once")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = c.GetDel(ctx, "once")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestAllowFixedWindow(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := c.Allow(ctx, "u1", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := c.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(time.Minute + time.Second)
	ok, err = c.Allow(ctx, "u1", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestKey(t *testing.T) {
	c := New(nil, "chat")
	assert.Equal(t, "chat:presence:u1", c.Key("presence", "u1"))
}
