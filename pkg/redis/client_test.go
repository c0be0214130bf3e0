package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Product-Search-Service/pkg/config"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := config.Default().Redis
	cfg.Addr = mr.Addr()
	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestGetSet(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	_, found, err := c.Get(ctx, "search:1:abc")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "search:1:abc", []byte(`{"hits":[]}`), time.Minute))
	v, found, err := c.Get(ctx, "search:1:abc")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"hits":[]}`, string(v))

	assert.True(t, mr.Exists("psearch:search:1:abc"), "keys carry the namespace")
	assert.Equal(t, time.Minute, mr.TTL("psearch:search:1:abc"))

	mr.FastForward(2 * time.Minute)
	_, found, err = c.Get(ctx, "search:1:abc")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFlushByPattern(t *testing.T) {
	c, mr := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2*scanBatch+5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("search:%d:k", i), []byte("x"), 0))
	}
	require.NoError(t, c.Set(ctx, "other", []byte("x"), 0))
	require.NoError(t, mr.Set("search:foreign", "x"))

	n, err := c.FlushByPattern(ctx, "search:*")
	require.NoError(t, err)
	assert.Equal(t, int64(2*scanBatch+5), n)
	assert.ElementsMatch(t, []string{"psearch:other", "search:foreign"}, mr.Keys())
}

func TestUnavailable(t *testing.T) {
	c, mr := setupTestRedis(t)
	require.NoError(t, c.Ping(context.Background()))

	addr := mr.Addr()
	mr.Close()
	assert.Error(t, c.Ping(context.Background()))
	_, found, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, found)

	cfg := config.Default().Redis
	cfg.Addr = addr
	_, err = NewClient(cfg)
	assert.ErrorContains(t, err, "redis ping")
}
