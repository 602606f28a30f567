package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/trunkgate/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(config.Config{
		CacheTTL:        time.Minute,
		CacheAccountTTL: 5 * time.Hour,
	}, rdb), mr
}

func TestSetGet(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, KeyAccountSnapshot, "sub-1")
	assert.False(t, ok)

	c.SetInt64(ctx, KeyBasePostpaid, "sub-1", 50000, 0)
	v, ok := c.GetInt64(ctx, KeyBasePostpaid, "sub-1")
	require.True(t, ok)
	assert.Equal(t, int64(50000), v)
}

func TestTTLExpiry(t *testing.T) {
	c, mr := testCache(t)
	ctx := context.Background()

	c.Set(ctx, KeyAccountSnapshot, "sub-1", "snapshot", c.AccountTTL())
	mr.FastForward(6 * time.Hour)

	_, ok := c.Get(ctx, KeyAccountSnapshot, "sub-1")
	assert.False(t, ok)
}

func TestDeleteSubscriptionRelated(t *testing.T) {
	c, _ := testCache(t)
	ctx := context.Background()

	c.SetInt64(ctx, KeyBasePostpaid, "sub-1", 1, 0)
	c.SetInt64(ctx, KeyBasePrepaid, "sub-1", 2, 0)
	c.SetInt64(ctx, KeyBasePostpaid, "sub-2", 3, 0)

	require.NoError(t, c.DeleteSubscriptionRelated(ctx, "sub-1"))

	_, ok := c.GetInt64(ctx, KeyBasePostpaid, "sub-1")
	assert.False(t, ok)
	_, ok = c.GetInt64(ctx, KeyBasePrepaid, "sub-1")
	assert.False(t, ok)
	v, ok := c.GetInt64(ctx, KeyBasePostpaid, "sub-2")
	require.True(t, ok)
	assert.Equal(t, int64(3), v)
}
