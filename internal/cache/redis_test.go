package cache

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxtrader/pricing-sub000/internal/monitoring"
)

func newTestRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	config := DefaultRedisConfig()
	config.URL = "redis://" + mr.Addr()

	c, err := NewRedisCache(context.Background(), config, monitoring.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	return c, mr
}

func TestRedisCache_SetAndMetrics(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("6500.00000000"), 0))
	require.NoError(t, c.Set(ctx, "ttl", []byte("1"), time.Minute))
	mr.FastForward(2 * time.Minute)

	values, err := c.MGet(ctx, []string{"k", "ttl", "missing"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"k": []byte("6500.00000000")}, values)

	metrics := c.GetMetrics()
	assert.Equal(t, int64(1), metrics.HitCount)
	assert.Equal(t, int64(2), metrics.MissCount)
	assert.Equal(t, int64(2), metrics.SetCount)
	assert.Equal(t, int64(1), metrics.GetCount)
	assert.InDelta(t, 1.0/3.0, metrics.HitRatio, 0.001)
}

func TestRedisCache_Batch(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.MSet(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}, 0))

	values, err := c.MGet(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte("1"), "b": []byte("2")}, values)

	empty, err := c.MGet(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisCache_Sets(t *testing.T) {
	c, _ := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.SAdd(ctx, "s", []byte("BINANCE"), []byte("COINBASE")))
	require.NoError(t, c.SAdd(ctx, "s", []byte("BINANCE")))

	members, err := c.SMembers(ctx, "s")
	require.NoError(t, err)

	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, string(m))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"BINANCE", "COINBASE"}, names)
}

func TestRedisCache_ConnectionErrors(t *testing.T) {
	c, mr := newTestRedisCache(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))
	mr.Close()

	err := c.Ping(ctx)
	var cacheErr *CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, ErrCodeConnectionFailed, cacheErr.Code)

	_, err = NewRedisCache(ctx, &CacheConfig{URL: "not-a-url"}, nil)
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, ErrCodeInvalidConfig, cacheErr.Code)
}
