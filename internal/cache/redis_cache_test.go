package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pizzatruck/backend/internal/domain"
)

func newTestRedisCache(t *testing.T) *RedisStockCache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c := NewRedisStockCache(addr, os.Getenv("REDIS_PASSWORD"), 15)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	c.key = "pizzatruck:test:" + t.Name()
	t.Cleanup(func() {
		_ = c.Invalidate(context.Background())
		_ = c.Close()
	})
	return c
}

func TestRedisStockCacheRoundTripAndInvalidate(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	_, hit, err := c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)

	levels := []domain.StockLevel{{
		ItemID:        "item-flour",
		ItemName:      "Flour",
		Unit:          "kg",
		TotalQuantity: decimal.RequireFromString("49.5"),
	}}
	require.NoError(t, c.Set(ctx, levels, time.Minute))

	got, hit, err := c.Get(ctx)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.True(t, got[0].TotalQuantity.Equal(decimal.RequireFromString("49.5")))

	require.NoError(t, c.Invalidate(ctx))
	_, hit, err = c.Get(ctx)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNoopStockCacheNeverHits(t *testing.T) {
	var c StockCache = NoopStockCache{}
	require.NoError(t, c.Set(context.Background(), []domain.StockLevel{{ItemID: "x"}}, time.Minute))
	_, hit, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, hit)
}
