package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/sentinel-bot/internal/market"
)

func newTestCache(t *testing.T) *PriceCache {
	t.Helper()
	addr := os.Getenv("SENTINEL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("SENTINEL_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, Prefix: "sentinel-test-" + uuid.NewString()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return NewPriceCache(c, time.Minute)
}

func TestPriceCacheRoundTrip(t *testing.T) {
	pc := newTestCache(t)
	ctx := context.Background()

	_, _, err := pc.GetPrice(ctx, "mint")
	assert.ErrorIs(t, err, market.ErrCacheMiss)

	ts := time.Unix(1_700_000_000, 123)
	require.NoError(t, pc.SetPrice(ctx, "mint", 0.0042, ts))

	price, got, err := pc.GetPrice(ctx, "mint")
	require.NoError(t, err)
	assert.Equal(t, 0.0042, price)
	assert.True(t, ts.Equal(got))
}

func TestPriceCacheIgnoresOlderWrites(t *testing.T) {
	pc := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, pc.SetPrice(ctx, "mint", 2, now))
	require.NoError(t, pc.SetPrice(ctx, "mint", 1, now.Add(-time.Second)))

	price, _, err := pc.GetPrice(ctx, "mint")
	require.NoError(t, err)
	assert.Equal(t, 2.0, price)
}

func TestNewFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := New(ctx, ClientConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
