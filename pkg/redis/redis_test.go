package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/pkg/config"
)

func disabledClient(t *testing.T) *Client {
	t.Helper()

	cfg := &config.Config{Redis: config.RedisConfig{Enabled: false}}
	client, err := New(cfg)
	require.NoError(t, err)
	return client
}

func TestDisabledClient_CacheIsNoOp(t *testing.T) {
	cache := NewCache(disabledClient(t), "coinpulse")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"v": 1}, TTLShort))

	var dest map[string]int
	found, err := cache.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestDisabledClient_GetOrSetFallsThrough(t *testing.T) {
	cache := NewCache(disabledClient(t), "coinpulse")

	var dest map[string]int
	calls := 0
	err := cache.GetOrSet(context.Background(), "k", &dest, TTLShort, func() (interface{}, error) {
		calls++
		return map[string]int{"v": 42}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 42, dest["v"])
}

func TestDisabledClient_RateLimiterAllowsAll(t *testing.T) {
	limiter := NewRateLimiter(disabledClient(t), "coinpulse")

	for i := 0; i < UpbitRateLimit.Limit*2; i++ {
		allowed, _, err := limiter.Allow(context.Background(), UpbitRateLimit)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "snapshot:volume:5m", SnapshotKey("volume", 5))
	assert.Equal(t, "markets:KRW", MarketListKey("KRW"))
	assert.Equal(t, "mood:latest", MoodKey())
}
