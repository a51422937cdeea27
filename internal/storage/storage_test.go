package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
	"github.com/wonny/coinpulse/pkg/redis"
)

func snapFor(symbol string) *market.RankedSnapshot {
	return &market.RankedSnapshot{
		Timeframe: timeframe.M5,
		Kind:      market.KindVolume,
		Entries:   []market.RankedEntry{{Symbol: symbol, Value: 1, Rank: 1}},
		EventAt:   time.Now(),
	}
}

func TestWriter_QueueDropsOldestWhenFull(t *testing.T) {
	w := NewWriter(nil, logger.Nop())
	w.maxQueue = 3

	for _, sym := range []string{"A", "B", "C", "D"} {
		require.NoError(t, w.SaveSnapshot(context.Background(), snapFor(sym)))
	}

	batch := w.takeBatch()
	require.Len(t, batch, 3)
	assert.Equal(t, "B", batch[0].Entries[0].Symbol, "oldest snapshot dropped first")
	assert.Equal(t, "D", batch[2].Entries[0].Symbol)
	assert.Equal(t, uint64(1), w.Stats().Dropped)
}

func TestWriter_TakeBatchDrains(t *testing.T) {
	w := NewWriter(nil, logger.Nop())

	w.SaveSnapshot(context.Background(), snapFor("A"))
	w.SaveSnapshot(context.Background(), nil) // nil is ignored

	assert.Len(t, w.takeBatch(), 1)
	assert.Empty(t, w.takeBatch())
	assert.Zero(t, w.Stats().Pending)
}

func TestRedisSink_DisabledRedisIsNoOp(t *testing.T) {
	client, err := redis.New(&config.Config{Redis: config.RedisConfig{Enabled: false}})
	require.NoError(t, err)

	sink := NewRedisSink(redis.NewCache(client, "coinpulse"), logger.Nop())

	require.NoError(t, sink.SaveSnapshot(context.Background(), snapFor("A")))

	_, found, err := sink.LoadSnapshot(context.Background(), "volume", 5)
	require.NoError(t, err)
	assert.False(t, found)
}
