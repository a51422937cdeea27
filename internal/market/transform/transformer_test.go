package transform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/stream"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

func testConfig() config.ProcessingConfig {
	cfg := config.DefaultProcessing()
	cfg.WarmupDuration = 0 // adaptive logic engages immediately in tests
	return cfg
}

func newTestTransformer(agg Aggregator, cfg config.ProcessingConfig) *Transformer {
	// Subscriptions are only touched by the run loop; synchronous tests that
	// drive ingest/flush/reset directly can leave them nil.
	return New(timeframe.M1, agg, cfg, logger.Nop(), nil, nil)
}

func mkTick(symbol string, seq int64, price, volume float64) *market.TradeTick {
	return &market.TradeTick{
		Symbol:     symbol,
		Price:      price,
		Volume:     volume,
		Amount:     price * volume,
		SequenceID: seq,
		Timestamp:  time.Now(),
	}
}

func TestTransformer_DedupIdempotence(t *testing.T) {
	tr := newTestTransformer(NewVolumeAggregator(), testConfig())

	tick := mkTick("KRW-BTC", 42, 1000, 2)
	tr.ingest(tick)
	tr.ingest(tick) // exact replay
	tr.ingest(mkTick("KRW-BTC", 42, 1000, 2))

	tr.flush()
	first := tr.Latest()
	require.NotNil(t, first)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, 2000.0, first.Entries[0].Value)
	assert.Equal(t, uint64(2), tr.Stats().Duplicates)

	// Replaying after the flush changes nothing either.
	tr.ingest(mkTick("KRW-BTC", 42, 1000, 2))
	tr.flush()
	assert.Equal(t, first, tr.Latest(), "replayed tick must not produce a new snapshot")
}

func TestTransformer_MalformedTickSwallowed(t *testing.T) {
	tr := newTestTransformer(NewVolumeAggregator(), testConfig())

	tr.ingest(mkTick("KRW-BTC", 1, -5, 1)) // bad price
	tr.ingest(mkTick("KRW-ETH", 2, 100, 3))
	tr.flush()

	snap := tr.Latest()
	require.NotNil(t, snap)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "KRW-ETH", snap.Entries[0].Symbol)
	assert.Equal(t, uint64(1), tr.Stats().Malformed)
}

func TestTransformer_SymbolScope(t *testing.T) {
	tr := newTestTransformer(NewVolumeAggregator(), testConfig())
	tr.UpdateSymbols([]string{"KRW-BTC"})

	tr.ingest(mkTick("KRW-BTC", 1, 100, 1))
	tr.ingest(mkTick("KRW-DOGE", 2, 1, 500))
	tr.flush()

	snap := tr.Latest()
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "KRW-BTC", snap.Entries[0].Symbol)

	// Changing the scope keeps in-flight state for surviving symbols.
	tr.UpdateSymbols([]string{"KRW-BTC", "KRW-ETH"})
	tr.ingest(mkTick("KRW-BTC", 3, 100, 1))
	tr.flush()
	assert.Equal(t, 200.0, tr.Latest().Entries[0].Value)
}

func TestVolumeSortContract(t *testing.T) {
	// Volumes {A: 100, B: 0, C: 50} -> [A(100), C(50)], B omitted.
	agg := NewVolumeAggregator()
	agg.Apply(mkTick("A", 1, 100, 1))
	agg.Apply(mkTick("C", 2, 50, 1))
	agg.states["B"] = &volumeState{total: 0, lastPrice: 10}

	entries := agg.Snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Symbol)
	assert.Equal(t, 100.0, entries[0].Value)
	assert.Equal(t, "C", entries[1].Symbol)
	assert.Equal(t, 50.0, entries[1].Value)
}

func TestSurgeSortContract(t *testing.T) {
	// Changes {A: +2, B: -8, C: +5, D: -1} -> [C, A, B, D].
	agg := NewSurgeAggregator()
	seed := map[string]float64{"A": 2.0, "B": -8.0, "C": 5.0, "D": -1.0}
	seq := int64(0)
	for symbol, change := range seed {
		seq++
		agg.Apply(mkTick(symbol, seq, 100, 1))
		seq++
		agg.Apply(mkTick(symbol, seq, 100+change, 1))
	}
	// And one unchanged symbol that must be filtered out.
	agg.Apply(mkTick("E", 100, 100, 1))

	entries := agg.Snapshot()
	require.Len(t, entries, 4)

	order := []string{"C", "A", "B", "D"}
	for i, want := range order {
		assert.Equal(t, want, entries[i].Symbol, "position %d", i)
	}

	// Positives precede negatives, magnitudes non-increasing per group.
	assert.InDelta(t, 5.0, entries[0].ChangePercent, 1e-9)
	assert.InDelta(t, 2.0, entries[1].ChangePercent, 1e-9)
	assert.InDelta(t, -8.0, entries[2].ChangePercent, 1e-9)
	assert.InDelta(t, -1.0, entries[3].ChangePercent, 1e-9)
}

func TestWindowRebasing(t *testing.T) {
	t.Run("surge change reads zero after rebase", func(t *testing.T) {
		agg := NewSurgeAggregator()
		agg.Apply(mkTick("KRW-BTC", 1, 100, 1))
		agg.Apply(mkTick("KRW-BTC", 2, 150, 1))
		require.NotEmpty(t, agg.Snapshot())

		agg.Rebase()
		assert.Empty(t, agg.Snapshot(), "all changes must be zero after rebase")
		assert.Equal(t, 150.0, agg.states["KRW-BTC"].basePrice, "current price becomes the new base")

		// Next move is measured against the rebased price.
		agg.Apply(mkTick("KRW-BTC", 3, 165, 1))
		entries := agg.Snapshot()
		require.Len(t, entries, 1)
		assert.InDelta(t, 10.0, entries[0].ChangePercent, 1e-9)
	})

	t.Run("volume accumulator reads zero after rebase", func(t *testing.T) {
		agg := NewVolumeAggregator()
		agg.Apply(mkTick("KRW-BTC", 1, 100, 3))
		require.NotEmpty(t, agg.Snapshot())

		agg.Rebase()
		assert.Empty(t, agg.Snapshot())
		assert.Equal(t, 1, agg.Len(), "symbol state is kept, only accumulators reset")
	})
}

func TestTransformer_ResetEmitsResetSnapshot(t *testing.T) {
	tr := newTestTransformer(NewSurgeAggregator(), testConfig())

	tr.ingest(mkTick("KRW-BTC", 1, 100, 1))
	tr.ingest(mkTick("KRW-BTC", 2, 120, 1))

	boundary := time.Now().Truncate(time.Minute)
	tr.reset(timeframe.ResetSignal{Timeframe: timeframe.M1, FiredAt: boundary})

	snap := tr.Latest()
	require.NotNil(t, snap)
	assert.True(t, snap.IsReset)
	assert.Empty(t, snap.Entries)
	assert.Equal(t, boundary, snap.ResetAt)

	// Buffered ticks were folded into the old window before rebasing, so the
	// rebased base is the last observed price.
	agg := tr.agg.(*SurgeAggregator)
	assert.Equal(t, 120.0, agg.states["KRW-BTC"].basePrice)
}

func TestBoundedTrackedSymbols(t *testing.T) {
	cfg := testConfig()
	cfg.MaxTrackedSymbols = 10

	tr := newTestTransformer(NewVolumeAggregator(), cfg)
	for i := 0; i < 50; i++ {
		symbol := "KRW-SYM" + string(rune('A'+i%26)) + string(rune('A'+i/26))
		tr.ingest(mkTick(symbol, int64(i), float64(i+1), 1))
		tr.flush()
	}

	assert.LessOrEqual(t, tr.agg.Len(), 10)
	assert.LessOrEqual(t, len(tr.Latest().Entries), 10)
}

func TestDedupCache_BulkEviction(t *testing.T) {
	c := newDedupCache(8)

	for i := 0; i < 9; i++ {
		key := "K" + string(rune('0'+i))
		assert.False(t, c.Seen(key))
	}

	// Exceeding the max evicted the oldest quarter in one pass.
	assert.LessOrEqual(t, c.Len(), 8)

	// Evicted keys are treated as brand new.
	assert.False(t, c.Seen("K0"))
	// Recent keys are still known.
	assert.True(t, c.Seen("K8"))
}

func TestTransformer_EvictedKeyReprocessed(t *testing.T) {
	cfg := testConfig()
	cfg.MaxDedupCacheSize = 8

	tr := newTestTransformer(NewVolumeAggregator(), cfg)

	first := mkTick("KRW-BTC", 1, 100, 1)
	tr.ingest(first)
	for i := int64(2); i <= 12; i++ {
		tr.ingest(mkTick("KRW-BTC", i, 100, 1))
	}
	tr.flush()
	before := tr.Latest().Entries[0].Value

	// The first key has been evicted; resending it counts again.
	tr.ingest(mkTick("KRW-BTC", 1, 100, 1))
	tr.flush()
	assert.Greater(t, tr.Latest().Entries[0].Value, before)
	assert.LessOrEqual(t, tr.dedup.Len(), 9)
}

func TestAdaptiveInterval(t *testing.T) {
	cfg := testConfig()
	tr := newTestTransformer(NewVolumeAggregator(), cfg)
	tr.createdAt = time.Now().Add(-time.Minute) // past warm-up

	// High load shrinks toward the minimum.
	tr.lastBatch = cfg.HighLoadThreshold
	prev := tr.interval
	for i := 0; i < 20; i++ {
		next := tr.nextInterval()
		assert.LessOrEqual(t, next, prev)
		assert.GreaterOrEqual(t, next, cfg.MinBatchInterval)
		prev = next
	}
	assert.Equal(t, cfg.MinBatchInterval, prev)

	// Low load grows toward the maximum.
	tr.lastBatch = cfg.LowLoadThreshold
	for i := 0; i < 30; i++ {
		prev = tr.nextInterval()
	}
	assert.Equal(t, cfg.MaxBatchInterval, prev)

	// Medium load keeps the interval unchanged.
	tr.lastBatch = (cfg.LowLoadThreshold + cfg.HighLoadThreshold) / 2
	assert.Equal(t, prev, tr.nextInterval())
}

func TestTransformer_WarmupUsesFixedInterval(t *testing.T) {
	cfg := config.DefaultProcessing()
	cfg.WarmupDuration = time.Hour

	tr := newTestTransformer(NewVolumeAggregator(), cfg)
	tr.lastBatch = cfg.HighLoadThreshold * 2
	assert.Equal(t, cfg.WarmupInterval, tr.nextInterval())
}

func TestTransformer_RunLoopEndToEnd(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupInterval = 10 * time.Millisecond
	cfg.MinBatchInterval = 10 * time.Millisecond
	cfg.DefaultBatchInterval = 20 * time.Millisecond
	cfg.MaxBatchInterval = 50 * time.Millisecond

	hub := stream.NewHub(logger.Nop())
	defer hub.Close()
	scheduler := timeframe.NewResetScheduler([]timeframe.Timeframe{timeframe.M1}, logger.Nop())

	tr := New(timeframe.M1, NewVolumeAggregator(), cfg, logger.Nop(),
		hub.Subscribe(64), scheduler.Subscribe(timeframe.M1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr.Start(ctx)

	hub.Publish(mkTick("KRW-BTC", 1, 100, 2))
	hub.Publish(mkTick("KRW-ETH", 2, 10, 5))

	var snap *market.RankedSnapshot
	deadline := time.After(2 * time.Second)
	for snap == nil {
		select {
		case u := <-tr.Out():
			if u.Snapshot != nil {
				snap = u.Snapshot
			}
		case <-deadline:
			t.Fatal("no snapshot emitted")
		}
	}

	require.Len(t, snap.Entries, 2)
	assert.Equal(t, "KRW-BTC", snap.Entries[0].Symbol)
	assert.Equal(t, 1, snap.Entries[0].Rank)
	assert.Equal(t, 2, snap.Entries[1].Rank)

	// The tail of the window survives shutdown: the final flush runs after
	// the timer stops.
	hub.Publish(mkTick("KRW-BTC", 3, 100, 1))
	time.Sleep(20 * time.Millisecond) // let the run loop ingest it
	tr.Stop()

	final := tr.Latest()
	require.NotNil(t, final)
	assert.Equal(t, 300.0, final.Entries[0].Value)

	// Output channel is closed after shutdown.
	for range tr.Out() {
	}
}

func TestTransformer_UpstreamErrorKeepsLastGood(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupInterval = 10 * time.Millisecond

	hub := stream.NewHub(logger.Nop())
	defer hub.Close()
	scheduler := timeframe.NewResetScheduler([]timeframe.Timeframe{timeframe.M1}, logger.Nop())

	tr := New(timeframe.M1, NewVolumeAggregator(), cfg, logger.Nop(),
		hub.Subscribe(64), scheduler.Subscribe(timeframe.M1))
	tr.Start(context.Background())
	defer tr.Stop()

	hub.Publish(mkTick("KRW-BTC", 1, 100, 1))

	var good *market.RankedSnapshot
	deadline := time.After(2 * time.Second)
	for good == nil {
		select {
		case u := <-tr.Out():
			if u.Snapshot != nil {
				good = u.Snapshot
			}
		case <-deadline:
			t.Fatal("no snapshot emitted")
		}
	}

	hub.PublishError(assert.AnError)

	select {
	case u := <-tr.Out():
		require.Error(t, u.Err)
		assert.Nil(t, u.Snapshot)
	case <-time.After(2 * time.Second):
		t.Fatal("error update not surfaced")
	}

	assert.Equal(t, good, tr.Latest(), "last-known-good snapshot stays queryable")
}
