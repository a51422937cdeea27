package sector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/pkg/logger"
)

func snapshotOf(values map[string]float64) *market.RankedSnapshot {
	snap := &market.RankedSnapshot{
		Timeframe: timeframe.M5,
		Kind:      market.KindVolume,
		EventAt:   time.Now(),
	}
	for symbol, value := range values {
		snap.Entries = append(snap.Entries, market.RankedEntry{Symbol: symbol, Value: value})
	}
	return snap
}

func TestAggregate_FanOutAndSort(t *testing.T) {
	c := NewClassification()
	agg := NewAggregator(c, logger.Nop())

	// BTC and ETH both sit in 메이저; NEAR belongs to both 플랫폼 and AI, so
	// its volume contributes to each.
	out := agg.Aggregate(snapshotOf(map[string]float64{
		"KRW-BTC":  100,
		"KRW-ETH":  50,
		"KRW-NEAR": 30,
	}))

	require.Len(t, out.Entries, 3)
	assert.Equal(t, market.KindSector, out.Kind)
	assert.Equal(t, timeframe.M5, out.Timeframe)

	assert.Equal(t, SymbolPrefix+"메이저", out.Entries[0].Symbol)
	assert.Equal(t, 150.0, out.Entries[0].Value)
	assert.Equal(t, 1, out.Entries[0].Rank)

	// NEAR fans out to both of its sectors with the full value.
	rest := map[string]float64{
		out.Entries[1].Symbol: out.Entries[1].Value,
		out.Entries[2].Symbol: out.Entries[2].Value,
	}
	assert.Equal(t, 30.0, rest[SymbolPrefix+"플랫폼"])
	assert.Equal(t, 30.0, rest[SymbolPrefix+"AI"])

	// Sorted descending.
	for i := 1; i < len(out.Entries); i++ {
		assert.GreaterOrEqual(t, out.Entries[i-1].Value, out.Entries[i].Value)
	}
}

func TestAggregate_UnknownSymbolsExcluded(t *testing.T) {
	agg := NewAggregator(NewClassification(), logger.Nop())

	out := agg.Aggregate(snapshotOf(map[string]float64{
		"KRW-NOPE": 999,
		"KRW-BTC":  10,
	}))

	require.Len(t, out.Entries, 1)
	assert.Equal(t, SymbolPrefix+"메이저", out.Entries[0].Symbol)
}

func TestAggregate_EmptyInput(t *testing.T) {
	agg := NewAggregator(NewClassification(), logger.Nop())

	out := agg.Aggregate(snapshotOf(nil))
	assert.Empty(t, out.Entries)
	assert.Equal(t, market.KindSector, out.Kind)
}

func TestAggregate_NonPositiveSectorsDropped(t *testing.T) {
	agg := NewAggregator(NewClassification(), logger.Nop())

	out := agg.Aggregate(snapshotOf(map[string]float64{
		"KRW-DOGE": -5, // surge-style negative value sums the 밈 sector below zero
		"KRW-BTC":  10,
	}))

	require.Len(t, out.Entries, 1)
	assert.Equal(t, SymbolPrefix+"메이저", out.Entries[0].Symbol)
}

func TestClassification_ToggleInvalidatesLazily(t *testing.T) {
	c := NewClassification()

	// Build the detailed reverse index.
	assert.Contains(t, c.SectorsOf("KRW-SOL"), "플랫폼")
	v1 := c.Version()

	c.SetGranularity(GranularityBasic)
	assert.Greater(t, c.Version(), v1)

	// Rebuilt lazily against the new mapping; must not fail even though the
	// two mappings share no sector names beyond 메이저/밈.
	assert.Equal(t, []string{"알트"}, c.SectorsOf("KRW-SOL"))

	// Setting the same granularity again does not bump the version.
	v2 := c.Version()
	c.SetGranularity(GranularityBasic)
	assert.Equal(t, v2, c.Version())
}

func TestClassification_ToggleRoundTrip(t *testing.T) {
	c := NewClassification()

	original := c.Mapping()

	c.SetGranularity(GranularityBasic)
	// Mutating the returned copy must not leak into the canonical data.
	basic := c.Mapping()
	basic["밈"] = append(basic["밈"], "KRW-INJECTED")

	c.SetGranularity(GranularityDetailed)
	restored := c.Mapping()

	assert.Equal(t, original, restored, "toggling back restores the original mapping exactly")

	c.SetGranularity(GranularityBasic)
	assert.NotContains(t, c.Mapping()["밈"], "KRW-INJECTED")
}
