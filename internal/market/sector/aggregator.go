package sector

import (
	"sort"
	"time"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/logger"
)

// SymbolPrefix tags sector rows so consumers can tell them apart from
// ordinary market symbols
const SymbolPrefix = "SECTOR-"

// Aggregator re-keys a per-symbol ranked snapshot into per-sector totals
// ⭐ SSOT: 섹터 합산은 이 구조체에서만
//
// Stateless between calls: every aggregation starts its accumulators from
// zero. The only shared collaborator is the (read-mostly) classification.
type Aggregator struct {
	classification *Classification
	logger         *logger.Logger
}

// NewAggregator creates a sector aggregator over one classification
func NewAggregator(c *Classification, log *logger.Logger) *Aggregator {
	return &Aggregator{
		classification: c,
		logger:         log,
	}
}

// Aggregate fans each symbol's metric value out to every sector containing
// it, drops sectors that sum to zero or below, and returns the totals sorted
// descending. Symbols unknown to the classification contribute nothing.
// An empty input snapshot yields an empty output, never an error.
func (a *Aggregator) Aggregate(snap *market.RankedSnapshot) *market.RankedSnapshot {
	out := &market.RankedSnapshot{
		Timeframe: snap.Timeframe,
		Kind:      market.KindSector,
		IsReset:   snap.IsReset,
		ResetAt:   snap.ResetAt,
		EventAt:   time.Now(),
	}

	if len(snap.Entries) == 0 {
		return out
	}

	totals := make(map[string]float64)
	for _, entry := range snap.Entries {
		for _, sector := range a.classification.SectorsOf(entry.Symbol) {
			totals[sector] += entry.Value
		}
	}

	entries := make([]market.RankedEntry, 0, len(totals))
	for sector, total := range totals {
		if total <= 0 {
			continue
		}
		entries = append(entries, market.RankedEntry{
			Symbol: SymbolPrefix + sector,
			Value:  total,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	for i := range entries {
		entries[i].Rank = i + 1
	}

	out.Entries = entries
	return out
}
