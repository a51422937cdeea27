package transform

import (
	"sort"

	"github.com/wonny/coinpulse/internal/market"
)

// volumeState is one symbol's accumulated turnover inside one window
type volumeState struct {
	total     float64 // 누적 거래대금
	lastPrice float64
}

// VolumeAggregator accumulates per-symbol traded amount for one timeframe
// ⭐ SSOT: 거래대금 랭킹 집계
type VolumeAggregator struct {
	states map[string]*volumeState
}

// NewVolumeAggregator creates an empty volume aggregator
func NewVolumeAggregator() *VolumeAggregator {
	return &VolumeAggregator{
		states: make(map[string]*volumeState),
	}
}

// Kind returns the volume snapshot kind
func (a *VolumeAggregator) Kind() market.SnapshotKind {
	return market.KindVolume
}

// Apply adds the tick's amount to the symbol's running total
func (a *VolumeAggregator) Apply(tick *market.TradeTick) {
	st, ok := a.states[tick.Symbol]
	if !ok {
		st = &volumeState{}
		a.states[tick.Symbol] = st
	}

	amount := tick.Amount
	if amount == 0 {
		amount = tick.Price * tick.Volume
	}

	st.total += amount
	st.lastPrice = tick.Price
}

// Snapshot returns entries sorted descending by accumulated amount.
// Zero-volume symbols are excluded.
func (a *VolumeAggregator) Snapshot() []market.RankedEntry {
	entries := make([]market.RankedEntry, 0, len(a.states))
	for symbol, st := range a.states {
		if st.total <= 0 {
			continue
		}
		entries = append(entries, market.RankedEntry{
			Symbol: symbol,
			Value:  st.total,
			Price:  st.lastPrice,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Value != entries[j].Value {
			return entries[i].Value > entries[j].Value
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	return entries
}

// Rebase zeroes every accumulator for the new window
func (a *VolumeAggregator) Rebase() {
	for _, st := range a.states {
		st.total = 0
	}
}

// TrimToLimit keeps only the top max symbols by accumulated amount
func (a *VolumeAggregator) TrimToLimit(max int) {
	if len(a.states) <= max {
		return
	}

	type ranked struct {
		symbol string
		total  float64
	}
	all := make([]ranked, 0, len(a.states))
	for symbol, st := range a.states {
		all = append(all, ranked{symbol, st.total})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].total > all[j].total })

	for _, r := range all[max:] {
		delete(a.states, r.symbol)
	}
}

// Len returns the number of tracked symbols
func (a *VolumeAggregator) Len() int {
	return len(a.states)
}
