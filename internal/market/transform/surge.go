package transform

import (
	"math"
	"sort"

	"github.com/wonny/coinpulse/internal/market"
)

// surgeState is one symbol's price movement inside one window
type surgeState struct {
	basePrice     float64 // 윈도우 시작 시점 가격
	currentPrice  float64
	changePercent float64
}

func (s *surgeState) recompute() {
	if s.basePrice == 0 {
		s.changePercent = 0
		return
	}
	s.changePercent = (s.currentPrice - s.basePrice) / s.basePrice * 100
}

// SurgeAggregator tracks per-symbol price change against the window base
// ⭐ SSOT: 가격 급등락 랭킹 집계
type SurgeAggregator struct {
	states map[string]*surgeState
}

// NewSurgeAggregator creates an empty surge aggregator
func NewSurgeAggregator() *SurgeAggregator {
	return &SurgeAggregator{
		states: make(map[string]*surgeState),
	}
}

// Kind returns the surge snapshot kind
func (a *SurgeAggregator) Kind() market.SnapshotKind {
	return market.KindSurge
}

// Apply replaces the symbol's current price and recomputes its change.
// The first price seen for a symbol in a window becomes its base.
func (a *SurgeAggregator) Apply(tick *market.TradeTick) {
	st, ok := a.states[tick.Symbol]
	if !ok {
		st = &surgeState{basePrice: tick.Price}
		a.states[tick.Symbol] = st
	}

	st.currentPrice = tick.Price
	st.recompute()
}

// Snapshot returns entries with all positive changes before all negative
// ones, each group sorted descending by change magnitude. Symbols with zero
// change are excluded.
func (a *SurgeAggregator) Snapshot() []market.RankedEntry {
	entries := make([]market.RankedEntry, 0, len(a.states))
	for symbol, st := range a.states {
		if st.changePercent == 0 {
			continue
		}
		entries = append(entries, market.RankedEntry{
			Symbol:        symbol,
			Value:         st.changePercent,
			ChangePercent: st.changePercent,
			Price:         st.currentPrice,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		pi := entries[i].ChangePercent > 0
		pj := entries[j].ChangePercent > 0
		if pi != pj {
			return pi
		}
		mi := math.Abs(entries[i].ChangePercent)
		mj := math.Abs(entries[j].ChangePercent)
		if mi != mj {
			return mi > mj
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	return entries
}

// Rebase carries each symbol's current price forward as the new base, so
// every change reads exactly zero at the window start.
func (a *SurgeAggregator) Rebase() {
	for _, st := range a.states {
		st.basePrice = st.currentPrice
		st.changePercent = 0
	}
}

// TrimToLimit keeps only the top max symbols by absolute change magnitude
func (a *SurgeAggregator) TrimToLimit(max int) {
	if len(a.states) <= max {
		return
	}

	type ranked struct {
		symbol    string
		magnitude float64
	}
	all := make([]ranked, 0, len(a.states))
	for symbol, st := range a.states {
		all = append(all, ranked{symbol, math.Abs(st.changePercent)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].magnitude > all[j].magnitude })

	for _, r := range all[max:] {
		delete(a.states, r.symbol)
	}
}

// Len returns the number of tracked symbols
func (a *SurgeAggregator) Len() int {
	return len(a.states)
}
