package rank

import (
	"sync"
	"time"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Key scopes tracker state to one (timeframe, symbol-or-sector) pair.
// Timeframes are identified by duration so two Timeframe values of the same
// length share state.
type Key struct {
	TimeframeMinutes int
	Name             string
}

// record is one key's last observed ranking plus its pending blink flags
type record struct {
	rank  int
	value float64

	blinkRose bool // rank improved with a consistent value change
	blinkFell bool // rank worsened with a consistent value change
}

// Tracker answers "is this key hot?" and "should this key blink?" per
// timeframe
// ⭐ SSOT: 핫/블링크 판정은 이 구조체에서만
//
// Hot is sticky: a key entering the qualifying top rank range stays hot
// until its timeframe resets or the dwell time elapses after it last
// qualified, so briefly dropping out of the range does not flicker.
// Blink is edge-triggered: it stays set until the consumer clears it.
type Tracker struct {
	cfg    config.ProcessingConfig
	logger *logger.Logger
	now    func() time.Time

	mu      sync.RWMutex
	history map[Key]*record
	hot     map[Key]time.Time // last instant the key occupied a qualifying rank
}

// NewTracker creates an empty tracker
func NewTracker(cfg config.ProcessingConfig, log *logger.Logger) *Tracker {
	return &Tracker{
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
		history: make(map[Key]*record),
		hot:     make(map[Key]time.Time),
	}
}

// Observe folds one ranked snapshot into the tracker. A reset snapshot
// clears exactly its own timeframe's state.
func (t *Tracker) Observe(snap *market.RankedSnapshot) {
	if snap == nil {
		return
	}
	if snap.IsReset {
		t.Reset(snap.Timeframe)
		return
	}

	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, entry := range snap.Entries {
		key := Key{snap.Timeframe.DurationMinutes, entry.Symbol}

		if entry.Rank > 0 && entry.Rank <= t.cfg.HotTopRank {
			t.hot[key] = now
		}

		rec := &record{rank: entry.Rank, value: entry.Value}
		if prev, ok := t.history[key]; ok {
			// Blink only on a meaningful move: the rank position changed AND
			// the value moved with it. A pure re-sort tie with an identical
			// value is not a move.
			moved := prev.rank != entry.Rank && prev.value != entry.Value
			rec.blinkRose = prev.blinkRose || (moved && entry.Rank < prev.rank)
			rec.blinkFell = prev.blinkFell || (moved && entry.Rank > prev.rank)
		}
		t.history[key] = rec
	}
}

// IsHot reports whether the key is currently flagged hot for the timeframe
func (t *Tracker) IsHot(tf timeframe.Timeframe, name string) bool {
	key := Key{tf.DurationMinutes, name}
	now := t.now()

	t.mu.RLock()
	since, ok := t.hot[key]
	t.mu.RUnlock()

	if !ok {
		return false
	}
	if now.Sub(since) > t.cfg.HotDwell {
		// Dwell elapsed: expire lazily.
		t.mu.Lock()
		if cur, still := t.hot[key]; still && now.Sub(cur) > t.cfg.HotDwell {
			delete(t.hot, key)
		}
		t.mu.Unlock()
		return false
	}

	return true
}

// ShouldBlink reports whether the key changed meaningfully since the last
// snapshot, in either direction
func (t *Tracker) ShouldBlink(tf timeframe.Timeframe, name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.history[Key{tf.DurationMinutes, name}]
	return ok && (rec.blinkRose || rec.blinkFell)
}

// BlinkRose reports a pending rank-improved blink
func (t *Tracker) BlinkRose(tf timeframe.Timeframe, name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.history[Key{tf.DurationMinutes, name}]
	return ok && rec.blinkRose
}

// BlinkFell reports a pending rank-worsened blink
func (t *Tracker) BlinkFell(tf timeframe.Timeframe, name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rec, ok := t.history[Key{tf.DurationMinutes, name}]
	return ok && rec.blinkFell
}

// ClearBlink acknowledges a rendered blink. Edge-triggered: without this the
// flags stay set and the consumer would re-trigger on every query.
func (t *Tracker) ClearBlink(tf timeframe.Timeframe, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if rec, ok := t.history[Key{tf.DurationMinutes, name}]; ok {
		rec.blinkRose = false
		rec.blinkFell = false
	}
}

// Reset clears rank history and hot state for exactly one timeframe.
// Other timeframes' state is untouched, so switching views never wipes a
// window that is still accumulating.
func (t *Tracker) Reset(tf timeframe.Timeframe) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.history {
		if key.TimeframeMinutes == tf.DurationMinutes {
			delete(t.history, key)
		}
	}
	for key := range t.hot {
		if key.TimeframeMinutes == tf.DurationMinutes {
			delete(t.hot, key)
		}
	}

	t.logger.WithField("timeframe", tf.DisplayName).Debug("Rank history cleared")
}

// HotKeys returns the names currently hot for a timeframe
func (t *Tracker) HotKeys(tf timeframe.Timeframe) []string {
	now := t.now()

	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0)
	for key, since := range t.hot {
		if key.TimeframeMinutes == tf.DurationMinutes && now.Sub(since) <= t.cfg.HotDwell {
			names = append(names, key.Name)
		}
	}
	return names
}

// Stats returns tracker sizes for monitoring
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		HistoryEntries: len(t.history),
		HotEntries:     len(t.hot),
	}
}

// Stats represents tracker state sizes
type Stats struct {
	HistoryEntries int `json:"history_entries"`
	HotEntries     int `json:"hot_entries"`
}
