package transform

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/stream"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Update is one output of a transformer: either a fresh snapshot or an
// upstream error. On error the last-known-good snapshot stays queryable via
// Latest, so consumers can keep rendering stale data while the transport
// reconnects.
type Update struct {
	Snapshot *market.RankedSnapshot
	Err      error
}

// Transformer turns the shared tick stream into periodic ranked snapshots
// for one timeframe
// ⭐ SSOT: 타임프레임별 윈도우 변환은 이 구조체에서만
//
// All mutable window state (aggregator, dedup cache, tick buffer) is confined
// to the run goroutine; no locks are taken on the tick path.
type Transformer struct {
	tf     timeframe.Timeframe
	agg    Aggregator
	cfg    config.ProcessingConfig
	logger *logger.Logger

	ticks  *stream.Subscription
	resets *timeframe.ResetSubscription

	// Symbol scope. Written rarely by the refresh job, read per tick.
	symbolsMu sync.RWMutex
	symbols   map[string]struct{} // nil means accept everything

	// Run-loop-confined state
	dedup     *dedupCache
	buffer    []*market.TradeTick
	interval  time.Duration
	lastBatch int
	createdAt time.Time

	out      chan Update
	latestMu sync.RWMutex
	latest   *market.RankedSnapshot

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}

	// Counters
	processed  atomic.Uint64
	duplicates atomic.Uint64
	malformed  atomic.Uint64
}

// New creates a transformer for one timeframe. It does not start consuming
// until Start is called; the subscriptions are owned by the transformer and
// cancelled on shutdown.
func New(tf timeframe.Timeframe, agg Aggregator, cfg config.ProcessingConfig, log *logger.Logger,
	ticks *stream.Subscription, resets *timeframe.ResetSubscription) *Transformer {

	return &Transformer{
		tf:        tf,
		agg:       agg,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"timeframe": tf.DisplayName, "kind": agg.Kind()}),
		ticks:     ticks,
		resets:    resets,
		dedup:     newDedupCache(cfg.MaxDedupCacheSize),
		interval:  cfg.DefaultBatchInterval,
		createdAt: time.Now(),
		out:       make(chan Update, 16),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Timeframe returns the owning timeframe
func (t *Transformer) Timeframe() timeframe.Timeframe {
	return t.tf
}

// Kind returns the snapshot variant this transformer emits
func (t *Transformer) Kind() market.SnapshotKind {
	return t.agg.Kind()
}

// Out returns the update channel. Closed after shutdown completes.
func (t *Transformer) Out() <-chan Update {
	return t.out
}

// Latest returns the most recently emitted snapshot, nil before the first
// flush
func (t *Transformer) Latest() *market.RankedSnapshot {
	t.latestMu.RLock()
	defer t.latestMu.RUnlock()

	return t.latest
}

// UpdateSymbols replaces the set of symbols this transformer accepts.
// Window state for symbols that remain is untouched; an empty list removes
// the scope filter.
func (t *Transformer) UpdateSymbols(symbols []string) {
	var set map[string]struct{}
	if len(symbols) > 0 {
		set = make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			set[s] = struct{}{}
		}
	}

	t.symbolsMu.Lock()
	t.symbols = set
	t.symbolsMu.Unlock()
}

// Start launches the run loop
func (t *Transformer) Start(ctx context.Context) {
	go t.run(ctx)
}

// Stop shuts the transformer down: the batch timer is stopped first, then
// any buffered ticks are flushed, then subscriptions are cancelled and the
// output channel closed. Blocks until the run loop has exited.
func (t *Transformer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
	<-t.doneCh
}

// run is the single event loop owning all window state
func (t *Transformer) run(ctx context.Context) {
	defer close(t.doneCh)

	// Warm-up uses a fixed slower interval so a fresh transformer joining a
	// busy stream does not spike CPU before the adaptive logic has data.
	timer := time.NewTimer(t.cfg.WarmupInterval)

	defer func() {
		// Timer first, then the final flush: a timer firing mid-shutdown
		// must not race the tail of the window's data.
		timer.Stop()
		t.flush()
		t.ticks.Cancel()
		t.resets.Cancel()
		close(t.out)
		t.logger.Debug("Transformer stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return

		case ev, ok := <-t.ticks.C():
			if !ok {
				return
			}
			switch ev.Kind {
			case market.EventTick:
				t.ingest(ev.Tick)
			case market.EventError:
				// Surface upstream failures, keep window state intact so
				// processing resumes where it left off after reconnect.
				t.send(Update{Err: ev.Err})
			}

		case sig := <-t.resets.C():
			if !sig.Initial {
				t.reset(sig)
			}

		case <-timer.C:
			t.flush()
			timer.Reset(t.nextInterval())
		}
	}
}

// ingest buffers one tick, discarding out-of-scope and duplicate ones
func (t *Transformer) ingest(tick *market.TradeTick) {
	if tick == nil || !t.inScope(tick.Symbol) {
		return
	}

	if t.dedup.Seen(tick.DedupKey()) {
		t.duplicates.Add(1)
		return
	}

	t.buffer = append(t.buffer, tick)
}

func (t *Transformer) inScope(symbol string) bool {
	t.symbolsMu.RLock()
	defer t.symbolsMu.RUnlock()

	if t.symbols == nil {
		return true
	}
	_, ok := t.symbols[symbol]
	return ok
}

// flush drains the buffer into the aggregator and emits one ranked snapshot.
// Nothing is emitted when no tick arrived since the last flush.
func (t *Transformer) flush() {
	t.lastBatch = len(t.buffer)
	if t.lastBatch == 0 {
		return
	}

	t.applyBuffered()
	t.agg.TrimToLimit(t.cfg.MaxTrackedSymbols)

	entries := t.agg.Snapshot()
	for i := range entries {
		entries[i].Rank = i + 1
	}

	snap := &market.RankedSnapshot{
		Timeframe: t.tf,
		Kind:      t.agg.Kind(),
		Entries:   entries,
		EventAt:   time.Now(),
	}

	t.setLatest(snap)
	t.send(Update{Snapshot: snap})
}

// applyBuffered folds buffered ticks into the aggregator in arrival order.
// A single bad tick is dropped and counted, never fails the batch.
func (t *Transformer) applyBuffered() {
	for _, tick := range t.buffer {
		if tick.Price <= 0 || tick.Volume < 0 {
			t.malformed.Add(1)
			continue
		}
		t.agg.Apply(tick)
		t.processed.Add(1)
	}
	t.buffer = t.buffer[:0]
}

// reset closes the elapsed window: buffered ticks still belong to it and are
// folded in first, then state is rebased and a reset snapshot emitted so
// downstream rank trackers clear history exactly at the boundary.
func (t *Transformer) reset(sig timeframe.ResetSignal) {
	t.lastBatch = len(t.buffer)
	t.applyBuffered()

	t.agg.Rebase()

	snap := &market.RankedSnapshot{
		Timeframe: t.tf,
		Kind:      t.agg.Kind(),
		IsReset:   true,
		ResetAt:   sig.FiredAt,
		EventAt:   time.Now(),
	}

	t.setLatest(snap)
	t.send(Update{Snapshot: snap})

	t.logger.WithField("next_reset", sig.NextReset).Debug("Window rebased")
}

// nextInterval adapts the batch interval to the observed load: large batches
// shrink it toward the minimum, small ones grow it toward the maximum.
func (t *Transformer) nextInterval() time.Duration {
	if time.Since(t.createdAt) < t.cfg.WarmupDuration {
		return t.cfg.WarmupInterval
	}

	switch {
	case t.lastBatch >= t.cfg.HighLoadThreshold:
		t.interval = t.interval * 3 / 4
		if t.interval < t.cfg.MinBatchInterval {
			t.interval = t.cfg.MinBatchInterval
		}
	case t.lastBatch <= t.cfg.LowLoadThreshold:
		t.interval = t.interval * 5 / 4
		if t.interval > t.cfg.MaxBatchInterval {
			t.interval = t.cfg.MaxBatchInterval
		}
	}

	return t.interval
}

func (t *Transformer) setLatest(snap *market.RankedSnapshot) {
	t.latestMu.Lock()
	t.latest = snap
	t.latestMu.Unlock()
}

// send delivers an update without ever blocking the run loop; when the
// consumer lags, its oldest pending update is replaced.
func (t *Transformer) send(u Update) {
	select {
	case t.out <- u:
	default:
		select {
		case <-t.out:
		default:
		}
		select {
		case t.out <- u:
		default:
		}
	}
}

// Stats returns processing counters for monitoring
func (t *Transformer) Stats() Stats {
	return Stats{
		Timeframe:  t.tf.DisplayName,
		Kind:       string(t.agg.Kind()),
		Processed:  t.processed.Load(),
		Duplicates: t.duplicates.Load(),
		Malformed:  t.malformed.Load(),
	}
}

// Stats represents one transformer's processing counters
type Stats struct {
	Timeframe  string `json:"timeframe"`
	Kind       string `json:"kind"`
	Processed  uint64 `json:"processed"`
	Duplicates uint64 `json:"duplicates"`
	Malformed  uint64 `json:"malformed"`
}
