package engine

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/rank"
	"github.com/wonny/coinpulse/internal/market/sector"
	"github.com/wonny/coinpulse/internal/market/stream"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/internal/market/transform"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

// SnapshotSink receives emitted snapshots for best-effort persistence or
// caching. Sink failures are logged, never propagated into the engine.
type SnapshotSink interface {
	SaveSnapshot(ctx context.Context, snap *market.RankedSnapshot) error
}

// Engine orchestrates the full trade-stream processing graph
// ⭐ SSOT: 실시간 처리 그래프 조립은 이 엔진에서만
//
// One broadcast hub fans the upstream tick stream out to two transformers
// (volume + surge) per timeframe. Volume snapshots are additionally re-keyed
// into sector totals. Every snapshot feeds the rank tracker, and the latest
// one per (timeframe, kind) stays queryable for the API layer.
type Engine struct {
	cfg    *config.Config
	logger *logger.Logger

	hub            *stream.Hub
	scheduler      *timeframe.ResetScheduler
	classification *sector.Classification
	sectorAgg      *sector.Aggregator
	tracker        *rank.Tracker

	volume map[int]*transform.Transformer // keyed by duration minutes
	surge  map[int]*transform.Transformer

	sectorMu     sync.RWMutex
	sectorLatest map[int]*market.RankedSnapshot

	moodMu sync.RWMutex
	mood   *market.MoodSnapshot

	sinks []SnapshotSink

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New assembles an engine for every supported timeframe. Collaborators are
// injected here, at construction; nothing in the engine is process-global.
func New(cfg *config.Config, log *logger.Logger, sinks ...SnapshotSink) *Engine {
	e := &Engine{
		cfg:            cfg,
		logger:         log,
		hub:            stream.NewHub(log),
		scheduler:      timeframe.NewResetScheduler(timeframe.All(), log),
		classification: sector.NewClassification(),
		tracker:        rank.NewTracker(cfg.Processing, log),
		volume:         make(map[int]*transform.Transformer),
		surge:          make(map[int]*transform.Transformer),
		sectorLatest:   make(map[int]*market.RankedSnapshot),
		sinks:          sinks,
		stopCh:         make(chan struct{}),
	}
	e.sectorAgg = sector.NewAggregator(e.classification, log)

	for _, tf := range timeframe.All() {
		e.volume[tf.DurationMinutes] = transform.New(
			tf, transform.NewVolumeAggregator(), cfg.Processing, log,
			e.hub.Subscribe(0), e.scheduler.Subscribe(tf))
		e.surge[tf.DurationMinutes] = transform.New(
			tf, transform.NewSurgeAggregator(), cfg.Processing, log,
			e.hub.Subscribe(0), e.scheduler.Subscribe(tf))
	}

	return e
}

// Start launches the scheduler, every transformer, and their consumers
func (e *Engine) Start(ctx context.Context) {
	e.scheduler.Start(ctx)

	for _, tr := range e.allTransformers() {
		tr.Start(ctx)
		e.wg.Add(1)
		go e.consume(ctx, tr)
	}

	e.logger.WithFields(map[string]interface{}{
		"timeframes":   len(timeframe.All()),
		"transformers": len(e.volume) + len(e.surge),
	}).Info("Market engine started")
}

// Stop shuts the graph down: transformers first (flushing their window
// tails), then the scheduler and the hub.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
	})

	for _, tr := range e.allTransformers() {
		tr.Stop()
	}
	e.wg.Wait()

	e.scheduler.Stop()
	e.hub.Close()

	e.logger.Info("Market engine stopped")
}

// Publish feeds one upstream tick into the graph
func (e *Engine) Publish(tick *market.TradeTick) {
	e.hub.Publish(tick)
}

// PublishError broadcasts an upstream transport failure to every consumer
func (e *Engine) PublishError(err error) {
	e.hub.PublishError(err)
}

// UpdateSymbols re-scopes every transformer to the refreshed market list
func (e *Engine) UpdateSymbols(symbols []string) {
	for _, tr := range e.allTransformers() {
		tr.UpdateSymbols(symbols)
	}

	e.logger.WithField("count", len(symbols)).Info("Symbol scope updated")
}

// consume drains one transformer's updates into the tracker, the sector
// aggregation and the sinks. Exits when the transformer closes its output.
func (e *Engine) consume(ctx context.Context, tr *transform.Transformer) {
	defer e.wg.Done()

	for update := range tr.Out() {
		if update.Err != nil {
			// Upstream failure: the transformer keeps its last-known-good
			// snapshot; processing resumes once the transport reconnects.
			e.logger.WithError(update.Err).WithField("timeframe", tr.Timeframe().DisplayName).
				Warn("Upstream error on tick stream")
			continue
		}

		snap := update.Snapshot
		e.tracker.Observe(snap)

		if snap.Kind == market.KindVolume {
			sectorSnap := e.sectorAgg.Aggregate(snap)
			e.sectorMu.Lock()
			e.sectorLatest[snap.Timeframe.DurationMinutes] = sectorSnap
			e.sectorMu.Unlock()
			e.tracker.Observe(sectorSnap)
		}

		for _, sink := range e.sinks {
			if err := sink.SaveSnapshot(ctx, snap); err != nil {
				e.logger.WithError(err).Debug("Snapshot sink failed")
			}
		}
	}
}

// VolumeSnapshot returns the latest volume ranking for a timeframe, nil when
// no data has been emitted yet. An unknown timeframe is a wiring bug
// upstream: logged, empty result.
func (e *Engine) VolumeSnapshot(tf timeframe.Timeframe) *market.RankedSnapshot {
	tr, ok := e.volume[tf.DurationMinutes]
	if !ok {
		e.logger.WithField("timeframe", tf.DurationMinutes).Error("No volume transformer for timeframe")
		return nil
	}
	return tr.Latest()
}

// SurgeSnapshot returns the latest surge ranking for a timeframe
func (e *Engine) SurgeSnapshot(tf timeframe.Timeframe) *market.RankedSnapshot {
	tr, ok := e.surge[tf.DurationMinutes]
	if !ok {
		e.logger.WithField("timeframe", tf.DurationMinutes).Error("No surge transformer for timeframe")
		return nil
	}
	return tr.Latest()
}

// SectorSnapshot returns the latest per-sector totals for a timeframe
func (e *Engine) SectorSnapshot(tf timeframe.Timeframe) *market.RankedSnapshot {
	e.sectorMu.RLock()
	defer e.sectorMu.RUnlock()

	return e.sectorLatest[tf.DurationMinutes]
}

// SetSectorGranularity switches the sector classification
func (e *Engine) SetSectorGranularity(g sector.Granularity) {
	e.classification.SetGranularity(g)
	e.logger.WithField("granularity", g).Info("Sector granularity changed")
}

// SectorGranularity returns the active classification granularity
func (e *Engine) SectorGranularity() sector.Granularity {
	return e.classification.Granularity()
}

// IsHot reports whether a key is currently flagged hot
func (e *Engine) IsHot(tf timeframe.Timeframe, key string) bool {
	return e.tracker.IsHot(tf, key)
}

// ShouldBlink reports a pending meaningful rank change for a key
func (e *Engine) ShouldBlink(tf timeframe.Timeframe, key string) bool {
	return e.tracker.ShouldBlink(tf, key)
}

// BlinkRose reports a pending rank-improved blink
func (e *Engine) BlinkRose(tf timeframe.Timeframe, key string) bool {
	return e.tracker.BlinkRose(tf, key)
}

// BlinkFell reports a pending rank-worsened blink
func (e *Engine) BlinkFell(tf timeframe.Timeframe, key string) bool {
	return e.tracker.BlinkFell(tf, key)
}

// ClearBlink acknowledges a rendered blink
func (e *Engine) ClearBlink(tf timeframe.Timeframe, key string) {
	e.tracker.ClearBlink(tf, key)
}

// HotKeys returns the keys currently hot for a timeframe
func (e *Engine) HotKeys(tf timeframe.Timeframe) []string {
	return e.tracker.HotKeys(tf)
}

// NextResetTime returns the next window boundary for a timeframe.
// ok is false when the timeframe has no schedule (no data yet).
func (e *Engine) NextResetTime(tf timeframe.Timeframe) (time.Time, bool) {
	return e.scheduler.NextResetTime(tf)
}

// SetMood stores the latest external market-mood reading
func (e *Engine) SetMood(mood *market.MoodSnapshot) {
	e.moodMu.Lock()
	e.mood = mood
	e.moodMu.Unlock()
}

// Mood returns the latest external market-mood reading, nil before the
// first fetch
func (e *Engine) Mood() *market.MoodSnapshot {
	e.moodMu.RLock()
	defer e.moodMu.RUnlock()

	return e.mood
}

// Stats aggregates counters across the whole graph
func (e *Engine) Stats() EngineStats {
	stats := EngineStats{
		Subscribers:  e.hub.SubscriberCount(),
		DroppedTicks: e.hub.Dropped(),
		Tracker:      e.tracker.Stats(),
	}
	for _, tr := range e.allTransformers() {
		stats.Transformers = append(stats.Transformers, tr.Stats())
	}
	return stats
}

// EngineStats represents statistics for the processing graph
type EngineStats struct {
	Subscribers  int               `json:"subscribers"`
	DroppedTicks uint64            `json:"dropped_ticks"`
	Tracker      rank.Stats        `json:"tracker"`
	Transformers []transform.Stats `json:"transformers"`
}

func (e *Engine) allTransformers() []*transform.Transformer {
	all := make([]*transform.Transformer, 0, len(e.volume)+len(e.surge))
	for _, tf := range timeframe.All() {
		if tr, ok := e.volume[tf.DurationMinutes]; ok {
			all = append(all, tr)
		}
		if tr, ok := e.surge[tf.DurationMinutes]; ok {
			all = append(all, tr)
		}
	}
	return all
}
