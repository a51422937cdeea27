package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Writer persists ranked snapshots to PostgreSQL in periodic batches
// ⭐ SSOT: 스냅샷 DB 동기화는 이 구조체에서만
//
// SaveSnapshot only appends to an in-memory queue, so the hot path never
// waits on the database; a worker drains the queue on a fixed cadence. When
// the queue overflows the oldest snapshots are dropped: history has gaps
// under sustained DB outage, the engine itself is unaffected.
type Writer struct {
	db       *pgxpool.Pool
	logger   *logger.Logger
	interval time.Duration
	maxQueue int

	mu      sync.Mutex
	pending []*market.RankedSnapshot
	dropped uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWriter creates a snapshot writer
func NewWriter(db *pgxpool.Pool, log *logger.Logger) *Writer {
	return &Writer{
		db:       db,
		logger:   log,
		interval: 1 * time.Second,
		maxQueue: 1000,
		stopCh:   make(chan struct{}),
	}
}

// SaveSnapshot queues one snapshot for persistence. Never blocks.
func (w *Writer) SaveSnapshot(_ context.Context, snap *market.RankedSnapshot) error {
	if snap == nil {
		return nil
	}

	w.mu.Lock()
	if len(w.pending) >= w.maxQueue {
		w.pending = w.pending[1:]
		w.dropped++
	}
	w.pending = append(w.pending, snap)
	w.mu.Unlock()

	return nil
}

// Start starts the flush worker
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				// Final flush so a clean shutdown loses nothing.
				if err := w.flush(context.Background()); err != nil {
					w.logger.WithError(err).Error("Final snapshot flush failed")
				}
				return
			case <-ticker.C:
				if err := w.flush(ctx); err != nil {
					w.logger.WithError(err).Error("Snapshot flush failed")
				}
			}
		}
	}()

	w.logger.Info("Snapshot writer started")
}

// Stop stops the worker after one final flush
func (w *Writer) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("Snapshot writer stopped")
}

// takeBatch removes and returns everything currently queued
func (w *Writer) takeBatch() []*market.RankedSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	batch := w.pending
	w.pending = nil
	return batch
}

// flush writes all queued snapshots in one pgx batch
func (w *Writer) flush(ctx context.Context) error {
	snaps := w.takeBatch()
	if len(snaps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	rowCount := 0
	for _, snap := range snaps {
		for _, entry := range snap.Entries {
			batch.Queue(`
				INSERT INTO market.ranked_snapshots (
					timeframe_minutes, kind, symbol, value, change_percent, price, rank, is_reset, event_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			`,
				snap.Timeframe.DurationMinutes,
				string(snap.Kind),
				entry.Symbol,
				entry.Value,
				entry.ChangePercent,
				entry.Price,
				entry.Rank,
				snap.IsReset,
				snap.EventAt,
			)
			rowCount++
		}
	}

	if rowCount == 0 {
		return nil
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < rowCount; i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert snapshot row: %w", err)
		}
	}

	w.logger.WithFields(map[string]interface{}{
		"snapshots": len(snaps),
		"rows":      rowCount,
	}).Debug("Flushed snapshot batch")

	return nil
}

// SaveMood stores one market-mood reading
func (w *Writer) SaveMood(ctx context.Context, mood *market.MoodSnapshot) error {
	query := `
		INSERT INTO market.mood_history (
			market_cap_change_24h, btc_dominance, fear_greed_value, fear_greed_label, fetched_at
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := w.db.Exec(ctx, query,
		mood.MarketCapChange24h,
		mood.BTCDominance,
		mood.FearGreedValue,
		mood.FearGreedLabel,
		mood.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("save mood: %w", err)
	}

	return nil
}

// CleanupOldSnapshots deletes snapshot rows older than the retention window.
// Returns the number of deleted rows.
func (w *Writer) CleanupOldSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	query := `DELETE FROM market.ranked_snapshots WHERE event_at < NOW() - $1::interval`

	tag, err := w.db.Exec(ctx, query, retention.String())
	if err != nil {
		return 0, fmt.Errorf("cleanup snapshots: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Stats returns writer queue statistics
func (w *Writer) Stats() WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WriterStats{
		Pending: len(w.pending),
		Dropped: w.dropped,
	}
}

// WriterStats represents writer queue state
type WriterStats struct {
	Pending int    `json:"pending"`
	Dropped uint64 `json:"dropped"`
}
