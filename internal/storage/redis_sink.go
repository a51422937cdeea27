package storage

import (
	"context"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/logger"
	"github.com/wonny/coinpulse/pkg/redis"
)

// RedisSink mirrors the latest ranked snapshot per (kind, timeframe) into
// Redis so other processes (and restarts) can serve rankings without waiting
// for a fresh window.
type RedisSink struct {
	cache  *redis.Cache
	logger *logger.Logger
}

// NewRedisSink creates a snapshot sink backed by the shared cache
func NewRedisSink(cache *redis.Cache, log *logger.Logger) *RedisSink {
	return &RedisSink{
		cache:  cache,
		logger: log,
	}
}

// SaveSnapshot overwrites the cached snapshot for the snapshot's slot
func (s *RedisSink) SaveSnapshot(ctx context.Context, snap *market.RankedSnapshot) error {
	if snap == nil {
		return nil
	}

	key := redis.SnapshotKey(string(snap.Kind), snap.Timeframe.DurationMinutes)
	return s.cache.Set(ctx, key, snap, redis.TTLShort)
}

// LoadSnapshot reads a cached snapshot back; found is false on a miss
func (s *RedisSink) LoadSnapshot(ctx context.Context, kind string, timeframeMinutes int) (*market.RankedSnapshot, bool, error) {
	var snap market.RankedSnapshot
	found, err := s.cache.Get(ctx, redis.SnapshotKey(kind, timeframeMinutes), &snap)
	if err != nil || !found {
		return nil, false, err
	}
	return &snap, true, nil
}
