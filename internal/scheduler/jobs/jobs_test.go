package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/internal/external/coingecko"
	"github.com/wonny/coinpulse/internal/external/mood"
	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/logger"
)

type fakeMarketSource struct {
	codes []string
	err   error
}

func (f *fakeMarketSource) MarketCodes(context.Context) ([]string, error) {
	return f.codes, f.err
}

type fakeConsumer struct {
	symbols []string
}

func (f *fakeConsumer) UpdateSymbols(symbols []string) { f.symbols = symbols }

type fakeSubscriber struct {
	codes []string
	err   error
}

func (f *fakeSubscriber) Subscribe(codes ...string) error {
	f.codes = codes
	return f.err
}

func TestSymbolRefresh_UpdatesScopeAndStream(t *testing.T) {
	source := &fakeMarketSource{codes: []string{"KRW-BTC", "KRW-ETH"}}
	consumer := &fakeConsumer{}
	sub := &fakeSubscriber{}

	job := NewSymbolRefreshJob(source, consumer, sub, nil, "KRW", logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, source.codes, consumer.symbols)
	assert.Equal(t, source.codes, sub.codes)
}

func TestSymbolRefresh_EmptyListKeepsPreviousScope(t *testing.T) {
	consumer := &fakeConsumer{symbols: []string{"KRW-BTC"}}
	job := NewSymbolRefreshJob(&fakeMarketSource{}, consumer, &fakeSubscriber{}, nil, "KRW", logger.Nop())

	assert.Error(t, job.Run(context.Background()))
	assert.Equal(t, []string{"KRW-BTC"}, consumer.symbols, "scope untouched on empty list")
}

func TestSymbolRefresh_SourceError(t *testing.T) {
	job := NewSymbolRefreshJob(&fakeMarketSource{err: errors.New("down")}, &fakeConsumer{}, &fakeSubscriber{}, nil, "KRW", logger.Nop())
	assert.Error(t, job.Run(context.Background()))
}

type fakeGlobal struct {
	stats *coingecko.GlobalStats
	err   error
}

func (f *fakeGlobal) Global(context.Context) (*coingecko.GlobalStats, error) {
	return f.stats, f.err
}

type fakeMood struct {
	reading *mood.Reading
	err     error
}

func (f *fakeMood) Fetch(context.Context) (*mood.Reading, error) {
	return f.reading, f.err
}

type fakeMoodConsumer struct {
	mood *market.MoodSnapshot
}

func (f *fakeMoodConsumer) SetMood(m *market.MoodSnapshot) { f.mood = m }

func TestMoodRefresh_CombinesSources(t *testing.T) {
	consumer := &fakeMoodConsumer{}
	job := NewMoodRefreshJob(
		&fakeGlobal{stats: &coingecko.GlobalStats{MarketCapChange24h: -1.2, BTCDominance: 58}},
		&fakeMood{reading: &mood.Reading{Value: 62, Label: "Greed"}},
		consumer, nil, logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	require.NotNil(t, consumer.mood)
	assert.Equal(t, -1.2, consumer.mood.MarketCapChange24h)
	assert.Equal(t, 58.0, consumer.mood.BTCDominance)
	assert.Equal(t, 62, consumer.mood.FearGreedValue)
	assert.Equal(t, "Greed", consumer.mood.FearGreedLabel)
}

func TestMoodRefresh_PartialFailureDegrades(t *testing.T) {
	consumer := &fakeMoodConsumer{}
	job := NewMoodRefreshJob(
		&fakeGlobal{err: errors.New("down")},
		&fakeMood{reading: &mood.Reading{Value: 30, Label: "Fear"}},
		consumer, nil, logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	require.NotNil(t, consumer.mood)
	assert.Zero(t, consumer.mood.BTCDominance)
	assert.Equal(t, 30, consumer.mood.FearGreedValue)
}

func TestMoodRefresh_AllSourcesFail(t *testing.T) {
	consumer := &fakeMoodConsumer{}
	job := NewMoodRefreshJob(&fakeGlobal{err: errors.New("a")}, &fakeMood{err: errors.New("b")}, consumer, nil, logger.Nop())

	assert.Error(t, job.Run(context.Background()))
	assert.Nil(t, consumer.mood)
}

type fakeCleaner struct {
	retention time.Duration
	deleted   int64
	err       error
}

func (f *fakeCleaner) CleanupOldSnapshots(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention
	return f.deleted, f.err
}

func TestMaintenance_PrunesWithRetention(t *testing.T) {
	cleaner := &fakeCleaner{deleted: 42}
	job := NewMaintenanceJob(cleaner, logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, SnapshotRetention, cleaner.retention)
}

func TestMaintenance_CleanerError(t *testing.T) {
	job := NewMaintenanceJob(&fakeCleaner{err: errors.New("db down")}, logger.Nop())
	assert.Error(t, job.Run(context.Background()))
}
