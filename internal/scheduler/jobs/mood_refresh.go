package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/coinpulse/internal/external/coingecko"
	"github.com/wonny/coinpulse/internal/external/mood"
	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/pkg/logger"
)

// GlobalSource fetches global market statistics
type GlobalSource interface {
	Global(ctx context.Context) (*coingecko.GlobalStats, error)
}

// MoodSource fetches the fear & greed index
type MoodSource interface {
	Fetch(ctx context.Context) (*mood.Reading, error)
}

// MoodConsumer receives the combined mood snapshot
type MoodConsumer interface {
	SetMood(*market.MoodSnapshot)
}

// MoodStore persists mood history
type MoodStore interface {
	SaveMood(ctx context.Context, mood *market.MoodSnapshot) error
}

// MoodRefreshJob combines CoinGecko global stats with the fear & greed index
// into one mood snapshot. One source failing degrades the snapshot; both
// failing fails the run.
type MoodRefreshJob struct {
	global   GlobalSource
	mood     MoodSource
	consumer MoodConsumer
	store    MoodStore
	logger   *logger.Logger
}

// NewMoodRefreshJob creates the mood refresh job. store may be nil.
func NewMoodRefreshJob(global GlobalSource, moodSrc MoodSource, consumer MoodConsumer,
	store MoodStore, log *logger.Logger) *MoodRefreshJob {

	return &MoodRefreshJob{
		global:   global,
		mood:     moodSrc,
		consumer: consumer,
		store:    store,
		logger:   log,
	}
}

// Name returns the job name
func (j *MoodRefreshJob) Name() string {
	return "mood_refresh"
}

// Schedule runs every 10 minutes
func (j *MoodRefreshJob) Schedule() string {
	return "0 */10 * * * *"
}

// Run fetches both sources and publishes the combined snapshot
func (j *MoodRefreshJob) Run(ctx context.Context) error {
	snapshot := &market.MoodSnapshot{FetchedAt: time.Now()}

	stats, globalErr := j.global.Global(ctx)
	if globalErr == nil {
		snapshot.MarketCapChange24h = stats.MarketCapChange24h
		snapshot.BTCDominance = stats.BTCDominance
	} else {
		j.logger.WithError(globalErr).Warn("Global stats fetch failed")
	}

	reading, moodErr := j.mood.Fetch(ctx)
	if moodErr == nil {
		snapshot.FearGreedValue = reading.Value
		snapshot.FearGreedLabel = reading.Label
	} else {
		j.logger.WithError(moodErr).Warn("Fear & greed fetch failed")
	}

	if globalErr != nil && moodErr != nil {
		return fmt.Errorf("all mood sources failed: global: %v, fng: %v", globalErr, moodErr)
	}

	j.consumer.SetMood(snapshot)

	if j.store != nil {
		if err := j.store.SaveMood(ctx, snapshot); err != nil {
			j.logger.WithError(err).Debug("Mood history write failed")
		}
	}

	j.logger.WithFields(map[string]interface{}{
		"fear_greed":     snapshot.FearGreedValue,
		"btc_dominance":  snapshot.BTCDominance,
		"mcap_change_24": snapshot.MarketCapChange24h,
	}).Info("Mood refreshed")

	return nil
}
