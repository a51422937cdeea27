package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/coinpulse/pkg/logger"
	"github.com/wonny/coinpulse/pkg/redis"
)

// MarketSource lists tradable market codes
type MarketSource interface {
	MarketCodes(ctx context.Context) ([]string, error)
}

// SymbolConsumer receives the refreshed symbol scope
type SymbolConsumer interface {
	UpdateSymbols(symbols []string)
}

// TradeSubscriber re-targets the realtime trade stream
type TradeSubscriber interface {
	Subscribe(codes ...string) error
}

// SymbolRefreshJob keeps the engine's symbol scope and the websocket
// subscription aligned with the exchange's market list. New listings start
// flowing on the next refresh; delisted markets stop being tracked.
type SymbolRefreshJob struct {
	source     MarketSource
	consumer   SymbolConsumer
	subscriber TradeSubscriber
	cache      *redis.Cache
	quote      string
	logger     *logger.Logger
}

// NewSymbolRefreshJob creates the symbol refresh job. cache may be nil.
func NewSymbolRefreshJob(source MarketSource, consumer SymbolConsumer, subscriber TradeSubscriber,
	cache *redis.Cache, quote string, log *logger.Logger) *SymbolRefreshJob {

	return &SymbolRefreshJob{
		source:     source,
		consumer:   consumer,
		subscriber: subscriber,
		cache:      cache,
		quote:      quote,
		logger:     log,
	}
}

// Name returns the job name
func (j *SymbolRefreshJob) Name() string {
	return "symbol_refresh"
}

// Schedule runs every 5 minutes
func (j *SymbolRefreshJob) Schedule() string {
	return "0 */5 * * * *"
}

// Run fetches the market list and pushes it to the engine and the stream
func (j *SymbolRefreshJob) Run(ctx context.Context) error {
	codes, err := j.source.MarketCodes(ctx)
	if err != nil {
		return fmt.Errorf("fetch market codes: %w", err)
	}
	if len(codes) == 0 {
		// An empty list means the source misbehaved; keeping the previous
		// scope beats silently unsubscribing everything.
		return fmt.Errorf("market list is empty, keeping previous scope")
	}

	j.consumer.UpdateSymbols(codes)

	if err := j.subscriber.Subscribe(codes...); err != nil {
		return fmt.Errorf("resubscribe trade stream: %w", err)
	}

	if j.cache != nil {
		if err := j.cache.Set(ctx, redis.MarketListKey(j.quote), codes, redis.TTLMedium); err != nil {
			j.logger.WithError(err).Debug("Market list cache write failed")
		}
	}

	j.logger.WithField("count", len(codes)).Info("Symbol scope refreshed")
	return nil
}
