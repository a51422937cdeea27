package market

import (
	"time"

	"github.com/wonny/coinpulse/internal/market/timeframe"
)

// TradeTick represents a single trade event for one symbol
// ⭐ SSOT: 체결 틱 데이터 구조
type TradeTick struct {
	Symbol     string    `json:"symbol"`      // 마켓 코드 (KRW-BTC 등)
	Price      float64   `json:"price"`       // 체결가
	Volume     float64   `json:"volume"`      // 체결량
	Amount     float64   `json:"amount"`      // 체결대금 (price * volume)
	SequenceID int64     `json:"sequence_id"` // 중복 제거용 식별자
	Side       TradeSide `json:"side"`
	Timestamp  time.Time `json:"timestamp"`
}

// TradeSide represents the taker side of a trade
type TradeSide string

const (
	SideBid TradeSide = "BID"
	SideAsk TradeSide = "ASK"
)

// DedupKey builds the key used by transformers to discard duplicate ticks.
func (t *TradeTick) DedupKey() string {
	return t.Symbol + "/" + formatSequence(t.SequenceID)
}

func formatSequence(id int64) string {
	// Faster than fmt.Sprintf on the tick path
	if id == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	n := id
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// RankedEntry is a single row of a ranked snapshot
type RankedEntry struct {
	Symbol        string  `json:"symbol"`
	Value         float64 `json:"value"`          // 누적 거래대금 or 현재가
	ChangePercent float64 `json:"change_percent"` // surge 전용
	Price         float64 `json:"price"`
	Rank          int     `json:"rank"` // 1-based
}

// RankedSnapshot is the periodic output of a window transformer
// ⭐ SSOT: 타임프레임별 랭킹 결과 전달
type RankedSnapshot struct {
	Timeframe timeframe.Timeframe `json:"timeframe"`
	Kind      SnapshotKind        `json:"kind"`
	Entries   []RankedEntry       `json:"entries"`
	IsReset   bool                `json:"is_reset"`
	ResetAt   time.Time           `json:"reset_at,omitempty"`
	EventAt   time.Time           `json:"event_at"`
}

// SnapshotKind distinguishes the transformer variant that produced a snapshot
type SnapshotKind string

const (
	KindVolume SnapshotKind = "volume"
	KindSurge  SnapshotKind = "surge"
	KindSector SnapshotKind = "sector"
)

// StreamEvent is the tagged event type flowing through the tick fan-out.
// Exactly one of Tick/Err is set, discriminated by Kind; consumers switch on
// Kind so a new variant cannot fall through silently.
type StreamEvent struct {
	Kind EventKind
	Tick *TradeTick
	Err  error
}

// EventKind discriminates StreamEvent variants
type EventKind int

const (
	EventTick EventKind = iota
	EventError
)

// TickEvent wraps a tick into a stream event
func TickEvent(t *TradeTick) StreamEvent {
	return StreamEvent{Kind: EventTick, Tick: t}
}

// ErrorEvent wraps an upstream failure into a stream event
func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Kind: EventError, Err: err}
}

// MoodSnapshot is the periodic external market-mood input (CoinGecko global
// stats plus fear & greed index). Consumed read-only by the API layer.
type MoodSnapshot struct {
	MarketCapChange24h float64   `json:"market_cap_change_24h"` // %
	BTCDominance       float64   `json:"btc_dominance"`         // %
	FearGreedValue     int       `json:"fear_greed_value"`      // 0-100
	FearGreedLabel     string    `json:"fear_greed_label"`
	FetchedAt          time.Time `json:"fetched_at"`
}
