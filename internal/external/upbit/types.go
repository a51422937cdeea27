package upbit

import (
	"encoding/json"
	"time"

	"github.com/wonny/coinpulse/internal/market"
)

// Market is one tradable market from GET /market/all
type Market struct {
	Market      string `json:"market"` // KRW-BTC 형식
	KoreanName  string `json:"korean_name"`
	EnglishName string `json:"english_name"`
}

// tradeMessage is the wire format of one realtime trade event
type tradeMessage struct {
	Type           string  `json:"type"`
	Code           string  `json:"code"`
	TradePrice     float64 `json:"trade_price"`
	TradeVolume    float64 `json:"trade_volume"`
	AskBid         string  `json:"ask_bid"`
	SequentialID   int64   `json:"sequential_id"`
	TradeTimestamp int64   `json:"trade_timestamp"` // ms
}

// parseTrade converts one websocket frame into a trade tick.
// Returns nil for non-trade frames and undecodable payloads.
func parseTrade(data []byte) *market.TradeTick {
	var msg tradeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil
	}
	if msg.Type != "trade" || msg.Code == "" {
		return nil
	}

	side := market.SideBid
	if msg.AskBid == "ASK" {
		side = market.SideAsk
	}

	return &market.TradeTick{
		Symbol:     msg.Code,
		Price:      msg.TradePrice,
		Volume:     msg.TradeVolume,
		Amount:     msg.TradePrice * msg.TradeVolume,
		SequenceID: msg.SequentialID,
		Side:       side,
		Timestamp:  time.UnixMilli(msg.TradeTimestamp),
	}
}
