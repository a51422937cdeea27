package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/engine"
	"github.com/wonny/coinpulse/internal/market/sector"
	"github.com/wonny/coinpulse/internal/market/timeframe"
	"github.com/wonny/coinpulse/pkg/logger"
)

// MarketHandler serves the realtime ranking API
// ⭐ SSOT: 랭킹 API 핸들러는 이 구조체에서만
type MarketHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(eng *engine.Engine, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		engine: eng,
		logger: log,
	}
}

// RankingRow is one API row: a ranked entry decorated with its highlight state
type RankingRow struct {
	Symbol        string  `json:"symbol"`
	Value         float64 `json:"value"`
	ChangePercent float64 `json:"change_percent,omitempty"`
	Price         float64 `json:"price,omitempty"`
	Rank          int     `json:"rank"`
	IsHot         bool    `json:"is_hot"`
	Blink         bool    `json:"blink"`
	BlinkRose     bool    `json:"blink_rose,omitempty"`
	BlinkFell     bool    `json:"blink_fell,omitempty"`
}

// GetVolumeRanking returns the latest volume ranking for a timeframe
// GET /api/ranking/{timeframe}
func (h *MarketHandler) GetVolumeRanking(w http.ResponseWriter, r *http.Request) {
	tf, ok := h.parseTimeframe(w, r)
	if !ok {
		return
	}

	h.respondSnapshot(w, tf, h.engine.VolumeSnapshot(tf))
}

// GetSurgeRanking returns the latest surge ranking for a timeframe
// GET /api/surge/{timeframe}
func (h *MarketHandler) GetSurgeRanking(w http.ResponseWriter, r *http.Request) {
	tf, ok := h.parseTimeframe(w, r)
	if !ok {
		return
	}

	h.respondSnapshot(w, tf, h.engine.SurgeSnapshot(tf))
}

// GetSectorRanking returns the latest per-sector totals for a timeframe
// GET /api/sectors/{timeframe}
func (h *MarketHandler) GetSectorRanking(w http.ResponseWriter, r *http.Request) {
	tf, ok := h.parseTimeframe(w, r)
	if !ok {
		return
	}

	h.respondSnapshot(w, tf, h.engine.SectorSnapshot(tf))
}

// SetGranularity switches the sector classification granularity
// PUT /api/sectors/granularity
func (h *MarketHandler) SetGranularity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Granularity string `json:"granularity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	g := sector.Granularity(body.Granularity)
	if g != sector.GranularityDetailed && g != sector.GranularityBasic {
		respondError(w, http.StatusBadRequest, "granularity must be detailed or basic")
		return
	}

	h.engine.SetSectorGranularity(g)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"granularity": h.engine.SectorGranularity(),
	})
}

// GetHot returns the symbols and sectors currently flagged hot
// GET /api/hot/{timeframe}
func (h *MarketHandler) GetHot(w http.ResponseWriter, r *http.Request) {
	tf, ok := h.parseTimeframe(w, r)
	if !ok {
		return
	}

	keys := h.engine.HotKeys(tf)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"timeframe": tf.DurationMinutes,
			"count":     len(keys),
			"keys":      keys,
		},
	})
}

// ClearBlink acknowledges a rendered blink for one key
// DELETE /api/blink/{timeframe}/{name}
func (h *MarketHandler) ClearBlink(w http.ResponseWriter, r *http.Request) {
	tf, ok := h.parseTimeframe(w, r)
	if !ok {
		return
	}

	name := mux.Vars(r)["name"]
	h.engine.ClearBlink(tf, name)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}

// GetNextReset returns the next window boundary for a timeframe
// GET /api/reset/{timeframe}
func (h *MarketHandler) GetNextReset(w http.ResponseWriter, r *http.Request) {
	tf, ok := h.parseTimeframe(w, r)
	if !ok {
		return
	}

	next, known := h.engine.NextResetTime(tf)
	if !known {
		respondError(w, http.StatusNotFound, "No schedule for timeframe")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"timeframe":    tf.DurationMinutes,
			"next_reset":   next,
			"seconds_left": int(time.Until(next).Seconds()),
		},
	})
}

// GetMood returns the latest external market-mood snapshot
// GET /api/mood
func (h *MarketHandler) GetMood(w http.ResponseWriter, r *http.Request) {
	mood := h.engine.Mood()
	if mood == nil {
		respondError(w, http.StatusNotFound, "Mood not fetched yet")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    mood,
	})
}

// GetStats returns processing statistics
// GET /api/stats
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.engine.Stats(),
	})
}

// parseTimeframe resolves the {timeframe} path variable (window minutes).
// Writes a 400 response and returns ok=false when it is not a supported
// timeframe.
func (h *MarketHandler) parseTimeframe(w http.ResponseWriter, r *http.Request) (timeframe.Timeframe, bool) {
	raw := mux.Vars(r)["timeframe"]

	minutes, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "timeframe must be minutes, e.g. /api/ranking/5")
		return timeframe.Timeframe{}, false
	}

	tf, err := timeframe.ByMinutes(minutes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return timeframe.Timeframe{}, false
	}

	return tf, true
}

// respondSnapshot renders one ranked snapshot with highlight decoration.
// A nil snapshot (no data yet) renders as an empty item list.
func (h *MarketHandler) respondSnapshot(w http.ResponseWriter, tf timeframe.Timeframe, snap *market.RankedSnapshot) {
	data := map[string]interface{}{
		"timeframe": tf.DurationMinutes,
		"display":   tf.DisplayName,
		"items":     []RankingRow{},
		"count":     0,
	}

	if snap != nil {
		rows := make([]RankingRow, 0, len(snap.Entries))
		for _, entry := range snap.Entries {
			rows = append(rows, RankingRow{
				Symbol:        entry.Symbol,
				Value:         entry.Value,
				ChangePercent: entry.ChangePercent,
				Price:         entry.Price,
				Rank:          entry.Rank,
				IsHot:         h.engine.IsHot(tf, entry.Symbol),
				Blink:         h.engine.ShouldBlink(tf, entry.Symbol),
				BlinkRose:     h.engine.BlinkRose(tf, entry.Symbol),
				BlinkFell:     h.engine.BlinkFell(tf, entry.Symbol),
			})
		}

		data["kind"] = snap.Kind
		data["items"] = rows
		data["count"] = len(rows)
		data["event_at"] = snap.EventAt
		if snap.IsReset {
			data["is_reset"] = true
			data["reset_at"] = snap.ResetAt
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
