package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/internal/api/handlers"
	"github.com/wonny/coinpulse/internal/market"
	"github.com/wonny/coinpulse/internal/market/engine"
	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

func newTestAPI(t *testing.T) (*engine.Engine, http.Handler) {
	t.Helper()

	cfg := &config.Config{Processing: config.DefaultProcessing()}
	eng := engine.New(cfg, logger.Nop())
	router := NewRouter(handlers.NewMarketHandler(eng, logger.Nop()), logger.Nop())
	return eng, router
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	_, router := newTestAPI(t)

	rec := get(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestRanking_EmptyBeforeFirstSnapshot(t *testing.T) {
	_, router := newTestAPI(t)

	rec := get(t, router, "/api/ranking/5")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(5), data["timeframe"])
	assert.Equal(t, float64(0), data["count"])
}

func TestRanking_UnsupportedTimeframe(t *testing.T) {
	_, router := newTestAPI(t)

	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/ranking/7").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/api/ranking/abc").Code)
}

func TestSurgeAndSectorRoutes(t *testing.T) {
	_, router := newTestAPI(t)

	assert.Equal(t, http.StatusOK, get(t, router, "/api/surge/1").Code)
	assert.Equal(t, http.StatusOK, get(t, router, "/api/sectors/1440").Code)
}

func TestGranularityToggle(t *testing.T) {
	_, router := newTestAPI(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/api/sectors/granularity", strings.NewReader(`{"granularity":"basic"}`))
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "basic", decode(t, rec)["granularity"])

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/api/sectors/granularity", strings.NewReader(`{"granularity":"nope"}`))
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMood(t *testing.T) {
	eng, router := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/mood").Code)

	eng.SetMood(&market.MoodSnapshot{FearGreedValue: 62, FearGreedLabel: "Greed", FetchedAt: time.Now()})

	rec := get(t, router, "/api/mood")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(62), data["fear_greed_value"])
}

func TestNextReset(t *testing.T) {
	_, router := newTestAPI(t)

	rec := get(t, router, "/api/reset/5")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.NotEmpty(t, data["next_reset"])
	assert.GreaterOrEqual(t, data["seconds_left"].(float64), float64(0))
}

func TestHotAndClearBlink(t *testing.T) {
	_, router := newTestAPI(t)

	rec := get(t, router, "/api/hot/5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["data"].(map[string]interface{})["count"])

	del := httptest.NewRecorder()
	router.ServeHTTP(del, httptest.NewRequest(http.MethodDelete, "/api/blink/5/KRW-BTC", nil))
	assert.Equal(t, http.StatusOK, del.Code)
}

func TestStats(t *testing.T) {
	_, router := newTestAPI(t)

	rec := get(t, router, "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Contains(t, data, "transformers")
}
