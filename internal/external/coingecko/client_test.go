package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/logger"
)

func TestGlobal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/global", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{
			"market_cap_change_percentage_24h_usd": -2.35,
			"market_cap_percentage": {"btc": 58.1, "eth": 12.4}
		}}`))
	}))
	defer server.Close()

	client := NewClient(config.CoinGeckoConfig{BaseURL: server.URL}, logger.Nop())

	stats, err := client.Global(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -2.35, stats.MarketCapChange24h)
	assert.Equal(t, 58.1, stats.BTCDominance)
}

func TestGlobal_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(config.CoinGeckoConfig{BaseURL: server.URL}, logger.Nop())
	client.httpClient.DisableRetry()

	_, err := client.Global(context.Background())
	assert.Error(t, err)
}
