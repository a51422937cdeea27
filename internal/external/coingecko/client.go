package coingecko

import (
	"context"
	"fmt"

	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/httputil"
	"github.com/wonny/coinpulse/pkg/logger"
)

// GlobalStats is the subset of GET /global used for the market mood view
type GlobalStats struct {
	MarketCapChange24h float64 `json:"market_cap_change_24h"` // %
	BTCDominance       float64 `json:"btc_dominance"`         // %
}

// globalResponse is the CoinGecko wire format
type globalResponse struct {
	Data struct {
		MarketCapChangePercentage24hUSD float64            `json:"market_cap_change_percentage_24h_usd"`
		MarketCapPercentage             map[string]float64 `json:"market_cap_percentage"`
	} `json:"data"`
}

// Client wraps the CoinGecko API
// ⭐ SSOT: 코인게코 호출은 여기서만
type Client struct {
	cfg        config.CoinGeckoConfig
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewClient creates a new CoinGecko client. The free tier is aggressively
// rate limited, so requests are spaced well below the documented cap.
func NewClient(cfg config.CoinGeckoConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httputil.New(log).WithRateLimit(0.5, 1),
		logger:     log,
	}
}

// Global fetches global market statistics
func (c *Client) Global(ctx context.Context) (*GlobalStats, error) {
	url := c.cfg.BaseURL + "/global"
	if c.cfg.APIKey != "" {
		url += "?x_cg_demo_api_key=" + c.cfg.APIKey
	}

	var resp globalResponse
	if err := c.httpClient.GetJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("fetch global stats: %w", err)
	}

	stats := &GlobalStats{
		MarketCapChange24h: resp.Data.MarketCapChangePercentage24hUSD,
		BTCDominance:       resp.Data.MarketCapPercentage["btc"],
	}

	c.logger.WithFields(map[string]interface{}{
		"market_cap_change_24h": stats.MarketCapChange24h,
		"btc_dominance":         stats.BTCDominance,
	}).Debug("Fetched global stats")

	return stats, nil
}
