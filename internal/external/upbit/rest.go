package upbit

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/httputil"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Client wraps the Upbit REST API
// ⭐ SSOT: 업비트 REST 호출은 여기서만
type Client struct {
	cfg        config.UpbitConfig
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewClient creates a new REST client
func NewClient(cfg config.UpbitConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httputil.New(log).WithRateLimit(10, 5),
		logger:     log,
	}
}

// Markets fetches every tradable market, filtered to the configured quote
// currency (KRW by default)
func (c *Client) Markets(ctx context.Context) ([]Market, error) {
	url := c.cfg.RESTBaseURL + "/market/all?isDetails=false"

	var all []Market
	if err := c.httpClient.GetJSON(ctx, url, &all); err != nil {
		return nil, fmt.Errorf("fetch markets: %w", err)
	}

	markets := filterByQuote(all, c.cfg.QuoteMarket)

	c.logger.WithFields(map[string]interface{}{
		"total":    len(all),
		"filtered": len(markets),
		"quote":    c.cfg.QuoteMarket,
	}).Debug("Fetched market list")

	return markets, nil
}

// MarketCodes fetches the market list and returns just the codes
func (c *Client) MarketCodes(ctx context.Context) ([]string, error) {
	markets, err := c.Markets(ctx)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(markets))
	for _, m := range markets {
		codes = append(codes, m.Market)
	}
	return codes, nil
}

// filterByQuote keeps markets quoted in the given currency. An empty quote
// keeps everything.
func filterByQuote(markets []Market, quote string) []Market {
	if quote == "" {
		return markets
	}

	prefix := quote + "-"
	filtered := make([]Market, 0, len(markets))
	for _, m := range markets {
		if strings.HasPrefix(m.Market, prefix) {
			filtered = append(filtered, m)
		}
	}
	return filtered
}
