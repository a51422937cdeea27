package mood

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/coinpulse/pkg/config"
	"github.com/wonny/coinpulse/pkg/httputil"
	"github.com/wonny/coinpulse/pkg/logger"
)

// Reading is one fear & greed index observation
type Reading struct {
	Value int    `json:"value"` // 0-100
	Label string `json:"label"`
}

// apiResponse is the alternative.me JSON wire format
type apiResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

// Client fetches the crypto fear & greed index
// ⭐ SSOT: 공포탐욕지수 조회는 여기서만
//
// The JSON API is the primary source; when it is unavailable the index page
// itself is scraped as a backup.
type Client struct {
	cfg        config.MoodConfig
	httpClient *httputil.Client
	logger     *logger.Logger
}

// NewClient creates a new fear & greed client
func NewClient(cfg config.MoodConfig, log *logger.Logger) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: httputil.New(log),
		logger:     log,
	}
}

// Fetch returns the current index reading, falling back to the HTML page when
// the API fails
func (c *Client) Fetch(ctx context.Context) (*Reading, error) {
	reading, err := c.fetchFromAPI(ctx)
	if err == nil {
		return reading, nil
	}

	c.logger.WithError(err).Warn("Fear & greed API failed, falling back to page scrape")

	reading, scrapeErr := c.fetchFromPage(ctx)
	if scrapeErr != nil {
		return nil, fmt.Errorf("all mood sources failed: api: %v, page: %w", err, scrapeErr)
	}

	return reading, nil
}

func (c *Client) fetchFromAPI(ctx context.Context) (*Reading, error) {
	var resp apiResponse
	if err := c.httpClient.GetJSON(ctx, c.cfg.APIURL, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty fear & greed response")
	}

	value, err := strconv.Atoi(resp.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("unparseable index value %q", resp.Data[0].Value)
	}

	label := resp.Data[0].ValueClassification
	if label == "" {
		label = Classify(value)
	}

	return &Reading{Value: value, Label: label}, nil
}

func (c *Client) fetchFromPage(ctx context.Context) (*Reading, error) {
	resp, err := c.httpClient.Get(ctx, c.cfg.PageURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from mood page", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse mood page: %w", err)
	}

	text := strings.TrimSpace(doc.Find(".fng-circle").First().Text())
	value, err := strconv.Atoi(text)
	if err != nil {
		return nil, fmt.Errorf("index value not found on page")
	}

	return &Reading{Value: value, Label: Classify(value)}, nil
}

// Classify maps an index value to its canonical label
func Classify(value int) string {
	switch {
	case value < 25:
		return "Extreme Fear"
	case value < 45:
		return "Fear"
	case value <= 55:
		return "Neutral"
	case value <= 75:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
