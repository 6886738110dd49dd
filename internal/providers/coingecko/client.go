package coingecko

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/providers/transport"
)

// Name is the source id of this loader
const Name = "COINGECKO"

// Epoch is the first day CoinGecko has market charts for
var Epoch = time.Date(2013, 4, 28, 0, 0, 0, 0, time.UTC)

// DefaultWindow is how far from the requested time a chart point may lie
const DefaultWindow = 30 * time.Minute

// Config represents CoinGecko client configuration
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int
	Window    time.Duration
}

// Client loads historical prices from market chart ranges
type Client struct {
	http   *transport.Client
	window time.Duration
	logger logrus.FieldLogger
}

// NewClient creates a new CoinGecko client
func NewClient(config *Config, logger logrus.FieldLogger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.coingecko.com/api/v3"
	}

	if config.RateLimit == 0 {
		config.RateLimit = 30 // requests per minute
	}

	if config.Window == 0 {
		config.Window = DefaultWindow
	}

	headers := map[string]string{}
	if config.APIKey != "" {
		headers["x-cg-demo-api-key"] = config.APIKey
	}

	return &Client{
		http: transport.NewClient(transport.Config{
			Source:      Name,
			BaseURL:     strings.TrimRight(config.BaseURL, "/"),
			Timeout:     config.Timeout,
			RateLimit:   config.RateLimit,
			Burst:       1,
			Headers:     headers,
			DecodeError: decodeError,
		}),
		window: config.Window,
		logger: logger.WithField("source", Name),
	}
}

func (c *Client) SourceID() string {
	return Name
}

func (c *Client) LoadPrices(ctx context.Context, requests []models.LoadDataRequest) ([]models.HistoricalPrice, error) {
	return transport.LoadEach(ctx, c.logger, Name, Epoch, requests, c.fetch)
}

// fetch returns the chart point closest to at within the configured window
func (c *Client) fetch(ctx context.Context, req models.LoadDataRequest, at time.Time) (money.Money, bool, error) {
	coinID, ok := CoinID(req.TradeCurrency)
	if !ok {
		return money.Money{}, false, nil
	}

	params := url.Values{}
	params.Set("vs_currency", VsCurrency(req.MarketCurrency))
	params.Set("from", strconv.FormatInt(at.Add(-c.window).Unix(), 10))
	params.Set("to", strconv.FormatInt(at.Add(c.window).Unix(), 10))

	data, err := c.http.Get(ctx, "/coins/"+coinID+"/market_chart/range", params)
	if err != nil {
		return money.Money{}, false, err
	}

	var response MarketChartResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return money.Money{}, false, c.http.ParseError("failed to parse market chart: %v", err)
	}

	var (
		best     PricePoint
		bestDist time.Duration
	)
	for _, point := range response.Prices {
		ts, err := point.Time()
		if err != nil {
			return money.Money{}, false, c.http.ParseError("%v", err)
		}
		dist := ts.Sub(at)
		if dist < 0 {
			dist = -dist
		}
		if dist > c.window {
			continue
		}
		if best == nil || dist < bestDist {
			best, bestDist = point, dist
		}
	}
	if best == nil {
		return money.Money{}, false, nil
	}

	price, err := best.Value()
	if err != nil {
		return money.Money{}, false, c.http.ParseError("%v", err)
	}
	return price, true, nil
}
