package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/providers/transport"
)

// Name is the source id of this loader
const Name = "COINBASE"

// Epoch is the first day the exchange traded
var Epoch = time.Date(2015, 1, 26, 0, 0, 0, 0, time.UTC)

// Config represents Coinbase client configuration
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit int
}

// Client loads historical prices from one-minute candles
type Client struct {
	http   *transport.Client
	logger logrus.FieldLogger
}

// NewClient creates a new Coinbase client
func NewClient(config *Config, logger logrus.FieldLogger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.exchange.coinbase.com"
	}

	if config.RateLimit == 0 {
		config.RateLimit = PublicEndpointRateLimit * 60
	}

	return &Client{
		http: transport.NewClient(transport.Config{
			Source:      Name,
			BaseURL:     strings.TrimRight(config.BaseURL, "/"),
			Timeout:     config.Timeout,
			RateLimit:   config.RateLimit,
			DecodeError: decodeError,
		}),
		logger: logger.WithField("source", Name),
	}
}

func (c *Client) SourceID() string {
	return Name
}

func (c *Client) LoadPrices(ctx context.Context, requests []models.LoadDataRequest) ([]models.HistoricalPrice, error) {
	return transport.LoadEach(ctx, c.logger, Name, Epoch, requests, c.fetch)
}

// fetch returns the close of the one-minute candle covering the requested time
func (c *Client) fetch(ctx context.Context, req models.LoadDataRequest, at time.Time) (money.Money, bool, error) {
	start := at.Truncate(time.Minute)

	params := url.Values{}
	params.Set("granularity", "60")
	params.Set("start", start.Format(time.RFC3339))
	params.Set("end", start.Add(time.Minute).Format(time.RFC3339))

	endpoint := fmt.Sprintf("/products/%s/candles", FormatProduct(req.MarketCurrency, req.TradeCurrency))
	data, err := c.http.Get(ctx, endpoint, params)
	if err != nil {
		return money.Money{}, false, err
	}

	var candles []Candle
	if err := json.Unmarshal(data, &candles); err != nil {
		return money.Money{}, false, c.http.ParseError("failed to parse candles: %v", err)
	}

	// Candles come newest first; take the one opening at start, else the oldest returned.
	if len(candles) == 0 {
		return money.Money{}, false, nil
	}
	chosen := candles[len(candles)-1]
	for _, candle := range candles {
		if open, err := candle.Time(); err == nil && open.Equal(start) {
			chosen = candle
			break
		}
	}

	closePrice, err := chosen.Close()
	if err != nil {
		return money.Money{}, false, c.http.ParseError("%v", err)
	}
	return closePrice, true, nil
}
