package binance

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
const Name = "BINANCE"

// Epoch is the first day Binance published klines
var Epoch = time.Date(2017, 7, 14, 0, 0, 0, 0, time.UTC)

// Config represents Binance client configuration
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int
}

// Client loads historical prices from one-minute klines
type Client struct {
	http   *transport.Client
	logger logrus.FieldLogger
}

// NewClient creates a new Binance client
func NewClient(config *Config, logger logrus.FieldLogger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.binance.com"
	}

	if config.RateLimit == 0 {
		config.RateLimit = 1200 // requests per minute
	}

	headers := map[string]string{}
	if config.APIKey != "" {
		headers["X-MBX-APIKEY"] = config.APIKey
	}

	return &Client{
		http: transport.NewClient(transport.Config{
			Source:      Name,
			BaseURL:     strings.TrimRight(config.BaseURL, "/"),
			Timeout:     config.Timeout,
			RateLimit:   config.RateLimit,
			Headers:     headers,
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

// fetch returns the close of the one-minute kline that opens at the requested minute
func (c *Client) fetch(ctx context.Context, req models.LoadDataRequest, at time.Time) (money.Money, bool, error) {
	params := url.Values{}
	params.Set("symbol", FormatSymbol(req.MarketCurrency, req.TradeCurrency))
	params.Set("interval", "1m")
	params.Set("startTime", strconv.FormatInt(at.Truncate(time.Minute).UnixMilli(), 10))
	params.Set("limit", "1")

	data, err := c.http.Get(ctx, "/api/v3/klines", params)
	if err != nil {
		return money.Money{}, false, err
	}

	var response []KlineResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return money.Money{}, false, c.http.ParseError("failed to parse klines data: %v", err)
	}
	if len(response) == 0 {
		return money.Money{}, false, nil
	}

	closePrice, err := response[0].Close()
	if err != nil {
		return money.Money{}, false, c.http.ParseError("%v", err)
	}
	return closePrice, true, nil
}
