package cryptocompare

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/providers/transport"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

// Name is the source id of this loader
const Name = "CRYPTOCOMPARE"

// Epoch is the earliest timestamp the historical endpoint serves
var Epoch = time.Date(2010, 7, 17, 0, 0, 0, 0, time.UTC)

// Config represents CryptoCompare client configuration
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RateLimit int
}

// Client loads historical prices from the CryptoCompare pricehistorical endpoint
type Client struct {
	http   *transport.Client
	logger logrus.FieldLogger
}

// NewClient creates a new CryptoCompare client. The API key is mandatory.
func NewClient(config *Config, logger logrus.FieldLogger) (*Client, error) {
	if config.APIKey == "" {
		return nil, &types.ConfigurationError{Source: Name, Setting: "CRYPTOCOMPARE_API_KEY"}
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://min-api.cryptocompare.com"
	}

	return &Client{
		http: transport.NewClient(transport.Config{
			Source:      Name,
			BaseURL:     strings.TrimRight(config.BaseURL, "/"),
			Timeout:     config.Timeout,
			RateLimit:   config.RateLimit,
			Headers:     map[string]string{"Authorization": "Apikey " + config.APIKey},
			DecodeError: decodeError,
		}),
		logger: logger.WithField("source", Name),
	}, nil
}

func (c *Client) SourceID() string {
	return Name
}

func (c *Client) LoadPrices(ctx context.Context, requests []models.LoadDataRequest) ([]models.HistoricalPrice, error) {
	return transport.LoadEach(ctx, c.logger, Name, Epoch, requests, c.fetch)
}

func (c *Client) fetch(ctx context.Context, req models.LoadDataRequest, at time.Time) (money.Money, bool, error) {
	params := url.Values{}
	params.Set("fsym", req.TradeCurrency)
	params.Set("tsyms", req.MarketCurrency)
	params.Set("ts", strconv.FormatInt(at.Unix(), 10))

	data, err := c.http.Get(ctx, "/data/pricehistorical", params)
	if err != nil {
		return money.Money{}, false, err
	}

	// Errors come back as 200 with {"Response":"Error","Message":"..."}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return money.Money{}, false, c.http.ParseError("failed to parse response: %v", err)
	}
	if msg := decodeError(data); msg != "" {
		return money.Money{}, false, types.NewBrokenAPIError(Name, types.ErrorCodeAPIError, msg)
	}

	rawQuotes, ok := envelope[req.TradeCurrency]
	if !ok {
		return money.Money{}, false, c.http.ParseError("response has no %s entry", req.TradeCurrency)
	}
	var quotes map[string]json.Number
	if err := json.Unmarshal(rawQuotes, &quotes); err != nil {
		return money.Money{}, false, c.http.ParseError("failed to parse %s quotes: %v", req.TradeCurrency, err)
	}
	raw, ok := quotes[req.MarketCurrency]
	if !ok {
		return money.Money{}, false, c.http.ParseError("response has no %s/%s quote", req.TradeCurrency, req.MarketCurrency)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return money.Money{}, false, c.http.ParseError("invalid price %q", raw.String())
	}
	// 0 means CryptoCompare has no data for the pair at that time
	if price.IsZero() {
		return money.Money{}, false, nil
	}
	return money.FromDecimal(price), true, nil
}

// ErrorResponse represents error responses from CryptoCompare
type ErrorResponse struct {
	Response string `json:"Response"`
	Message  string `json:"Message"`
}

func decodeError(body []byte) string {
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) != nil || resp.Response != "Error" {
		return ""
	}
	if resp.Message == "" {
		return "unspecified error"
	}
	return resp.Message
}
