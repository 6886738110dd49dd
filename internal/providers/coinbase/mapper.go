package coinbase

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

// Rate limiting constants
const (
	PublicEndpointRateLimit = 10 // requests per second
)

var ErrInvalidCandle = errors.New("invalid candle")

// Candle represents one bucket: [time, low, high, open, close, volume]
type Candle []json.Number

// Time returns the bucket start
func (c Candle) Time() (time.Time, error) {
	if len(c) < 1 {
		return time.Time{}, ErrInvalidCandle
	}
	sec, err := c[0].Int64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

// Close returns the close price of the bucket
func (c Candle) Close() (money.Money, error) {
	if len(c) < 5 {
		return money.Money{}, ErrInvalidCandle
	}
	return money.Parse(c[4].String())
}

// ErrorResponse represents error responses from Coinbase
type ErrorResponse struct {
	Message string `json:"message"`
}

func decodeError(body []byte) string {
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	return resp.Message
}

// FormatProduct converts a market/trade pair to a Coinbase product id, e.g. USD/BTC -> BTC-USD
func FormatProduct(market, trade string) string {
	return strings.ToUpper(trade) + "-" + strings.ToUpper(market)
}
