package binance

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

var ErrInvalidKlineResponse = errors.New("invalid kline response")

// KlineResponse represents one kline: [openTime, open, high, low, close, volume, closeTime, ...]
type KlineResponse []interface{}

// Close returns the close price of the kline
func (k KlineResponse) Close() (money.Money, error) {
	if len(k) < 5 {
		return money.Money{}, ErrInvalidKlineResponse
	}
	raw, ok := k[4].(string)
	if !ok {
		return money.Money{}, fmt.Errorf("%w: close is %T", ErrInvalidKlineResponse, k[4])
	}
	return money.Parse(raw)
}

// ErrorResponse represents error responses from Binance
type ErrorResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func decodeError(body []byte) string {
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) != nil || resp.Msg == "" {
		return ""
	}
	return fmt.Sprintf("%s (code %d)", resp.Msg, resp.Code)
}

// FormatSymbol converts a market/trade pair to Binance format, e.g. USDT/BTC -> BTCUSDT
func FormatSymbol(market, trade string) string {
	return strings.ToUpper(trade) + strings.ToUpper(market)
}
