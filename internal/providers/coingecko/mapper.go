package coingecko

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

var ErrInvalidPricePoint = errors.New("invalid price point")

// MarketChartResponse represents the response from /coins/{id}/market_chart/range
type MarketChartResponse struct {
	Prices       []PricePoint `json:"prices"`
	MarketCaps   []PricePoint `json:"market_caps"`
	TotalVolumes []PricePoint `json:"total_volumes"`
}

// PricePoint is a [timestamp ms, value] pair
type PricePoint []json.Number

// Time returns the point's timestamp
func (p PricePoint) Time() (time.Time, error) {
	if len(p) < 2 {
		return time.Time{}, ErrInvalidPricePoint
	}
	ms, err := p[0].Int64()
	if err != nil {
		f, ferr := p[0].Float64()
		if ferr != nil {
			return time.Time{}, ErrInvalidPricePoint
		}
		ms = int64(f)
	}
	return ToTimestamp(ms), nil
}

// Value returns the price carried by the point
func (p PricePoint) Value() (money.Money, error) {
	if len(p) < 2 {
		return money.Money{}, ErrInvalidPricePoint
	}
	return money.Parse(p[1].String())
}

// ErrorResponse represents error responses from CoinGecko
type ErrorResponse struct {
	Error  string `json:"error"`
	Status struct {
		ErrorCode    int    `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"status"`
}

func decodeError(body []byte) string {
	var resp ErrorResponse
	if json.Unmarshal(body, &resp) != nil {
		return ""
	}
	if resp.Error != "" {
		return resp.Error
	}
	return resp.Status.ErrorMessage
}

// ToTimestamp converts Unix milliseconds to UTC time
func ToTimestamp(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

var symbolMap = map[string]string{
	"BTC":   "bitcoin",
	"ETH":   "ethereum",
	"BNB":   "binancecoin",
	"SOL":   "solana",
	"ADA":   "cardano",
	"DOT":   "polkadot",
	"MATIC": "matic-network",
	"AVAX":  "avalanche-2",
	"LINK":  "chainlink",
	"UNI":   "uniswap",
	"LTC":   "litecoin",
	"BCH":   "bitcoin-cash",
	"XRP":   "ripple",
	"DOGE":  "dogecoin",
	"SHIB":  "shiba-inu",
	"ATOM":  "cosmos",
	"ETC":   "ethereum-classic",
	"XLM":   "stellar",
	"ALGO":  "algorand",
	"VET":   "vechain",
	"FIL":   "filecoin",
	"AAVE":  "aave",
	"MKR":   "maker",
	"ZEC":   "zcash",
	"DASH":  "dash",
	"XMR":   "monero",
	"EOS":   "eos",
	"TRX":   "tron",
	"NEAR":  "near",
	"USDT":  "tether",
	"USDC":  "usd-coin",
}

// CoinID converts a trade currency to a CoinGecko coin id
func CoinID(symbol string) (string, bool) {
	id, ok := symbolMap[strings.ToUpper(symbol)]
	return id, ok
}

// VsCurrency converts a market currency to CoinGecko's vs_currency parameter
func VsCurrency(symbol string) string {
	return strings.ToLower(symbol)
}
