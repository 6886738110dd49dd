package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/zxtrader/pricing-sub000/internal/money"
)

// TimestampLayout is the YYYYMMDDHHMMSS form every price timestamp uses (UTC).
const TimestampLayout = "20060102150405"

// ParseTimestamp converts a YYYYMMDDHHMMSS integer into a UTC time.
// Anything that is not exactly 14 digits or not a calendar date/time fails.
func ParseTimestamp(ts int64) (time.Time, error) {
	s := strconv.FormatInt(ts, 10)
	if len(s) != len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("timestamp %s must have %d digits", s, len(TimestampLayout))
	}
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// FormatTimestamp is the inverse of ParseTimestamp.
func FormatTimestamp(t time.Time) int64 {
	v, _ := strconv.ParseInt(t.UTC().Format(TimestampLayout), 10, 64)
	return v
}

// Tuple identifies one price point regardless of source.
type Tuple struct {
	Ts             int64
	MarketCurrency string
	TradeCurrency  string
}

func (t Tuple) String() string {
	return fmt.Sprintf("%d:%s:%s", t.Ts, t.MarketCurrency, t.TradeCurrency)
}

// PriceArgument is one requested price point.
// An empty SourceID means no particular source; RequiredAllSourceIDs then decides
// whether every known source is reported or only the average.
type PriceArgument struct {
	Ts                   int64  `json:"ts"`
	MarketCurrency       string `json:"marketCurrency"`
	TradeCurrency        string `json:"tradeCurrency"`
	SourceID             string `json:"sourceId,omitempty"`
	RequiredAllSourceIDs bool   `json:"requiredAllSourceIds"`
}

func (a PriceArgument) HasSource() bool {
	return a.SourceID != ""
}

func (a PriceArgument) Tuple() Tuple {
	return Tuple{Ts: a.Ts, MarketCurrency: a.MarketCurrency, TradeCurrency: a.TradeCurrency}
}

// LoadDataRequest is one gap attributed to one source.
type LoadDataRequest struct {
	SourceID       string `json:"sourceId"`
	Ts             int64  `json:"ts"`
	MarketCurrency string `json:"marketCurrency"`
	TradeCurrency  string `json:"tradeCurrency"`
}

func (r LoadDataRequest) Tuple() Tuple {
	return Tuple{Ts: r.Ts, MarketCurrency: r.MarketCurrency, TradeCurrency: r.TradeCurrency}
}

// Time returns the request timestamp; the zero time if it is malformed.
func (r LoadDataRequest) Time() time.Time {
	t, _ := ParseTimestamp(r.Ts)
	return t
}

// HistoricalPrice is one observation returned by a loader.
type HistoricalPrice struct {
	SourceID       string      `json:"sourceId"`
	Ts             int64       `json:"ts"`
	MarketCurrency string      `json:"marketCurrency"`
	TradeCurrency  string      `json:"tradeCurrency"`
	Price          money.Money `json:"price"`
}

func (p HistoricalPrice) Tuple() Tuple {
	return Tuple{Ts: p.Ts, MarketCurrency: p.MarketCurrency, TradeCurrency: p.TradeCurrency}
}

// PriceValue wraps a price for the read view.
type PriceValue struct {
	Price money.Money `json:"price"`
}

func NewPriceValue(m money.Money) *PriceValue {
	return &PriceValue{Price: m}
}

// SourcePrice is a price attributed to one source.
type SourcePrice struct {
	SourceID string      `json:"source"`
	Price    money.Money `json:"price"`
}

// Average is the read view of one tuple. Avg is nil until some source has
// contributed a price. Sources is only set when a source or all sources were requested.
type Average struct {
	Avg     *PriceValue            `json:"avg"`
	Sources map[string]*PriceValue `json:"sources,omitempty"`
	Primary *SourcePrice           `json:"primary,omitempty"`
}

// Timestamp is the nested ts → market → trade → Average result shape.
type Timestamp map[int64]map[string]map[string]*Average

// Set stores avg at the given coordinates, creating levels as needed.
func (t Timestamp) Set(ts int64, market, trade string, avg *Average) {
	byMarket, ok := t[ts]
	if !ok {
		byMarket = make(map[string]map[string]*Average)
		t[ts] = byMarket
	}
	byTrade, ok := byMarket[market]
	if !ok {
		byTrade = make(map[string]*Average)
		byMarket[market] = byTrade
	}
	byTrade[trade] = avg
}

// Get returns the Average at the given coordinates or nil.
func (t Timestamp) Get(ts int64, market, trade string) *Average {
	if byMarket, ok := t[ts]; ok {
		if byTrade, ok := byMarket[market]; ok {
			return byTrade[trade]
		}
	}
	return nil
}

// Pair is a market/trade currency pair.
type Pair struct {
	MarketCurrency string `json:"marketCurrency"`
	TradeCurrency  string `json:"tradeCurrency"`
}

func (p Pair) String() string {
	return p.TradeCurrency + "/" + p.MarketCurrency
}
