package dto

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

const (
	// MaxQueryTokens bounds the number of entries in one historical or batch query
	MaxQueryTokens = 100

	StreamTypePrice = "price"
	StreamTypeRate  = "rate"
)

var (
	timestampPattern = regexp.MustCompile(`^\d{14}$`)
	validate         = validator.New()
)

// ParseHistoricalQuery parses comma-separated TIMESTAMP:MARKET:TRADE[:SOURCE] tokens.
// A trailing colon with no source requests every source, no fourth part requests the average only.
func ParseHistoricalQuery(q string) ([]models.PriceArgument, error) {
	tokens, err := splitQuery(q)
	if err != nil {
		return nil, err
	}

	args := make([]models.PriceArgument, 0, len(tokens))
	for _, token := range tokens {
		parts := strings.Split(token, ":")
		if len(parts) != 3 && len(parts) != 4 {
			return nil, types.NewArgumentError("bad token %q: expected TIMESTAMP:MARKET:TRADE[:SOURCE]", token)
		}

		arg, err := parseTuple(token, parts[:3])
		if err != nil {
			return nil, err
		}
		if len(parts) == 4 {
			source := strings.ToUpper(strings.TrimSpace(parts[3]))
			if source == "" {
				arg.RequiredAllSourceIDs = true
			} else {
				arg.SourceID = source
			}
		}
		args = append(args, arg)
	}
	return args, nil
}

// ParseBatchRateQuery parses comma-separated TIMESTAMP:MARKET:TRADE tokens. Sources are not accepted.
func ParseBatchRateQuery(q string) ([]models.PriceArgument, error) {
	tokens, err := splitQuery(q)
	if err != nil {
		return nil, err
	}

	args := make([]models.PriceArgument, 0, len(tokens))
	for _, token := range tokens {
		parts := strings.Split(token, ":")
		if len(parts) != 3 {
			return nil, types.NewArgumentError("bad token %q: expected TIMESTAMP:MARKET:TRADE", token)
		}
		arg, err := parseTuple(token, parts)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func splitQuery(q string) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, types.NewArgumentError("query is empty")
	}
	tokens := strings.Split(q, ",")
	if len(tokens) > MaxQueryTokens {
		return nil, types.NewArgumentError("too many tokens: %d, maximum %d", len(tokens), MaxQueryTokens)
	}
	for i, token := range tokens {
		tokens[i] = strings.TrimSpace(token)
		if tokens[i] == "" {
			return nil, types.NewArgumentError("empty token at position %d", i)
		}
	}
	return tokens, nil
}

func parseTuple(token string, parts []string) (models.PriceArgument, error) {
	ts, err := parseTimestamp(parts[0])
	if err != nil {
		return models.PriceArgument{}, types.NewArgumentError("bad token %q: %v", token, err)
	}
	market := strings.ToUpper(strings.TrimSpace(parts[1]))
	trade := strings.ToUpper(strings.TrimSpace(parts[2]))
	if market == "" || trade == "" {
		return models.PriceArgument{}, types.NewArgumentError("bad token %q: market and trade are required", token)
	}
	return models.PriceArgument{Ts: ts, MarketCurrency: market, TradeCurrency: trade}, nil
}

// parseTimestamp checks the 14-digit shape only; calendar validity is checked by the engine.
func parseTimestamp(s string) (int64, error) {
	if !timestampPattern.MatchString(s) {
		return 0, fmt.Errorf("timestamp %q must be exactly 14 digits", s)
	}
	return strconv.ParseInt(s, 10, 64)
}

// RateRequest is the single-pair rate lookup
type RateRequest struct {
	Exchange string `form:"exchange" json:"exchange"`
	Date     string `form:"date" json:"date" validate:"required,len=14,numeric"`
	Market   string `form:"market" json:"market" validate:"required,max=20"`
	Trade    string `form:"trade" json:"trade" validate:"required,max=20"`
}

// Validate validates the rate request
func (r *RateRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return types.NewArgumentError("invalid rate request: %v", err)
	}
	return nil
}

// SetDefaults normalizes currency and exchange names
func (r *RateRequest) SetDefaults() {
	r.Exchange = strings.ToUpper(strings.TrimSpace(r.Exchange))
	r.Market = strings.ToUpper(strings.TrimSpace(r.Market))
	r.Trade = strings.ToUpper(strings.TrimSpace(r.Trade))
	r.Date = strings.TrimSpace(r.Date)
}

// ToArgument converts the request. An empty exchange means the aggregated average.
func (r *RateRequest) ToArgument() (models.PriceArgument, error) {
	ts, err := parseTimestamp(r.Date)
	if err != nil {
		return models.PriceArgument{}, types.NewArgumentError("invalid date: %v", err)
	}
	return models.PriceArgument{
		Ts:             ts,
		MarketCurrency: r.Market,
		TradeCurrency:  r.Trade,
		SourceID:       r.Exchange,
	}, nil
}

// StreamRequest opens a change-price or change-rate stream
type StreamRequest struct {
	Type      string `form:"type" validate:"required,oneof=price rate"`
	Threshold int64  `form:"threshold" validate:"required,min=1"`
	Pairs     string `form:"pairs" validate:"required_if=Type price"`
	Exchanges string `form:"exchanges"`
	Market    string `form:"market" validate:"required_if=Type rate"`
	Trade     string `form:"trade" validate:"required_if=Type rate"`
}

// Validate validates the stream request
func (r *StreamRequest) Validate(minThreshold time.Duration) error {
	if err := validate.Struct(r); err != nil {
		return types.NewArgumentError("invalid stream request: %v", err)
	}
	if r.ThresholdDuration() < minThreshold {
		return types.NewArgumentError("threshold must be at least %dms", minThreshold.Milliseconds())
	}
	return nil
}

// ThresholdDuration returns the threshold, given in milliseconds
func (r *StreamRequest) ThresholdDuration() time.Duration {
	return time.Duration(r.Threshold) * time.Millisecond
}

// ParsePairs parses comma-separated TRADE/MARKET pairs
func (r *StreamRequest) ParsePairs() ([]models.Pair, error) {
	var pairs []models.Pair
	for _, token := range splitList(r.Pairs) {
		parts := strings.Split(token, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, types.NewArgumentError("bad pair %q: expected TRADE/MARKET", token)
		}
		pairs = append(pairs, models.Pair{
			MarketCurrency: strings.ToUpper(parts[1]),
			TradeCurrency:  strings.ToUpper(parts[0]),
		})
	}
	if len(pairs) == 0 {
		return nil, types.NewArgumentError("at least one pair is required")
	}
	return pairs, nil
}

// ParseExchanges returns the upper-cased exchange list
func (r *StreamRequest) ParseExchanges() []string {
	exchanges := splitList(r.Exchanges)
	for i := range exchanges {
		exchanges[i] = strings.ToUpper(exchanges[i])
	}
	return exchanges
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
