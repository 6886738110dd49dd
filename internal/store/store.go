// Package store persists historical prices and builds the read view served to callers.
package store

import (
	"context"

	"github.com/zxtrader/pricing-sub000/internal/models"
)

// PriceStore is the backing cache of historical prices.
type PriceStore interface {
	// FilterEmptyPrices returns one request per (tuple, source) with no recorded price.
	// Args naming a source check only that source, the others check every id in sources.
	FilterEmptyPrices(ctx context.Context, args []models.PriceArgument, sources []string) ([]models.LoadDataRequest, error)

	// SavePrices records each observation and recomputes the tuple average
	// from every per-source price on record.
	SavePrices(ctx context.Context, prices []models.HistoricalPrice) error

	// FindPrices builds the ts → market → trade → Average view for args.
	FindPrices(ctx context.Context, args []models.PriceArgument) (models.Timestamp, error)
}

type gapKey struct {
	tuple  models.Tuple
	source string
}

// gapCandidates expands args into the distinct (tuple, source) pairs to check, in request order.
func gapCandidates(args []models.PriceArgument, sources []string) []gapKey {
	seen := make(map[gapKey]struct{})
	var out []gapKey
	add := func(k gapKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	for _, arg := range args {
		if arg.HasSource() {
			add(gapKey{tuple: arg.Tuple(), source: arg.SourceID})
			continue
		}
		for _, source := range sources {
			add(gapKey{tuple: arg.Tuple(), source: source})
		}
	}
	return out
}

func (k gapKey) request() models.LoadDataRequest {
	return models.LoadDataRequest{
		SourceID:       k.source,
		Ts:             k.tuple.Ts,
		MarketCurrency: k.tuple.MarketCurrency,
		TradeCurrency:  k.tuple.TradeCurrency,
	}
}

// groupByTuple keeps the last observation per (tuple, source), tuples in first-seen order.
func groupByTuple(prices []models.HistoricalPrice) ([]models.Tuple, map[models.Tuple]map[string]models.HistoricalPrice) {
	var order []models.Tuple
	groups := make(map[models.Tuple]map[string]models.HistoricalPrice)
	for _, p := range prices {
		t := p.Tuple()
		bySource, ok := groups[t]
		if !ok {
			bySource = make(map[string]models.HistoricalPrice)
			groups[t] = bySource
			order = append(order, t)
		}
		bySource[p.SourceID] = p
	}
	return order, groups
}
