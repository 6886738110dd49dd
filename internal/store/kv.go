package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/cache"
	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/money"
	"github.com/zxtrader/pricing-sub000/internal/monitoring"
)

const backendKV = "kv"

// KVStore keeps prices in a key-value cache:
//
//	<prefix><ts>:<market>:<trade>           average
//	<prefix><ts>:<market>:<trade>:<source>  per-source price
//	<prefix><ts>:<market>:<trade>#sources   set of contributing sources
//
// SavePrices is serialised within one process only; two processes saving the
// same tuple concurrently may each write an average that misses the other's source.
type KVStore struct {
	cache   cache.Cache
	prefix  string
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics

	mu sync.Mutex
}

func NewKVStore(c cache.Cache, prefix string, logger logrus.FieldLogger, metrics *monitoring.Metrics) *KVStore {
	return &KVStore{
		cache:   c,
		prefix:  prefix,
		logger:  logger.WithField("component", "kv_store"),
		metrics: metrics,
	}
}

func (s *KVStore) averageKey(t models.Tuple) string {
	return fmt.Sprintf("%s%d:%s:%s", s.prefix, t.Ts, t.MarketCurrency, t.TradeCurrency)
}

func (s *KVStore) sourceKey(t models.Tuple, source string) string {
	return s.averageKey(t) + ":" + source
}

func (s *KVStore) sourcesKey(t models.Tuple) string {
	return s.averageKey(t) + "#sources"
}

func (s *KVStore) FilterEmptyPrices(ctx context.Context, args []models.PriceArgument, sources []string) (result []models.LoadDataRequest, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOperation(backendKV, "filter", err, time.Since(start)) }()

	candidates := gapCandidates(args, sources)
	if len(candidates) == 0 {
		return nil, nil
	}

	keys := make([]string, len(candidates))
	for i, c := range candidates {
		keys[i] = s.sourceKey(c.tuple, c.source)
	}

	found, err := s.cache.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("filter empty prices: %w", err)
	}

	for i, c := range candidates {
		if _, ok := found[keys[i]]; !ok {
			result = append(result, c.request())
		}
	}
	return result, nil
}

func (s *KVStore) SavePrices(ctx context.Context, prices []models.HistoricalPrice) (err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOperation(backendKV, "save", err, time.Since(start)) }()

	if len(prices) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, groups := groupByTuple(prices)
	for _, tuple := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.saveTuple(ctx, tuple, groups[tuple]); err != nil {
			return fmt.Errorf("save prices for %s: %w", tuple, err)
		}
	}
	return nil
}

func (s *KVStore) saveTuple(ctx context.Context, tuple models.Tuple, bySource map[string]models.HistoricalPrice) error {
	values := make(map[string][]byte, len(bySource))
	members := make([][]byte, 0, len(bySource))
	for source, p := range bySource {
		values[s.sourceKey(tuple, source)] = []byte(p.Price.String())
		members = append(members, []byte(source))
	}

	if err := s.cache.MSet(ctx, values, 0); err != nil {
		return err
	}
	if err := s.cache.SAdd(ctx, s.sourcesKey(tuple), members...); err != nil {
		return err
	}

	contributors, err := s.sources(ctx, tuple)
	if err != nil {
		return err
	}
	keys := make([]string, len(contributors))
	for i, source := range contributors {
		keys[i] = s.sourceKey(tuple, source)
	}
	stored, err := s.cache.MGet(ctx, keys)
	if err != nil {
		return err
	}

	recorded := make([]money.Money, 0, len(stored))
	for _, key := range keys {
		raw, ok := stored[key]
		if !ok {
			s.logger.WithField("key", key).Warn("Source listed for tuple has no stored price")
			continue
		}
		price, err := money.Parse(string(raw))
		if err != nil {
			return fmt.Errorf("stored price %s: %w", key, err)
		}
		recorded = append(recorded, price)
	}

	avg, err := money.Mean(recorded)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, s.averageKey(tuple), []byte(avg.String()), 0)
}

func (s *KVStore) sources(ctx context.Context, tuple models.Tuple) ([]string, error) {
	raw, err := s.cache.SMembers(ctx, s.sourcesKey(tuple))
	if err != nil {
		return nil, err
	}
	out := make([]string, len(raw))
	for i, m := range raw {
		out[i] = string(m)
	}
	sort.Strings(out)
	return out, nil
}

func (s *KVStore) FindPrices(ctx context.Context, args []models.PriceArgument) (result models.Timestamp, err error) {
	start := time.Now()
	defer func() { s.metrics.RecordStoreOperation(backendKV, "find", err, time.Since(start)) }()

	// Sources to report per arg; nil means average only.
	reported := make([][]string, len(args))
	keys := make([]string, 0, len(args))
	for i, arg := range args {
		tuple := arg.Tuple()
		keys = append(keys, s.averageKey(tuple))
		switch {
		case arg.HasSource():
			reported[i] = []string{arg.SourceID}
		case arg.RequiredAllSourceIDs:
			all, err := s.sources(ctx, tuple)
			if err != nil {
				return nil, fmt.Errorf("find prices: %w", err)
			}
			reported[i] = all
		default:
			continue
		}
		for _, source := range reported[i] {
			keys = append(keys, s.sourceKey(tuple, source))
		}
	}

	values, err := s.cache.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("find prices: %w", err)
	}
	lookup := func(key string) (*models.PriceValue, error) {
		raw, ok := values[key]
		if !ok {
			return nil, nil
		}
		price, err := money.Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("stored price %s: %w", key, err)
		}
		return models.NewPriceValue(price), nil
	}

	result = make(models.Timestamp)
	for i, arg := range args {
		tuple := arg.Tuple()
		avg, err := lookup(s.averageKey(tuple))
		if err != nil {
			return nil, err
		}
		entry := &models.Average{Avg: avg}

		switch {
		case arg.HasSource():
			price, err := lookup(s.sourceKey(tuple, arg.SourceID))
			if err != nil {
				return nil, err
			}
			entry.Sources = map[string]*models.PriceValue{arg.SourceID: price}
		case arg.RequiredAllSourceIDs:
			entry.Sources = make(map[string]*models.PriceValue, len(reported[i]))
			for _, source := range reported[i] {
				price, err := lookup(s.sourceKey(tuple, source))
				if err != nil {
					return nil, err
				}
				if price != nil {
					entry.Sources[source] = price
				}
			}
		}

		mergeAverage(result, arg, entry)
	}
	return result, nil
}

// mergeAverage sets entry, folding in sources already reported for the same tuple.
func mergeAverage(result models.Timestamp, arg models.PriceArgument, entry *models.Average) {
	existing := result.Get(arg.Ts, arg.MarketCurrency, arg.TradeCurrency)
	if existing != nil && existing.Sources != nil {
		if entry.Sources == nil {
			entry.Sources = existing.Sources
		} else {
			for source, price := range existing.Sources {
				if _, ok := entry.Sources[source]; !ok {
					entry.Sources[source] = price
				}
			}
		}
		if entry.Primary == nil {
			entry.Primary = existing.Primary
		}
	}
	result.Set(arg.Ts, arg.MarketCurrency, arg.TradeCurrency, entry)
}
