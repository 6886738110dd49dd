// Package aggregator orchestrates historical price lookups over the store and the source loaders.
package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/monitoring"
	"github.com/zxtrader/pricing-sub000/internal/store"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

// LoaderRegistry looks up price loaders by source id
type LoaderRegistry interface {
	GetProvider(sourceID string) (types.PriceLoader, bool)
	SourceIDs() []string
}

// Engine fills store gaps from the loaders and serves the stored view
type Engine struct {
	store   store.PriceStore
	loaders LoaderRegistry
	logger  logrus.FieldLogger
	metrics *monitoring.Metrics
	stats   *EngineStats
}

// EngineStats tracks request statistics
type EngineStats struct {
	TotalRequests      int64                          `json:"total_requests"`
	SuccessfulRequests int64                          `json:"successful_requests"`
	PartialFailures    int64                          `json:"partial_failures"`
	FailedRequests     int64                          `json:"failed_requests"`
	AverageLatency     time.Duration                  `json:"average_latency"`
	ProviderStats      map[string]*ProviderLoadStats `json:"provider_stats"`
	LastUpdated        time.Time                      `json:"last_updated"`
	mu                 sync.RWMutex
}

// ProviderLoadStats tracks per-source loader statistics
type ProviderLoadStats struct {
	RequestCount     int64         `json:"request_count"`
	SuccessCount     int64         `json:"success_count"`
	ErrorCount       int64         `json:"error_count"`
	AverageLatency   time.Duration `json:"average_latency"`
	ReliabilityScore float64       `json:"reliability_score"`
	LastError        string        `json:"last_error,omitempty"`
	LastUsed         time.Time     `json:"last_used"`
}

// NewEngine creates a new aggregation engine
func NewEngine(priceStore store.PriceStore, loaders LoaderRegistry, logger logrus.FieldLogger, metrics *monitoring.Metrics) *Engine {
	return &Engine{
		store:   priceStore,
		loaders: loaders,
		logger:  logger.WithField("component", "aggregation_engine"),
		metrics: metrics,
		stats: &EngineStats{
			ProviderStats: make(map[string]*ProviderLoadStats),
		},
	}
}

// GetHistoricalPrices returns the price view for args, loading whatever the store lacks.
//
// When some loaders fail, the successes of the others are still saved and the
// returned view is complete for them; the error is then a *types.AggregateError
// listing each failed source. Invalid input fails before the store is touched.
func (e *Engine) GetHistoricalPrices(ctx context.Context, args []models.PriceArgument) (models.Timestamp, error) {
	start := time.Now()

	result, err := e.getHistoricalPrices(ctx, args)

	outcome := outcomeOf(err)
	e.metrics.RecordEngineRequest(outcome)
	e.updateStats(outcome, time.Since(start))

	return result, err
}

func (e *Engine) getHistoricalPrices(ctx context.Context, args []models.PriceArgument) (models.Timestamp, error) {
	if err := validateArguments(args); err != nil {
		return nil, err
	}

	gaps, err := e.store.FilterEmptyPrices(ctx, args, e.loaders.SourceIDs())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var loadErr error
	if len(gaps) > 0 {
		var newPrices []models.HistoricalPrice
		newPrices, loadErr = e.loadPrices(ctx, gaps)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if len(newPrices) > 0 {
			if err := e.store.SavePrices(ctx, newPrices); err != nil {
				return nil, err
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	result, err := e.store.FindPrices(ctx, args)
	if err != nil {
		return nil, err
	}
	return result, loadErr
}

func validateArguments(args []models.PriceArgument) error {
	if len(args) == 0 {
		return types.NewArgumentError("at least one price argument is required")
	}
	for i, arg := range args {
		if _, err := models.ParseTimestamp(arg.Ts); err != nil {
			return &types.InvalidDateError{Ts: arg.Ts, Err: err}
		}
		if arg.MarketCurrency == "" || arg.TradeCurrency == "" {
			return types.NewArgumentError("argument %d: market and trade currency are required", i)
		}
	}
	return nil
}

type loadResult struct {
	source string
	prices []models.HistoricalPrice
	err    error
}

// loadPrices runs one loader per source concurrently. Failures are isolated per
// source and returned together as a *types.AggregateError.
func (e *Engine) loadPrices(ctx context.Context, gaps []models.LoadDataRequest) ([]models.HistoricalPrice, error) {
	var order []string
	groups := make(map[string][]models.LoadDataRequest)
	for _, gap := range gaps {
		if _, ok := groups[gap.SourceID]; !ok {
			order = append(order, gap.SourceID)
		}
		groups[gap.SourceID] = append(groups[gap.SourceID], gap)
	}

	results := make(map[string]loadResult, len(order))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, source := range order {
		loader, ok := e.loaders.GetProvider(source)
		if !ok {
			e.logger.WithFields(logrus.Fields{
				"source":   source,
				"requests": len(groups[source]),
			}).Error("No loader registered for source, skipping")
			continue
		}

		wg.Add(1)
		go func(sourceID string, l types.PriceLoader, requests []models.LoadDataRequest) {
			defer wg.Done()

			start := time.Now()
			prices, err := l.LoadPrices(ctx, requests)
			latency := time.Since(start)

			e.recordLoaderCall(sourceID, err, latency)

			mu.Lock()
			results[sourceID] = loadResult{source: sourceID, prices: prices, err: err}
			mu.Unlock()
		}(source, loader, groups[source])
	}

	wg.Wait()

	// Merge in request order so the outcome does not depend on completion order
	var prices []models.HistoricalPrice
	var failures []error
	for _, source := range order {
		res, ok := results[source]
		if !ok {
			continue
		}
		if res.err != nil {
			e.logger.WithFields(logrus.Fields{
				"source": source,
				"kind":   types.ErrorKind(res.err),
			}).WithError(res.err).Warn("Loader failed")
			failures = append(failures, &types.LoaderError{SourceID: source, Err: res.err})
			continue
		}
		prices = append(prices, res.prices...)
	}

	if len(failures) > 0 {
		return prices, &types.AggregateError{Errors: failures}
	}
	return prices, nil
}

func (e *Engine) recordLoaderCall(source string, err error, latency time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = types.ErrorKind(err)
	}
	e.metrics.RecordLoaderCall(source, outcome, latency)

	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()

	stats := e.stats.ProviderStats[source]
	if stats == nil {
		stats = &ProviderLoadStats{}
		e.stats.ProviderStats[source] = stats
	}
	stats.RequestCount++
	stats.LastUsed = time.Now()

	if err == nil {
		stats.SuccessCount++
	} else {
		stats.ErrorCount++
		stats.LastError = err.Error()
	}

	// Update average latency
	if stats.AverageLatency == 0 {
		stats.AverageLatency = latency
	} else {
		stats.AverageLatency = (stats.AverageLatency + latency) / 2
	}

	stats.ReliabilityScore = float64(stats.SuccessCount) / float64(stats.RequestCount)
}

func outcomeOf(err error) string {
	var aggErr *types.AggregateError
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &aggErr):
		return "partial"
	case types.IsClientError(err):
		return "client_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

func (e *Engine) updateStats(outcome string, latency time.Duration) {
	e.stats.mu.Lock()
	defer e.stats.mu.Unlock()

	e.stats.TotalRequests++
	switch outcome {
	case "success":
		e.stats.SuccessfulRequests++
	case "partial":
		e.stats.PartialFailures++
	default:
		e.stats.FailedRequests++
	}

	// Update average latency
	if e.stats.AverageLatency == 0 {
		e.stats.AverageLatency = latency
	} else {
		e.stats.AverageLatency = (e.stats.AverageLatency + latency) / 2
	}

	e.stats.LastUpdated = time.Now()
}

// GetStats returns a copy of the engine statistics
func (e *Engine) GetStats() *EngineStats {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()

	statsCopy := &EngineStats{
		TotalRequests:      e.stats.TotalRequests,
		SuccessfulRequests: e.stats.SuccessfulRequests,
		PartialFailures:    e.stats.PartialFailures,
		FailedRequests:     e.stats.FailedRequests,
		AverageLatency:     e.stats.AverageLatency,
		LastUpdated:        e.stats.LastUpdated,
		ProviderStats:      make(map[string]*ProviderLoadStats, len(e.stats.ProviderStats)),
	}
	for name, stats := range e.stats.ProviderStats {
		s := *stats
		statsCopy.ProviderStats[name] = &s
	}
	return statsCopy
}

// Sources returns the ids of the registered loaders, sorted
func (e *Engine) Sources() []string {
	ids := e.loaders.SourceIDs()
	sort.Strings(ids)
	return ids
}
