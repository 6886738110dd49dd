package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/zxtrader/pricing-sub000/internal/models"
	"github.com/zxtrader/pricing-sub000/internal/types"
)

// SyncerConfig configures the periodic refresh of aggregated prices
type SyncerConfig struct {
	Schedule           string
	AggregatedSourceID string
	Timeout            time.Duration
}

// Syncer refreshes the aggregated cell of every interesting pair from one
// external source on a cron schedule.
type Syncer struct {
	cron   *cron.Cron
	loader types.PriceLoader
	table  *Table
	pairs  *PairRegistry
	config SyncerConfig
	logger logrus.FieldLogger
	now    func() time.Time
}

func NewSyncer(loader types.PriceLoader, table *Table, pairs *PairRegistry, config SyncerConfig, logger logrus.FieldLogger) *Syncer {
	if config.Schedule == "" {
		config.Schedule = "@every 5m"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Syncer{
		cron:   cron.New(),
		loader: loader,
		table:  table,
		pairs:  pairs,
		config: config,
		logger: logger.WithField("component", "price_syncer"),
		now:    time.Now,
	}
}

// Start schedules the sync job.
func (s *Syncer) Start() error {
	_, err := s.cron.AddFunc(s.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
		defer cancel()

		if err := s.SyncOnce(ctx); err != nil {
			s.logger.WithError(err).Warn("Price sync failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule price sync %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.WithFields(logrus.Fields{
		"schedule": s.config.Schedule,
		"source":   s.loader.SourceID(),
	}).Info("Price syncer started")
	return nil
}

// Stop waits for a running job to finish or ctx to expire.
func (s *Syncer) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.logger.Info("Price syncer stopped")
}

// SyncOnce loads the current price of every registered pair and writes it to the aggregated cell.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	pairs := s.pairs.List()
	if len(pairs) == 0 {
		return nil
	}

	now := s.now().UTC().Truncate(time.Second)
	ts := models.FormatTimestamp(now)

	requests := make([]models.LoadDataRequest, 0, len(pairs))
	for _, p := range pairs {
		requests = append(requests, models.LoadDataRequest{
			SourceID:       s.loader.SourceID(),
			Ts:             ts,
			MarketCurrency: p.MarketCurrency,
			TradeCurrency:  p.TradeCurrency,
		})
	}

	prices, err := s.loader.LoadPrices(ctx, requests)
	if err != nil {
		return fmt.Errorf("load prices from %s: %w", s.loader.SourceID(), err)
	}

	for _, p := range prices {
		s.table.UpdatePrice(ctx, now, p.MarketCurrency, p.TradeCurrency, s.config.AggregatedSourceID, p.Price)
	}

	s.logger.WithFields(logrus.Fields{
		"pairs":   len(pairs),
		"updated": len(prices),
	}).Debug("Price sync completed")
	return nil
}
